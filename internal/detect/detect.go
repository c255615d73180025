// Package detect walks request input looking for injection payloads.
package detect

import (
	"strconv"

	"github.com/raakeshmj/vpnshield/internal/patterns"
	"github.com/raakeshmj/vpnshield/internal/sanitize"
)

// Decision is the outcome of an inspection. Reason and Path are for server
// logs only and must never reach the client.
type Decision struct {
	Blocked bool
	Class   patterns.Class
	Reason  string
	Path    string
}

// Surface is one named part of a request (body, query, params).
type Surface struct {
	Name  string
	Value sanitize.Value
}

type Detector struct {
	classes []patterns.Set
}

func New() *Detector {
	return &Detector{classes: patterns.Classes()}
}

// Inspect checks the surfaces in order and stops at the first match.
func (d *Detector) Inspect(surfaces ...Surface) Decision {
	for _, s := range surfaces {
		if dec := d.walk(s.Name, s.Value); dec.Blocked {
			return dec
		}
	}
	return Decision{}
}

// CheckString tests a single string.
func (d *Detector) CheckString(path, s string) Decision {
	for _, set := range d.classes {
		if pat, ok := set.Match(s); ok {
			return Decision{Blocked: true, Class: set.Class, Reason: pat.Name, Path: path}
		}
	}
	return Decision{}
}

func (d *Detector) walk(path string, v sanitize.Value) Decision {
	switch v.Kind() {
	case sanitize.KindString:
		return d.CheckString(path, v.Str())
	case sanitize.KindSequence:
		for i, item := range v.Items() {
			if dec := d.walk(path+"["+strconv.Itoa(i)+"]", item); dec.Blocked {
				return dec
			}
		}
	case sanitize.KindMapping:
		fields := v.Fields()
		for _, k := range v.Keys() {
			child := path + "." + k
			if dec := d.CheckString(child, k); dec.Blocked {
				return dec
			}
			if dec := d.walk(child, fields[k]); dec.Blocked {
				return dec
			}
		}
	}
	return Decision{}
}

// CheckUserAgent flags known scanner clients.
func CheckUserAgent(ua string) Decision {
	if patterns.SuspiciousAgents.Re.MatchString(ua) {
		return Decision{Blocked: true, Reason: patterns.SuspiciousAgents.Name, Path: "header.User-Agent"}
	}
	return Decision{}
}
