// Package patterns holds the static matchers used to recognise injection
// payloads and scanner clients. Everything here is compiled once at init.
package patterns

import "regexp"

// Class names an injection family.
type Class string

const (
	ClassSQL           Class = "sql_injection"
	ClassXSS           Class = "xss"
	ClassPathTraversal Class = "path_traversal"
)

// Pattern is a named matcher. Name is what ends up in server logs as the
// block reason.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// Set is an ordered group of patterns belonging to one class.
type Set struct {
	Class    Class
	Patterns []Pattern
}

// Match returns the first pattern matching s.
func (s Set) Match(v string) (Pattern, bool) {
	for _, p := range s.Patterns {
		if p.Re.MatchString(v) {
			return p, true
		}
	}
	return Pattern{}, false
}

func p(name, expr string) Pattern {
	return Pattern{Name: name, Re: regexp.MustCompile(expr)}
}

var SQL = Set{
	Class: ClassSQL,
	Patterns: []Pattern{
		p("union select", `(?i)\bunion\s+(all\s+)?select\b`),
		p("select from", `(?i)\bselect\s+.+\s+from\b`),
		p("insert into", `(?i)\binsert\s+into\b`),
		p("delete from", `(?i)\bdelete\s+from\b`),
		p("drop object", `(?i)\bdrop\s+(table|database|schema)\b`),
		p("update set", `(?i)\bupdate\s+\w+\s+set\b`),
		p("alter table", `(?i)\balter\s+table\b`),
		p("truncate table", `(?i)\btruncate\s+table\b`),
		p("exec call", `(?i)\bexec(ute)?\s*\(`),
		p("quoted tautology", `(?i)['"]\s*(or|and)\s+['"]?\w+['"]?\s*(=|<|>|like\b)`),
		p("numeric tautology", `(?i)\b(or|and)\s+(\d+)\s*=\s*(\d+)\b`),
		p("quote comment", `['"]\s*(--|#|/\*)`),
		p("stacked statement", `(?i);\s*(drop|delete|insert|update|select|shutdown|alter|create)\b`),
		p("time probe", `(?i)\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b`),
	},
}

var XSS = Set{
	Class: ClassXSS,
	Patterns: []Pattern{
		p("script tag", `(?i)<\s*/?\s*script\b`),
		p("javascript uri", `(?i)javascript\s*:`),
		p("vbscript uri", `(?i)vbscript\s*:`),
		p("event handler", `(?i)\bon(load|error|click|dblclick|mouseover|mouseout|mousedown|mouseup|focus|blur|submit|change|input|keydown|keyup|keypress|abort|unload|resize|scroll|toggle|contextmenu|animationstart|pointerover)\s*=`),
		p("tag event handler", `(?i)<[^>]*\son[a-z]+\s*=`),
		p("embedded frame", `(?i)<\s*(iframe|object|embed)\b`),
		p("html data uri", `(?i)data\s*:\s*text/html`),
	},
}

var PathTraversal = Set{
	Class: ClassPathTraversal,
	Patterns: []Pattern{
		p("dot dot slash", `\.\.[/\\]`),
		p("encoded dot dot", `(?i)%2e%2e`),
		p("double encoded dot", `(?i)%252e`),
		p("dot dot encoded slash", `(?i)\.\.(%2f|%5c)`),
	},
}

// Classes returns the injection sets in evaluation order.
func Classes() []Set {
	return []Set{SQL, XSS, PathTraversal}
}

// SuspiciousAgents matches user agents of common scanners and brute-forcers.
var SuspiciousAgents = p("scanner user agent",
	`(?i)\b(sqlmap|nikto|nmap|masscan|dirbuster|gobuster|wpscan|acunetix|havij|zgrab|nessus|w3af|hydra|nuclei)\b`)
