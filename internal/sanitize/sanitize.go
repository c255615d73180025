// Package sanitize normalises untrusted request input before handlers see it.
//
// Strings lose control characters, are trimmed, have the five HTML-significant
// characters entity-escaped and are capped at MaxStringLength runes. Mapping
// keys are reduced to [A-Za-z0-9_-]; keys that end up empty or name a
// prototype property are dropped with their values. Sanitize never fails and
// is idempotent.
package sanitize

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxStringLength is the rune cap applied to every string leaf.
const MaxStringLength = 10000

var forbiddenKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// entities produced by escape; an '&' that already starts one is left alone.
var entities = []string{"&amp;", "&lt;", "&gt;", "&quot;", "&#39;"}

// Sanitize returns a sanitized copy of v.
func Sanitize(v Value) Value {
	switch v.kind {
	case KindString:
		return String(Strings(v.s))
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			items[i] = Sanitize(item)
		}
		return Sequence(items...)
	case KindMapping:
		return Mapping(sanitizeFields(v.m))
	default:
		return v
	}
}

func sanitizeFields(in map[string]Value) map[string]Value {
	orig := make([]string, 0, len(in))
	for k := range in {
		orig = append(orig, k)
	}
	sort.Strings(orig)

	out := make(map[string]Value, len(in))
	// Keys that are already clean claim their slot before normalised ones.
	for pass := 0; pass < 2; pass++ {
		for _, k := range orig {
			nk, ok := Key(k)
			if !ok {
				continue
			}
			exact := nk == k
			if (pass == 0) != exact {
				continue
			}
			if _, taken := out[nk]; taken {
				continue
			}
			out[nk] = Sanitize(in[k])
		}
	}
	return out
}

// Key normalises a mapping key. ok is false when the key must be dropped.
func Key(k string) (string, bool) {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	nk := b.String()
	if nk == "" {
		return "", false
	}
	if _, bad := forbiddenKeys[strings.ToLower(nk)]; bad {
		return "", false
	}
	return nk, true
}

// Strings sanitises a single string.
func Strings(s string) string {
	s = stripControl(s)
	s = strings.TrimSpace(s)
	s = escape(s)
	if utf8.RuneCountInString(s) > MaxStringLength {
		s = strings.TrimSpace(truncate(s, MaxStringLength))
	}
	return s
}

func stripControl(s string) string {
	if !strings.ContainsFunc(s, isControl) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r < 0x20 || r == 0x7f
}

func escape(s string) string {
	if !strings.ContainsAny(s, `&<>"'`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '&':
			if startsEntity(s[i:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func startsEntity(s string) bool {
	for _, e := range entities {
		if strings.HasPrefix(s, e) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n runes without splitting an entity.
func truncate(s string, n int) string {
	count := 0
	cut := len(s)
	for i := range s {
		if count == n {
			cut = i
			break
		}
		count++
	}
	s = s[:cut]
	if amp := strings.LastIndexByte(s, '&'); amp >= 0 && !strings.Contains(s[amp:], ";") {
		s = s[:amp]
	}
	return s
}
