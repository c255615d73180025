package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// Value is a closed tree of untrusted input. Only the field matching Kind
// is meaningful.
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value                      { return Value{kind: KindNull} }
func Bool(b bool) Value                { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value       { return Value{kind: KindNumber, n: n} }
func String(s string) Value            { return Value{kind: KindString, s: s} }
func Sequence(items ...Value) Value    { return Value{kind: KindSequence, seq: items} }
func Mapping(m map[string]Value) Value { return Value{kind: KindMapping, m: m} }

func (v Value) Kind() Kind               { return v.kind }
func (v Value) Bool() bool               { return v.b }
func (v Value) Number() json.Number      { return v.n }
func (v Value) Str() string              { return v.s }
func (v Value) Items() []Value           { return v.seq }
func (v Value) Fields() map[string]Value { return v.m }

// Keys returns mapping keys in sorted order so walks are deterministic.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a mapping field.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	f, ok := v.m[key]
	return f, ok
}

// FromJSON decodes a JSON document into a Value. Numbers keep their textual form.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("unexpected data after JSON document")
	}
	return FromAny(raw)
}

// FromAny converts the output of encoding/json (decoded with UseNumber) into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Number(json.Number(fmt.Sprint(t))), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			item, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Sequence(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			item, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = item
		}
		return Mapping(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// FromQuery maps query parameters to a Value: single values become strings,
// repeated parameters become sequences.
func FromQuery(q url.Values) Value {
	m := make(map[string]Value, len(q))
	for k, vals := range q {
		if len(vals) == 1 {
			m[k] = String(vals[0])
			continue
		}
		items := make([]Value, len(vals))
		for i, s := range vals {
			items[i] = String(s)
		}
		m[k] = Sequence(items...)
	}
	return Mapping(m)
}

// ToQuery is the inverse of FromQuery. Non-string leaves are rendered with
// their JSON text.
func ToQuery(v Value) url.Values {
	out := url.Values{}
	for _, k := range v.Keys() {
		f := v.m[k]
		if f.kind == KindSequence {
			for _, item := range f.seq {
				out.Add(k, item.text())
			}
			continue
		}
		out.Add(k, f.text())
	}
	return out
}

// FromStrings maps a flat string map (path parameters) to a Value.
func FromStrings(in map[string]string) Value {
	m := make(map[string]Value, len(in))
	for k, s := range in {
		m[k] = String(s)
	}
	return Mapping(m)
}

// ToStrings is the inverse of FromStrings.
func ToStrings(v Value) map[string]string {
	out := make(map[string]string, len(v.m))
	for k, f := range v.m {
		out[k] = f.text()
	}
	return out
}

func (v Value) text() string {
	if v.kind == KindString {
		return v.s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// Interface converts back to plain Go values.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, f := range v.m {
			out[k] = f.Interface()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, f := range v.m {
			g, ok := o.m[k]
			if !ok || !f.Equal(g) {
				return false
			}
		}
		return true
	}
	return false
}
