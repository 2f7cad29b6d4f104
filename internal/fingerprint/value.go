// Package fingerprint derives stable, keyed digests from arbitrary request
// payloads for duplicate suppression.
//
// Payloads are first lifted into a small tagged-variant Value (null, bool,
// number, string, sequence, mapping), canonicalized so that mapping key order
// never matters, serialized to a deterministic JSON text, and finally run
// through HMAC-SHA256 with a server-held secret.
//
// Usage:
//
//	fp := fingerprint.New([]byte(secret))
//	sum, err := fp.SumJSON(rawBody)
package fingerprint

import (
	"encoding/json"
	"reflect"
	"strconv"
)

// Kind enumerates the variants a Value can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is a single key/value entry of a mapping Value.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON-shaped tagged variant. The zero Value is null.
//
// Numbers keep their textual form; Encode normalizes that text exactly, so
// values decoded with json.Number lose no precision before hashing.
type Value struct {
	kind    Kind
	b       bool
	num     string
	str     string
	seq     []Value
	members []Member
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps the textual form of a JSON number.
func Number(n string) Value { return Value{kind: KindNumber, num: n} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Sequence wraps an ordered list of values.
func Sequence(items ...Value) Value { return Value{kind: KindSequence, seq: items} }

// Mapping wraps key/value members. Order is preserved until Canonicalize.
func Mapping(members ...Member) Value { return Value{kind: KindMapping, members: members} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Items returns the elements of a sequence (nil otherwise).
func (v Value) Items() []Value { return v.seq }

// Members returns the entries of a mapping (nil otherwise).
func (v Value) Members() []Member { return v.members }

// FromAny lifts a Go value into a Value.
//
// Decoded JSON shapes (map[string]any, []any, string, bool, float64,
// json.Number, nil) and the common integer types convert directly. Any other
// value is round-tripped through encoding/json first; values that cannot be
// marshaled become null.
//
// Maps and slices that reference themselves are truncated at the point the
// cycle closes: a cyclic mapping member is dropped and a cyclic sequence
// element becomes null, mirroring how JSON encoders treat undefined.
func FromAny(x any) Value {
	v, _ := fromAny(x, make(map[uintptr]struct{}))
	return v
}

// fromAny reports ok=false when x closes a cycle and must be truncated.
func fromAny(x any, path map[uintptr]struct{}) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Null(), true
	case bool:
		return Bool(t), true
	case string:
		return String(t), true
	case json.Number:
		return Number(t.String()), true
	case float64:
		return Number(strconv.FormatFloat(t, 'g', -1, 64)), true
	case float32:
		return Number(strconv.FormatFloat(float64(t), 'g', -1, 32)), true
	case int:
		return Number(strconv.FormatInt(int64(t), 10)), true
	case int32:
		return Number(strconv.FormatInt(int64(t), 10)), true
	case int64:
		return Number(strconv.FormatInt(t, 10)), true
	case uint:
		return Number(strconv.FormatUint(uint64(t), 10)), true
	case uint32:
		return Number(strconv.FormatUint(uint64(t), 10)), true
	case uint64:
		return Number(strconv.FormatUint(t, 10)), true
	case Value:
		return t, true
	case map[string]any:
		id, tracked := identity(t)
		if tracked {
			if _, seen := path[id]; seen {
				return Value{}, false
			}
			path[id] = struct{}{}
			defer delete(path, id)
		}
		members := make([]Member, 0, len(t))
		for k, elem := range t {
			ev, ok := fromAny(elem, path)
			if !ok {
				continue
			}
			members = append(members, Member{Key: k, Value: ev})
		}
		return Mapping(members...), true
	case []any:
		id, tracked := identity(t)
		if tracked {
			if _, seen := path[id]; seen {
				return Value{}, false
			}
			path[id] = struct{}{}
			defer delete(path, id)
		}
		items := make([]Value, len(t))
		for i, elem := range t {
			ev, ok := fromAny(elem, path)
			if !ok {
				ev = Null()
			}
			items[i] = ev
		}
		return Sequence(items...), true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return Null(), true
		}
		decoded, err := decodeJSON(raw)
		if err != nil {
			return Null(), true
		}
		return fromAny(decoded, path)
	}
}

// identity returns the address backing a map or non-empty slice. Empty
// slices share no storage worth tracking and cannot close a cycle.
func identity(x any) (uintptr, bool) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	case reflect.Slice:
		if rv.Len() == 0 {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}
