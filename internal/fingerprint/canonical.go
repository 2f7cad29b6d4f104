package fingerprint

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize returns an ordering-independent copy of v: mapping members are
// sorted by key (byte-wise) and every nested value is canonicalized. Sequence
// order is significant and preserved. Scalars pass through unchanged.
//
// When a mapping carries the same key twice, the last occurrence wins, which
// matches how encoding/json decodes duplicate object keys.
func Canonicalize(v Value) Value {
	switch v.kind {
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, it := range v.seq {
			items[i] = Canonicalize(it)
		}
		return Sequence(items...)
	case KindMapping:
		byKey := make(map[string]Value, len(v.members))
		for _, m := range v.members {
			byKey[m.Key] = m.Value
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			members[i] = Member{Key: k, Value: Canonicalize(byKey[k])}
		}
		return Mapping(members...)
	default:
		return v
	}
}

// Encode serializes v as compact JSON text. Callers wanting a stable form
// must Canonicalize first; Encode itself never reorders.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.Bytes()
}

func encode(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(normalizeNumber(v.num))
	case KindString:
		encodeString(buf, v.str)
	case KindSequence:
		buf.WriteByte('[')
		for i, it := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			encode(buf, it)
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, m.Key)
			buf.WriteByte(':')
			encode(buf, m.Value)
		}
		buf.WriteByte('}')
	}
}

func encodeString(buf *bytes.Buffer, s string) {
	// json.Marshal of a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// normalizeNumber maps equivalent spellings ("1", "1.0", "1e0") to one form
// without going through float64, so distinct values never merge. The decimal
// point is placed literally while the value has at most 21 integral digits
// and no more than 6 leading fractional zeros; other values use exponent
// form ("1e+21", "1.5e-7"). Text that is not a JSON number is returned as is.
func normalizeNumber(n string) string {
	neg, digits, exp, ok := splitDecimal(n)
	if !ok {
		return n
	}

	// value = digits × 10^exp, with no leading or trailing zero digits.
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0"
	}
	trimmed := strings.TrimRight(digits, "0")
	exp += int64(len(digits) - len(trimmed))
	digits = trimmed

	// point is the number of digits before the decimal point.
	point := int64(len(digits)) + exp

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	switch {
	case exp >= 0 && point <= 21:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", int(exp)))
	case point > 0 && point <= 21:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	case point <= 0 && point > -6:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", int(-point)))
		b.WriteString(digits)
	default:
		b.WriteByte(digits[0])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if point-1 >= 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.FormatInt(point-1, 10))
	}
	return b.String()
}

// splitDecimal parses a JSON number into its sign, the concatenated integer
// and fraction digits, and the power of ten that scales them.
func splitDecimal(n string) (neg bool, digits string, exp int64, ok bool) {
	s := n
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	mant, expPart := s, ""
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mant, expPart = s[:i], s[i+1:]
		if expPart == "" {
			return false, "", 0, false
		}
	}
	intPart, frac := mant, ""
	if i := strings.IndexByte(mant, '.'); i >= 0 {
		intPart, frac = mant[:i], mant[i+1:]
		if frac == "" {
			return false, "", 0, false
		}
	}
	if intPart == "" || !allDigits(intPart) || !allDigits(frac) {
		return false, "", 0, false
	}
	if expPart != "" {
		e, err := strconv.ParseInt(strings.TrimPrefix(expPart, "+"), 10, 32)
		if err != nil || strings.HasPrefix(expPart, "+-") || strings.HasPrefix(expPart, "-+") {
			return false, "", 0, false
		}
		exp = e
	}
	return neg, intPart + frac, exp - int64(len(frac)), true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// decodeJSON parses raw into generic Go shapes, keeping numbers as
// json.Number. Trailing data after the first value is rejected.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return out, nil
}
