// Package namelist reads and writes the Fortran namelist text used by MESA
// inlists and defaults files.
package namelist

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindText
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "invalid"
	}
}

// Value is a decoded namelist scalar. The zero Value holds no kind.
type Value struct {
	kind Kind
	b    bool
	s    string
	i    int64
	f    float64
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Text returns a string Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v holds no value at all.
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// Bool returns the boolean held by v and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Text returns the string held by v and whether v is a string.
func (v Value) Text() (string, bool) { return v.s, v.kind == KindText }

// Int returns the integer held by v and whether v is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float held by v and whether v is a float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Interface returns the native Go value: bool, string, int64 or float64.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindText:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	default:
		return nil
	}
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v == o
}

// String returns the namelist encoding of v, or a placeholder for the zero Value.
func (v Value) String() string {
	s, err := Encode(v)
	if err != nil {
		return "<invalid>"
	}
	return s
}

// Decode converts the text of a namelist value into a Value.
//
// Rules are applied in order: dotted booleans, quoted text, then a numeric
// scan that yields a Float when a decimal point or exponent is present and an
// Int otherwise. Fortran double precision exponents (d/D) are accepted.
func Decode(text string) (Value, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Value{}, &ConversionError{Text: text, Reason: "empty value"}
	}

	if len(s) >= 2 && s[0] == '.' && s[len(s)-1] == '.' {
		inner := strings.ToLower(s[1 : len(s)-1])
		return Bool(inner == "true" || inner == "t"), nil
	}

	if s[0] == '\'' || s[0] == '"' {
		if len(s) < 2 || s[len(s)-1] != s[0] {
			return Value{}, &ConversionError{Text: text, Reason: "unterminated string"}
		}
		return Text(s[1 : len(s)-1]), nil
	}

	num, ok := scanNumber(s)
	if !ok {
		return Value{}, &ConversionError{Text: text}
	}
	if num.float {
		f, err := strconv.ParseFloat(num.normalized, 64)
		if err != nil {
			return Value{}, &ConversionError{Text: text, Reason: err.Error()}
		}
		return Float(f), nil
	}
	i, err := strconv.ParseInt(num.normalized, 10, 64)
	if err != nil {
		return Value{}, &ConversionError{Text: text, Reason: err.Error()}
	}
	return Int(i), nil
}

type scannedNumber struct {
	normalized string
	float      bool
}

// scanNumber walks s as [sign] digits [. digits] [exp [sign] digits] and
// reports whether the whole string was consumed.
func scanNumber(s string) (scannedNumber, bool) {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		b.WriteByte(s[i])
		i++
	}

	mantissa := 0
	for i < len(s) && isDigit(s[i]) {
		b.WriteByte(s[i])
		i++
		mantissa++
	}

	isFloat := false
	if i < len(s) && s[i] == '.' {
		isFloat = true
		b.WriteByte('.')
		i++
		for i < len(s) && isDigit(s[i]) {
			b.WriteByte(s[i])
			i++
			mantissa++
		}
	}
	if mantissa == 0 {
		return scannedNumber{}, false
	}

	if i < len(s) {
		switch s[i] {
		case 'd', 'e':
			b.WriteByte('e')
		case 'D', 'E':
			b.WriteByte('E')
		default:
			return scannedNumber{}, false
		}
		isFloat = true
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			b.WriteByte(s[i])
			i++
		}
		exp := 0
		for i < len(s) && isDigit(s[i]) {
			b.WriteByte(s[i])
			i++
			exp++
		}
		if exp == 0 {
			return scannedNumber{}, false
		}
	}

	if i != len(s) {
		return scannedNumber{}, false
	}
	return scannedNumber{normalized: b.String(), float: isFloat}, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Encode converts v into namelist text.
func Encode(v Value) (string, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return ".true.", nil
		}
		return ".false.", nil
	case KindText:
		return "'" + v.s + "'", nil
	case KindInt:
		return strconv.FormatInt(v.i, 10), nil
	case KindFloat:
		return encodeFloat(v.f)
	default:
		return "", &ConversionError{Kind: v.kind, Reason: "no encoding for value kind"}
	}
}

// encodeFloat writes MESA style reals. Values whose four-decimal scientific
// form has an exponent of 00, 01 (or e.g. 100, 101) are written plainly;
// everything else uses the compact d exponent, e.g. 1.2345d5 or 1.0000d-2.
func encodeFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &ConversionError{Kind: KindFloat, Text: strconv.FormatFloat(f, 'g', -1, 64), Reason: "not a finite number"}
	}

	sci := strconv.FormatFloat(f, 'E', 4, 64)
	last := sci[len(sci)-1]
	prev := sci[len(sci)-2]
	if last < '2' && prev == '0' {
		return plainFloat(f), nil
	}

	mantissa, exponent, _ := strings.Cut(sci, "E")
	if exact, _ := strconv.ParseFloat(sci, 64); exact != f {
		shortest := strconv.FormatFloat(f, 'E', -1, 64)
		mantissa, exponent, _ = strings.Cut(shortest, "E")
		if !strings.Contains(mantissa, ".") {
			mantissa += ".0000"
		}
	}

	sign := ""
	switch exponent[0] {
	case '+':
		exponent = exponent[1:]
	case '-':
		sign = "-"
		exponent = exponent[1:]
	}
	exponent = strings.TrimLeft(exponent, "0")
	if exponent == "" {
		exponent = "0"
	}
	return mantissa + "d" + sign + exponent, nil
}

// plainFloat mirrors the shortest round-trip representation used for reals
// close to unity: fixed notation with a trailing .0 for integral values and
// exponent notation only for extreme magnitudes.
func plainFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FromAny converts a native Go value into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, &ConversionError{Text: strconv.FormatUint(t, 10), Reason: "integer overflows int64"}
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	default:
		return Value{}, &ConversionError{Text: fmt.Sprintf("%v", x), Reason: fmt.Sprintf("unsupported type %T", x)}
	}
}

// Coerce converts v to the wanted kind where that is lossless: identical
// kinds pass through and integers widen to floats.
func Coerce(v Value, want Kind) (Value, bool) {
	switch {
	case v.kind == want:
		return v, true
	case v.kind == KindInt && want == KindFloat:
		return Float(float64(v.i)), true
	default:
		return v, false
	}
}

// ParseAs decodes literal text typed by a user for a parameter of a known
// kind. Bare words are accepted as text and integers widen to floats.
func ParseAs(text string, want Kind) (Value, error) {
	v, err := Decode(text)
	if err != nil {
		if want == KindText {
			return Text(strings.TrimSpace(text)), nil
		}
		if want == KindBool {
			if b, perr := strconv.ParseBool(strings.TrimSpace(text)); perr == nil {
				return Bool(b), nil
			}
		}
		return Value{}, err
	}
	if want == KindInvalid {
		return v, nil
	}
	if c, ok := Coerce(v, want); ok {
		return c, nil
	}
	if want == KindText {
		return Text(strings.TrimSpace(text)), nil
	}
	return v, nil
}
