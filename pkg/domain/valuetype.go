package domain

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"
)

// ValueType is the logical type of a property value.
type ValueType string

// Logical value types and the Go types that carry them.
const (
	TypeInteger   ValueType = "integer"   // int
	TypeLong      ValueType = "long"      // int64
	TypeDouble    ValueType = "double"    // float64
	TypeString    ValueType = "string"    // string
	TypeCharacter ValueType = "character" // rune
	TypeBoolean   ValueType = "boolean"   // bool
	TypeDate      ValueType = "date"      // time.Time
	TypeTimestamp ValueType = "timestamp" // time.Time
	TypeTime      ValueType = "time"      // time.Time
	TypeBlob      ValueType = "blob"      // []byte
	TypeEntity    ValueType = "entity"    // *Entity
	TypeObject    ValueType = "object"    // any
)

// Layouts used when temporal values are parsed from or written as text.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = time.RFC3339Nano
	TimeLayout      = "15:04:05"
)

var validValueTypes = map[ValueType]bool{
	TypeInteger:   true,
	TypeLong:      true,
	TypeDouble:    true,
	TypeString:    true,
	TypeCharacter: true,
	TypeBoolean:   true,
	TypeDate:      true,
	TypeTimestamp: true,
	TypeTime:      true,
	TypeBlob:      true,
	TypeEntity:    true,
	TypeObject:    true,
}

// IsValidValueType reports whether the given string names a logical type.
func IsValidValueType(vt string) bool {
	return validValueTypes[ValueType(vt)]
}

func (t ValueType) IsInteger() bool   { return t == TypeInteger }
func (t ValueType) IsLong() bool      { return t == TypeLong }
func (t ValueType) IsDouble() bool    { return t == TypeDouble }
func (t ValueType) IsString() bool    { return t == TypeString }
func (t ValueType) IsCharacter() bool { return t == TypeCharacter }
func (t ValueType) IsBoolean() bool   { return t == TypeBoolean }
func (t ValueType) IsDate() bool      { return t == TypeDate }
func (t ValueType) IsTimestamp() bool { return t == TypeTimestamp }
func (t ValueType) IsTime() bool      { return t == TypeTime }
func (t ValueType) IsBlob() bool      { return t == TypeBlob }
func (t ValueType) IsEntity() bool    { return t == TypeEntity }

// IsNumerical reports whether t is integer, long or double.
func (t ValueType) IsNumerical() bool {
	return t == TypeInteger || t == TypeLong || t == TypeDouble
}

// IsTemporal reports whether t is date, timestamp or time.
func (t ValueType) IsTemporal() bool {
	return t == TypeDate || t == TypeTimestamp || t == TypeTime
}

// DefaultValue returns the zero value for a logical type. Types without a
// meaningful zero (temporal, entity, object) return nil.
func DefaultValue(t ValueType) (any, error) {
	switch t {
	case TypeInteger:
		return 0, nil
	case TypeLong:
		return int64(0), nil
	case TypeDouble:
		return float64(0), nil
	case TypeString:
		return "", nil
	case TypeCharacter:
		return rune(0), nil
	case TypeBoolean:
		return false, nil
	case TypeBlob:
		return []byte{}, nil
	case TypeDate, TypeTimestamp, TypeTime, TypeEntity, TypeObject:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown value type %q", ErrTypeMismatch, t)
}

// ParseValue converts a textual representation to a value of type t. An
// empty string parses to nil for every type except string.
func ParseValue(t ValueType, s string) (any, error) {
	if s == "" && t != TypeString {
		return nil, nil
	}
	var (
		v   any
		err error
	)
	switch t {
	case TypeInteger:
		v, err = strconv.Atoi(s)
	case TypeLong:
		v, err = strconv.ParseInt(s, 10, 64)
	case TypeDouble:
		v, err = strconv.ParseFloat(s, 64)
	case TypeBoolean:
		v, err = strconv.ParseBool(s)
	case TypeString, TypeObject:
		v = s
	case TypeCharacter:
		r, size := utf8.DecodeRuneInString(s)
		if size != len(s) {
			return nil, fmt.Errorf("%w: %q is not a single character", ErrTypeMismatch, s)
		}
		v = r
	case TypeDate:
		v, err = time.Parse(DateLayout, s)
	case TypeTimestamp:
		v, err = time.Parse(TimestampLayout, s)
	case TypeTime:
		v, err = time.Parse(TimeLayout, s)
	case TypeBlob:
		v = []byte(s)
	default:
		return nil, fmt.Errorf("%w: cannot parse %s from text", ErrTypeMismatch, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s %q: %v", ErrTypeMismatch, t, s, err)
	}
	return v, nil
}

// normalize converts v to the canonical Go type for t. Integer kinds are
// converted for integer and long, float32 is widened for double. The second
// result is false when v cannot carry a value of type t.
func normalize(t ValueType, v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch t {
	case TypeInteger:
		n, ok := toInt64(v)
		if !ok || n > math.MaxInt || n < math.MinInt {
			return nil, false
		}
		return int(n), true
	case TypeLong:
		n, ok := toInt64(v)
		return n, ok
	case TypeDouble:
		switch x := v.(type) {
		case float64:
			return x, true
		case float32:
			return float64(x), true
		}
		if n, ok := toInt64(v); ok {
			return float64(n), true
		}
		return nil, false
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeCharacter:
		switch x := v.(type) {
		case rune:
			return x, true
		case string:
			r, size := utf8.DecodeRuneInString(x)
			if size > 0 && size == len(x) {
				return r, true
			}
		}
		return nil, false
	case TypeBoolean:
		b, ok := v.(bool)
		return b, ok
	case TypeDate, TypeTimestamp, TypeTime:
		tm, ok := v.(time.Time)
		return tm, ok
	case TypeBlob:
		b, ok := v.([]byte)
		return b, ok
	case TypeEntity:
		e, ok := v.(*Entity)
		if !ok || e == nil {
			return nil, e == nil && ok
		}
		return e, true
	case TypeObject:
		return v, true
	}
	return nil, false
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	n, ok := toInt64(v)
	return float64(n), ok
}

// valueEquals compares two property values. Byte slices compare by content,
// times by instant and entities by key.
func valueEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case *Entity:
		y, ok := b.(*Entity)
		return ok && x.Equal(y)
	case int, int64, float64, string, bool, rune:
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
