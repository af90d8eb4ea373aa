package sync

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the scalar held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

const timeLayout = "2006-01-02 15:04:05.999999"

// Value is a tagged scalar read from a source row.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

func NullValue() Value           { return Value{kind: KindNull} }
func IntValue(v int64) Value     { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

func BytesValue(v []byte) Value {
	if v == nil {
		return NullValue()
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBytes, b: cp}
}

// ValueOf converts a driver value into a Value.
func ValueOf(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return NullValue()
	case Value:
		return val
	case int64:
		return IntValue(val)
	case int:
		return IntValue(int64(val))
	case int32:
		return IntValue(int64(val))
	case int16:
		return IntValue(int64(val))
	case int8:
		return IntValue(int64(val))
	case uint8:
		return IntValue(int64(val))
	case uint16:
		return IntValue(int64(val))
	case uint32:
		return IntValue(int64(val))
	case uint:
		return uintValue(uint64(val))
	case uint64:
		return uintValue(val)
	case float64:
		return FloatValue(val)
	case float32:
		return FloatValue(float64(val))
	case bool:
		if val {
			return IntValue(1)
		}
		return IntValue(0)
	case string:
		return StringValue(val)
	case []byte:
		return BytesValue(val)
	case time.Time:
		return StringValue(val.Format(timeLayout))
	case fmt.Stringer:
		return StringValue(val.String())
	default:
		return StringValue(fmt.Sprintf("%v", val))
	}
}

func uintValue(v uint64) Value {
	if v > math.MaxInt64 {
		return StringValue(strconv.FormatUint(v, 10))
	}
	return IntValue(int64(v))
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Interface returns the value in the form handed to database drivers.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.b
	default:
		return nil
	}
}

// Int reports the value as an integer when it is one, including integral
// floats and decimal strings.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < math.MaxInt64 {
			return int64(v.f), true
		}
	case KindString:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Key is the identity used to compare ids across the two databases, so that
// int64(7), "7" and 7.0 compare equal.
func (v Value) Key() string {
	if n, ok := v.Int(); ok {
		return "i:" + strconv.FormatInt(n, 10)
	}
	switch v.kind {
	case KindNull:
		return "null"
	case KindFloat:
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBytes:
		return "b:" + hex.EncodeToString(v.b)
	default:
		return "s:" + v.s
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBytes:
		return "0x" + hex.EncodeToString(v.b)
	default:
		return v.s
	}
}

// Row is one source record: column names in read order and their values.
type Row struct {
	columns []string
	values  []Value
}

// NewRow pairs columns with driver values. Both slices must have the same length.
func NewRow(columns []string, values []interface{}) (Row, error) {
	if len(columns) != len(values) {
		return Row{}, fmt.Errorf("列数与值数量不一致：列=%d 值=%d", len(columns), len(values))
	}
	r := Row{columns: make([]string, len(columns)), values: make([]Value, len(values))}
	copy(r.columns, columns)
	for i, v := range values {
		r.values[i] = ValueOf(v)
	}
	return r, nil
}

func (r Row) Len() int          { return len(r.columns) }
func (r Row) Columns() []string { return r.columns }
func (r Row) Values() []Value   { return r.values }

// Get looks a column up by name, case-insensitively.
func (r Row) Get(name string) (Value, bool) {
	for i, c := range r.columns {
		if strings.EqualFold(c, name) {
			return r.values[i], true
		}
	}
	return Value{}, false
}
