package sync

import (
	"math"
	"testing"
	"time"
)

func TestValueOf_NormalizesDriverTypes(t *testing.T) {
	cases := []struct {
		in   interface{}
		kind Kind
		str  string
	}{
		{nil, KindNull, "NULL"},
		{int32(7), KindInt, "7"},
		{uint8(3), KindInt, "3"},
		{true, KindInt, "1"},
		{1.5, KindFloat, "1.5"},
		{"abc", KindString, "abc"},
		{[]byte{0x01, 0xff}, KindBytes, "0x01ff"},
		{uint64(math.MaxUint64), KindString, "18446744073709551615"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), KindString, "2024-01-02 03:04:05"},
	}
	for _, tc := range cases {
		v := ValueOf(tc.in)
		if v.Kind() != tc.kind {
			t.Fatalf("ValueOf(%#v) 类型错误：期望=%s 实际=%s", tc.in, tc.kind, v.Kind())
		}
		if v.String() != tc.str {
			t.Fatalf("ValueOf(%#v) 文本错误：期望=%q 实际=%q", tc.in, tc.str, v.String())
		}
	}
}

func TestBytesValue_Copies(t *testing.T) {
	raw := []byte("abc")
	v := BytesValue(raw)
	raw[0] = 'x'
	if got := v.Interface().([]byte); string(got) != "abc" {
		t.Fatalf("BytesValue 应复制底层数据，实际=%q", got)
	}
}

func TestValueKey_NumericEquivalence(t *testing.T) {
	same := []interface{}{int64(7), "7", 7.0, int32(7), " 7 "}
	want := ValueOf(same[0]).Key()
	for _, v := range same[1:] {
		if got := ValueOf(v).Key(); got != want {
			t.Fatalf("Key 不一致：%#v => %q，期望 %q", v, got, want)
		}
	}
	if ValueOf(7.5).Key() == ValueOf(int64(7)).Key() {
		t.Fatalf("7.5 与 7 不应视为同一主键")
	}
	if ValueOf("abc").Key() == ValueOf([]byte("abc")).Key() {
		t.Fatalf("字符串与二进制主键不应相等")
	}
}

func TestNewRow_LengthMismatch(t *testing.T) {
	if _, err := NewRow([]string{"id", "name"}, []interface{}{1}); err == nil {
		t.Fatalf("列数与值数量不一致时应返回错误")
	}
	row, err := NewRow([]string{"ID", "name"}, []interface{}{int64(1), "a"})
	if err != nil {
		t.Fatalf("NewRow 失败：%v", err)
	}
	if v, ok := row.Get("id"); !ok || v.String() != "1" {
		t.Fatalf("Get 应忽略大小写，实际=%v ok=%v", v, ok)
	}
}
