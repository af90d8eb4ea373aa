package db

import (
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalizeQueryValue normalizes driver-returned values before they are handed to the sync engine.
func normalizeQueryValue(v interface{}) interface{} {
	return normalizeQueryValueWithDBType(v, "")
}

// normalizeQueryValueWithDBType 结合列类型处理 []byte：
// BIT 类型按大端整数解析，二进制列保留原始字节，其余可读文本转为 string。
func normalizeQueryValueWithDBType(v interface{}, dbType string) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if b == nil {
		return nil
	}

	typeName := strings.ToUpper(strings.TrimSpace(dbType))
	switch {
	case strings.HasPrefix(typeName, "BIT"):
		return bitBytesToValue(b)
	case isBinaryType(typeName):
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}

	if typeName == "" && len(b) == 1 && b[0] <= 1 {
		// 部分驱动不上报 BIT(1) 的类型名
		return int64(b[0])
	}
	return bytesToValue(b)
}

func isBinaryType(typeName string) bool {
	switch typeName {
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BYTEA", "IMAGE", "RAW", "LONG RAW":
		return true
	}
	return false
}

func bitBytesToValue(b []byte) interface{} {
	n := new(big.Int).SetBytes(b)
	if n.IsInt64() {
		return n.Int64()
	}
	return n.String()
}

func bytesToValue(b []byte) interface{} {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		s := string(b)
		if isMostlyPrintable(s) {
			return s
		}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func isMostlyPrintable(s string) bool {
	if s == "" {
		return true
	}

	total := 0
	printable := 0
	for _, r := range s {
		total++
		switch r {
		case '\n', '\r', '\t':
			printable++
			continue
		default:
		}
		if unicode.IsPrint(r) {
			printable++
		}
	}

	// 允许少量不可见字符，避免把正常文本误判为二进制。
	return printable*100 >= total*90
}
