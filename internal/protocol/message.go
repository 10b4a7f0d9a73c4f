package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Message 扁平的键值记录，msg_type 为必填判别字段。
//
// 入站消息由 codec 解码后只读；出站消息通过 NewMessage + Set 构造。
// 数值字段在线上按字符串传输，读取时使用与区域设置无关的十进制格式解析。
type Message struct {
	fields map[string]any
}

// NewMessage 创建一条出站消息
func NewMessage(t MsgType) *Message {
	return &Message{fields: map[string]any{FieldMsgType: string(t)}}
}

func newDecoded(fields map[string]any) *Message {
	return &Message{fields: fields}
}

// Type 返回 msg_type
func (m *Message) Type() MsgType {
	if m == nil {
		return ""
	}
	s, _ := m.fields[FieldMsgType].(string)
	return MsgType(s)
}

// Has 判断字段是否存在（JSON null 视为不存在）
func (m *Message) Has(key string) bool {
	if m == nil {
		return false
	}
	v, ok := m.fields[key]
	return ok && v != nil
}

// Len 字段个数（包含 msg_type）
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.fields)
}

// Raw 返回字段原始值
func (m *Message) Raw(key string) (any, bool) {
	if !m.Has(key) {
		return nil, false
	}
	return m.fields[key], true
}

// Fields 返回字段的浅拷贝，供 codec 使用
func (m *Message) Fields() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// Set 设置出站字段，支持 string / 整型 / 浮点 / bool / []byte(base64) / 嵌套记录
func (m *Message) Set(key string, v any) *Message {
	switch x := v.(type) {
	case int:
		m.fields[key] = int64(x)
	case int32:
		m.fields[key] = int64(x)
	case float32:
		m.fields[key] = float64(x)
	case []byte:
		m.fields[key] = base64.StdEncoding.EncodeToString(x)
	default:
		m.fields[key] = v
	}
	return m
}

// String 读取字符串字段；数值与布尔按文本返回
func (m *Message) String(key string) (string, error) {
	v, ok := m.Raw(key)
	if !ok {
		return "", missing(key, "string")
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", invalid(key, "string", fmt.Errorf("unexpected %T", v))
	}
}

// Float 读取浮点字段，小数点固定为 '.'，拒绝 NaN/Inf
func (m *Message) Float(key string) (float64, error) {
	v, ok := m.Raw(key)
	if !ok {
		return 0, missing(key, "float")
	}
	var f float64
	switch x := v.(type) {
	case string:
		p, err := parseFloat(x)
		if err != nil {
			return 0, invalid(key, "float", err)
		}
		f = p
	case json.Number:
		p, err := parseFloat(x.String())
		if err != nil {
			return 0, invalid(key, "float", err)
		}
		f = p
	case float64:
		f = x
	case int64:
		f = float64(x)
	default:
		return 0, invalid(key, "float", fmt.Errorf("unexpected %T", v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(key, "float", fmt.Errorf("non-finite value"))
	}
	return f, nil
}

// Int 读取整数字段
func (m *Message) Int(key string) (int, error) {
	v, ok := m.Raw(key)
	if !ok {
		return 0, missing(key, "int")
	}
	switch x := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, invalid(key, "int", err)
		}
		return n, nil
	case json.Number:
		n, err := strconv.Atoi(x.String())
		if err != nil {
			return 0, invalid(key, "int", err)
		}
		return n, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return 0, invalid(key, "int", fmt.Errorf("not an integer: %v", x))
		}
		return int(x), nil
	default:
		return 0, invalid(key, "int", fmt.Errorf("unexpected %T", v))
	}
}

// Bool 读取布尔字段
func (m *Message) Bool(key string) (bool, error) {
	v, ok := m.Raw(key)
	if !ok {
		return false, missing(key, "bool")
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, invalid(key, "bool", err)
		}
		return b, nil
	default:
		return false, invalid(key, "bool", fmt.Errorf("unexpected %T", v))
	}
}

// FloatOr 可选字段：缺失返回默认值，存在但非法返回 FieldError
func (m *Message) FloatOr(key string, def float64) (float64, error) {
	if !m.Has(key) {
		return def, nil
	}
	return m.Float(key)
}

// IntOr 可选整数字段
func (m *Message) IntOr(key string, def int) (int, error) {
	if !m.Has(key) {
		return def, nil
	}
	return m.Int(key)
}

// StringOr 可选字符串字段
func (m *Message) StringOr(key string, def string) (string, error) {
	if !m.Has(key) {
		return def, nil
	}
	return m.String(key)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	// strconv 也接受十六进制浮点和 inf/nan，这里只接受十进制
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return 0, fmt.Errorf("not a decimal number: %q", s)
		}
	}
	return strconv.ParseFloat(s, 64)
}
