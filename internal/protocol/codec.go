package protocol

import "fmt"

const (
	Json     = "json"
	Protobuf = "protobuf"
)

const (
	ApplicationJson     = "application/json"
	ApplicationProtobuf = "application/x-protobuf"
)

var codecFactories = map[string]func() MessageCodec{
	Json:     func() MessageCodec { return &JSONCodec{} },
	Protobuf: func() MessageCodec { return &ProtobufCodec{} },
}

// MessageCodec 单条消息的编码解码器，帧边界由传输层负责
type MessageCodec interface {
	Name() string
	ContentType() string
	Encode(m *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// NewCodec 根据名称创建编解码器
func NewCodec(name string) (MessageCodec, error) {
	if factory, ok := codecFactories[name]; ok {
		return factory(), nil
	}
	return nil, fmt.Errorf("unsupported codec: %s", name)
}

// validate 解码后的统一校验：msg_type 必须是非空字符串
func validate(codec string, fields map[string]any) (*Message, error) {
	raw, ok := fields[FieldMsgType]
	if !ok || raw == nil {
		return nil, &DecodeError{Codec: codec, Reason: "missing msg_type"}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil, &DecodeError{Codec: codec, Reason: fmt.Sprintf("msg_type must be a non-empty string, got %T", raw)}
	}
	return newDecoded(fields), nil
}
