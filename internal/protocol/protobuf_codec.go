package protocol

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtobufCodec 将扁平记录映射为 google.protobuf.Struct 的二进制编码
type ProtobufCodec struct{}

func (p *ProtobufCodec) Name() string        { return Protobuf }
func (p *ProtobufCodec) ContentType() string { return ApplicationProtobuf }

func (p *ProtobufCodec) Encode(m *Message) ([]byte, error) {
	if m == nil || m.Type() == "" {
		return nil, fmt.Errorf("ProtobufCodec.Encode: message without msg_type")
	}
	st, err := structpb.NewStruct(plain(m.fields))
	if err != nil {
		return nil, fmt.Errorf("ProtobufCodec.Encode: failed to build struct (Type=%s): %w", m.Type(), err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("ProtobufCodec.Encode: failed to marshal protobuf message (Type=%s): %w", m.Type(), err)
	}
	return data, nil
}

func (p *ProtobufCodec) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Codec: Protobuf, Reason: "empty input"}
	}
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, &DecodeError{Codec: Protobuf, Reason: fmt.Sprintf("failed to unmarshal protobuf data (size=%d bytes)", len(data)), Err: err}
	}
	return validate(Protobuf, st.AsMap())
}

// plain 把 json.Number 还原为线上使用的文本形式，其余类型 structpb 可直接处理
func plain(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if n, ok := v.(json.Number); ok {
			out[k] = n.String()
			continue
		}
		out[k] = v
	}
	return out
}
