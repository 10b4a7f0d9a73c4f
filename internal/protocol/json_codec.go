package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec 每条消息一个 JSON 对象
type JSONCodec struct{}

func (JSONCodec) Name() string        { return Json }
func (JSONCodec) ContentType() string { return ApplicationJson }

func (JSONCodec) Encode(m *Message) ([]byte, error) {
	if m == nil || m.Type() == "" {
		return nil, fmt.Errorf("JSONCodec.Encode: message without msg_type")
	}
	return json.Marshal(m.fields)
}

func (JSONCodec) Decode(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Codec: Json, Reason: "empty input"}
	}
	if trimmed[0] != '{' {
		return nil, &DecodeError{Codec: Json, Reason: "payload not object"}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, &DecodeError{Codec: Json, Reason: "malformed json", Err: err}
	}
	// 一个单元只允许一个对象
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DecodeError{Codec: Json, Reason: "trailing data after object"}
	}
	return validate(Json, fields)
}
