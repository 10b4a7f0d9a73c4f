package main

import (
	"context"
	"strings"

	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/transport"
)

// dial 根据地址选择传输：ws:// 或 wss:// 走 WebSocket，其余走 TCP
func dial(ctx context.Context, addr, framing, codecName string) (*transport.Client, error) {
	codec, err := protocol.NewCodec(codecName)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return transport.DialWebSocket(ctx, addr, codec)
	}
	return transport.DialTCP(ctx, addr, framing, codec)
}
