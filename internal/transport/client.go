package transport

import (
	"context"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hongjun500/simlink/internal/protocol"
)

// Client 控制端一侧的连接，供命令行工具和测试使用
type Client struct {
	codec protocol.MessageCodec

	conn   net.Conn
	framer Framer

	ws      *websocket.Conn
	wsType  int
	writeMu sync.Mutex
}

// DialTCP 连接 TCP 传输
func DialTCP(ctx context.Context, addr string, framing string, codec protocol.MessageCodec) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	framer, err := NewFramer(framing, conn, defaultMaxFrameSize)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{codec: codec, conn: conn, framer: framer}, nil
}

// DialWebSocket 连接 WebSocket 传输，url 形如 ws://host:port/ws
func DialWebSocket(ctx context.Context, url string, codec protocol.MessageCodec) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	mt := websocket.TextMessage
	if codec.Name() == protocol.Protobuf {
		mt = websocket.BinaryMessage
	}
	return &Client{codec: codec, ws: conn, wsType: mt}, nil
}

// Send 编码并发送一条消息
func (c *Client) Send(m *protocol.Message) error {
	data, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	if c.ws != nil {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.ws.WriteMessage(c.wsType, data)
	}
	return c.framer.WriteFrame(data)
}

// Recv 阻塞读取下一条消息
func (c *Client) Recv() (*protocol.Message, error) {
	var data []byte
	var err error
	if c.ws != nil {
		_, data, err = c.ws.ReadMessage()
	} else {
		data, err = c.framer.ReadFrame()
	}
	if err != nil {
		return nil, err
	}
	return c.codec.Decode(data)
}

// RecvRaw 阻塞读取下一帧原始字节
func (c *Client) RecvRaw() ([]byte, error) {
	if c.ws != nil {
		_, data, err := c.ws.ReadMessage()
		return data, err
	}
	return c.framer.ReadFrame()
}

// SendRaw 发送未经编码的原始帧
func (c *Client) SendRaw(data []byte) error {
	if c.ws != nil {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.ws.WriteMessage(c.wsType, data)
	}
	return c.framer.WriteFrame(data)
}

func (c *Client) Close() error {
	if c.ws != nil {
		return c.ws.Close()
	}
	return c.conn.Close()
}
