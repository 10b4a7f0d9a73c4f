package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/pkg/logger"
)

// tcpSession implements Session on top of a framed net.Conn
type tcpSession struct {
	id        string
	conn      net.Conn
	framer    Framer
	box       *outbox
	closeOnce sync.Once
}

func (s *tcpSession) ID() string { return s.id }
func (s *tcpSession) RemoteAddr() string {
	if s.conn != nil {
		return s.conn.RemoteAddr().String()
	}
	return ""
}
func (s *tcpSession) Send(m *protocol.Message) error { return s.box.send(m) }

func (s *tcpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.box.close()
		err = s.conn.Close()
	})
	return err
}

// TCPServer implements Transport using line or length-prefixed frames and MessageCodec on top
type TCPServer struct{ Codec protocol.MessageCodec }

func (s *TCPServer) Name() string { return Tcp }

func (s *TCPServer) Start(ctx context.Context, addr string, gateway Gateway, opt Options) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.L().Sugar().Infow("tcp_listen", "addr", ln.Addr().String(), "framing", opt.withDefaults().Framing)
	return s.Serve(ctx, ln, gateway, opt)
}

// Serve 在 ln 上接受连接，直到 ctx 结束
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener, gateway Gateway, opt Options) error {
	opt = opt.withDefaults()
	if s.Codec == nil {
		s.Codec = &protocol.JSONCodec{}
	}
	if opt.Framing == FramingLine && s.Codec.Name() != protocol.Json {
		_ = ln.Close()
		return NewTpError(1005, "Invalid framing", "line framing requires the json codec")
	}
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logger.L().Sugar().Warnw("tcp_accept_error", "err", err)
			continue
		}
		go s.serveConn(ctx, conn, gateway, opt)
	}
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn, gateway Gateway, opt Options) {
	id := uuid.New().String()
	framer, _ := NewFramer(opt.Framing, conn, opt.MaxFrameSize)
	sess := &tcpSession{id: id, conn: conn, framer: framer, box: newOutbox(s.Codec, opt.OutBuffer)}
	sc := NewSessionContext(sess)
	gateway.OnSessionOpen(sc)

	// ctx 结束时关闭连接，读循环随之退出
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	// writer: drain session outgoing to the framed connection
	go func() {
		for data := range sess.box.outgoing() {
			if opt.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(opt.WriteTimeout))
			}
			if err := framer.WriteFrame(data); err != nil {
				logger.L().Sugar().Warnw("tcp_write_error", "session", id, "err", err)
				_ = sess.Close()
				return
			}
		}
	}()

	// reader loop
	for {
		if opt.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(opt.ReadTimeout))
		}
		raw, err := framer.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				logger.L().Sugar().Warnw("tcp_frame_too_large", "session", id, "err", err)
				observe.IncDropped("decode_error")
				if opt.Framing == FramingLine {
					// 行分帧可以跳过超长的一行继续读
					continue
				}
			} else if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				logger.L().Sugar().Warnw("tcp_read_error", "session", id, "err", err)
			}
			gateway.OnSessionClose(sc)
			_ = sess.Close()
			return
		}
		msg, err := s.Codec.Decode(raw)
		if err != nil {
			logger.L().Sugar().Warnw("decode_error", "session", id, "err", err)
			observe.IncDropped("decode_error")
			continue
		}
		gateway.OnMessage(sc, msg)
	}
}
