package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/pkg/logger"
)

// wsConn implements Session for WebSocket connections
type wsConn struct {
	id        string
	conn      *websocket.Conn
	box       *outbox
	closeOnce sync.Once
}

// WebSocketServer implements Transport using WebSocket connections.
// One WebSocket message carries exactly one protocol message.
type WebSocketServer struct {
	Codec protocol.MessageCodec
	Path  string // WebSocket endpoint path, defaults to "/ws"
}

func (w *wsConn) ID() string {
	return w.id
}

func (w *wsConn) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

func (w *wsConn) Send(m *protocol.Message) error {
	return w.box.send(m)
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.box.close()
		err = w.conn.Close()
	})
	return err
}

func (ws *WebSocketServer) Name() string {
	return WebSocket
}

func (ws *WebSocketServer) Start(ctx context.Context, addr string, gateway Gateway, opt Options) error {
	if ws.Codec == nil {
		ws.Codec = &protocol.JSONCodec{} // default to JSON
	}
	if ws.Path == "" {
		ws.Path = "/ws"
	}
	opt = opt.withDefaults()
	mux := http.NewServeMux()
	mux.HandleFunc(ws.Path, func(w http.ResponseWriter, r *http.Request) {
		ws.handleConnection(ctx, w, r, gateway, opt)
	})

	logger.L().Sugar().Infow("websocket_listen", "addr", addr, "path", ws.Path)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func (ws *WebSocketServer) messageType() int {
	if ws.Codec != nil && ws.Codec.Name() == protocol.Protobuf {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (ws *WebSocketServer) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, gateway Gateway, opt Options) {
	if ws.Codec == nil {
		ws.Codec = &protocol.JSONCodec{}
	}
	opt = opt.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		logger.L().Sugar().Warnw("ws_upgrade_error", "err", err)
		return
	}
	conn.SetReadLimit(int64(opt.MaxFrameSize))

	id := uuid.New().String()
	sess := &wsConn{
		id:   id,
		conn: conn,
		box:  newOutbox(ws.Codec, opt.OutBuffer),
	}
	sc := NewSessionContext(sess)
	gateway.OnSessionOpen(sc)

	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	// Writer goroutine: the only goroutine writing data frames
	msgType := ws.messageType()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case data, ok := <-sess.box.outgoing():
				if !ok {
					return
				}
				if opt.WriteTimeout > 0 {
					_ = conn.SetWriteDeadline(time.Now().Add(opt.WriteTimeout))
				}
				if err := conn.WriteMessage(msgType, data); err != nil {
					logger.L().Sugar().Warnw("ws_write_error", "session", id, "err", err)
					_ = sess.Close()
					return
				}
			case <-ticker.C:
				// Periodic ping
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
			}
		}
	}()

	// Setup heartbeat
	readTimeout := 60 * time.Second
	if opt.ReadTimeout > 0 {
		readTimeout = opt.ReadTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Reader loop
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.L().Sugar().Warnw("ws_read_error", "session", id, "err", err)
			}
			gateway.OnSessionClose(sc)
			_ = sess.Close()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := ws.Codec.Decode(data)
		if err != nil {
			logger.L().Sugar().Warnw("decode_error", "session", id, "err", err)
			observe.IncDropped("decode_error")
			continue
		}
		gateway.OnMessage(sc, msg)
	}
}
