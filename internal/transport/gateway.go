package transport

import (
	"github.com/hongjun500/simlink/internal/observe"
	"github.com/hongjun500/simlink/internal/protocol"
)

// Gateway 网关接口，*SessionContext 的交互
// 负责处理会话事件和消息分发。三个回调都在该会话的 I/O goroutine 上调用，
// OnSessionClose 对每个会话恰好调用一次。
type Gateway interface {
	OnSessionOpen(sc *SessionContext)
	OnMessage(sc *SessionContext, msg *protocol.Message)
	OnSessionClose(sc *SessionContext)
}

// ManagedGateway 在业务网关外层维护会话表与连接数指标
type ManagedGateway struct {
	next           Gateway
	sessionManager *SessionManager
}

// NewManagedGateway 包装业务网关
func NewManagedGateway(next Gateway) *ManagedGateway {
	return &ManagedGateway{next: next, sessionManager: NewSessionManager()}
}

// OnSessionOpen 会话开启事件
func (g *ManagedGateway) OnSessionOpen(sc *SessionContext) {
	g.sessionManager.AddContext(sc)
	observe.AddConnections(1)
	g.next.OnSessionOpen(sc)
}

// OnMessage 处理收到的消息
func (g *ManagedGateway) OnMessage(sc *SessionContext, msg *protocol.Message) {
	g.next.OnMessage(sc, msg)
}

// OnSessionClose 会话关闭事件
func (g *ManagedGateway) OnSessionClose(sc *SessionContext) {
	defer g.sessionManager.Remove(sc.Id)
	observe.AddConnections(-1)
	g.next.OnSessionClose(sc)
	_ = sc.Close()
}

// GetSessionManager 获取会话管理器
func (g *ManagedGateway) GetSessionManager() *SessionManager {
	return g.sessionManager
}

// GetSession 获取指定会话
func (g *ManagedGateway) GetSession(sessionID string) (*SessionContext, bool) {
	return g.sessionManager.Get(sessionID)
}
