package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// ServerContext 进程内全部可变服务状态的显式载体：固定房间集合、
// 在线会话表、client_id 分配器与全局停止标志。
// 不用包级单例，按引用传给各处理器，便于测试与优雅停机。
type ServerContext struct {
	cfg      *Config
	registry *Registry

	mu      sync.RWMutex
	clients map[uint32]*ClientSession

	nextID uint32 // 原子递增；分配出的 id 恒非零
	stop   chan struct{}
	once   sync.Once
}

// NewServerContext 创建上下文并按配置固定建好全部房间
func NewServerContext(cfg *Config) *ServerContext {
	return &ServerContext{
		cfg:      cfg,
		registry: NewRegistry(cfg),
		clients:  make(map[uint32]*ClientSession),
		stop:     make(chan struct{}),
	}
}

// Start 启动生命周期（房间在构造时已建好，这里只记录状态）
func (s *ServerContext) Start() {
	Log.Infow("server context started",
		"rooms", len(s.registry.All()),
		"max_players", s.cfg.MaxPlayers,
		"tick_rate", s.cfg.TickRate)
}

// Stop 置位全局停止标志并关闭全部在线连接；
// 各调度循环与房间驱动观察到 stop 后自行退出
func (s *ServerContext) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		for _, sess := range s.clients {
			_ = sess.conn.Close()
		}
		s.mu.Unlock()
		Log.Infow("server context stopped")
	})
}

// Stopped 全局停止通道，注册进各循环的就绪集合
func (s *ServerContext) Stopped() <-chan struct{} {
	return s.stop
}

// Registry 固定房间集合
func (s *ServerContext) Registry() *Registry {
	return s.registry
}

// Config 服务配置（启动后只读）
func (s *ServerContext) Config() *Config {
	return s.cfg
}

// allocID 分配新的唯一 client_id（非零、单调递增）
func (s *ServerContext) allocID() uint32 {
	return atomic.AddUint32(&s.nextID, 1)
}

func (s *ServerContext) register(sess *ClientSession) {
	s.mu.Lock()
	s.clients[sess.ID] = sess
	s.mu.Unlock()
}

func (s *ServerContext) unregister(id uint32) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *ServerContext) session(id uint32) (*ClientSession, bool) {
	s.mu.RLock()
	sess, ok := s.clients[id]
	s.mu.RUnlock()
	return sess, ok
}

// ClientCount 在线会话数（监控用）
func (s *ServerContext) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// SessionAges 每个在线会话距上次收到数据的静默时长（秒），监控用
func (s *ServerContext) SessionAges() map[uint32]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]float64, len(s.clients))
	for id, sess := range s.clients {
		out[id] = time.Since(sess.LastSeen()).Seconds()
	}
	return out
}
