package server

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"astroarena/queue"
)

const writeTimeout = 5 * time.Second

// ClientSession 每个连接一份的会话状态。
// roomID/playerID/writeErr 只由拥有该连接的调度循环读写，无需加锁；
// lastSeen 供外部观测，用原子量。
type ClientSession struct {
	ID    uint32 // 服务端分配，非零且单调递增；0 表示尚未分配
	conn  *websocket.Conn
	queue *queue.Queue

	frames chan []byte    // 读泵解出的完整帧
	done   chan struct{}  // 调度循环退出时关闭，解除读泵的投递阻塞

	roomID   uint32 // 0 = 未加入任何房间
	playerID int32  // NotJoined = 未加入

	lastSeen atomic.Int64 // UnixNano
	writeErr error        // 队列命令写套接字失败时由命令记录
}

func newClientSession(id uint32, conn *websocket.Conn) *ClientSession {
	s := &ClientSession{
		ID:       id,
		conn:     conn,
		queue:    queue.New(),
		frames:   make(chan []byte, 32),
		done:     make(chan struct{}),
		playerID: NotJoined,
	}
	s.touch()
	return s
}

// touch 刷新活跃时间戳
func (s *ClientSession) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen 最近一次收到对端数据的时间
func (s *ClientSession) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// writeFrame 单写者写出一帧；只允许在调度循环（含其执行的命令）内调用。
// 短写/超时一律视为对端断开，由调用方终止循环
func (s *ClientSession) writeFrame(b []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, b)
}

// sendCommand 生成“把这帧写到本会话套接字”的命令闭包；
// 闭包只捕获值（帧字节与会话指针），可安全跨线程入队
func (s *ClientSession) sendCommand(frame []byte) queue.Command {
	return func() {
		if s.writeErr != nil {
			return
		}
		if err := s.writeFrame(frame); err != nil {
			s.writeErr = err
		}
	}
}
