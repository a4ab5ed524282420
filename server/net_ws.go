package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"astroarena/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 90 * time.Second
	maxFrameSize     = 256 << 10
)

// errProtocol 协议违规（未知标签、越权标签），对该连接是终止性的
var errProtocol = errors.New("protocol violation")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：升级后先走 id 协商握手，再进入调度循环
func HandleWS(ctx *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Warnw("upgrade failed", "error", err)
			return
		}
		runConnection(ctx, ws)
	}
}

func runConnection(ctx *ServerContext, ws *websocket.Conn) {
	defer ws.Close()

	sess, err := handshake(ctx, ws)
	if err != nil {
		// 握手任何一步失败：关闭套接字，不重试
		Log.Infow("handshake failed", "error", err)
		return
	}
	ctx.register(sess)
	Log.Infow("client connected", "client_id", sess.ID)

	go readPump(sess)
	dispatchLoop(ctx, sess)
	teardown(ctx, sess)
}

// handshake id 协商：第一帧必须是 GetClientId + u32（0 = 请求新 id）。
// 服务端分配新的唯一非零 id 并回显同一标签
func handshake(ctx *ServerContext, ws *websocket.Conn) (*ClientSession, error) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	mt, msg, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return nil, errProtocol
	}
	r := protocol.NewReader(msg)
	tag, err := r.ReadTag()
	if err != nil {
		return nil, err
	}
	if tag != protocol.TagGetClientID {
		return nil, fmt.Errorf("%w: first tag %v", errProtocol, tag)
	}
	proposed, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	id := ctx.allocID()
	if proposed != 0 {
		// 旧 id 不予恢复：会话随连接销毁，重连拿新 id
		Log.Debugw("client proposed stale id", "proposed", proposed, "assigned", id)
	}
	sess := newClientSession(id, ws)
	reply, err := protocol.NewFrame(protocol.TagGetClientID).AppendU32(id).Bytes()
	if err != nil {
		return nil, err
	}
	if err := sess.writeFrame(reply); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return sess, nil
}

// readPump 独立协程：把套接字上的完整帧搬进会话的帧通道。
// 任何读错误（短读、挂断、超时）都等同对端断开
func readPump(sess *ClientSession) {
	defer close(sess.frames)
	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(readTimeout))
		mt, msg, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			return
		}
		sess.touch()
		select {
		case sess.frames <- msg:
		case <-sess.done:
			return
		}
	}
}

// dispatchLoop 每连接一个：在「套接字有数据」与「队列有命令」之间
// 多路等待。队列命令同步执行且只写本套接字，保证无跨线程写者
func dispatchLoop(ctx *ServerContext, sess *ClientSession) {
	for {
		select {
		case msg, ok := <-sess.frames:
			if !ok {
				return // 对端断开或读错误
			}
			if err := dispatchFrame(ctx, sess, msg); err != nil {
				Log.Infow("dropping connection", "client_id", sess.ID, "error", err)
				return
			}
		case <-sess.queue.Ready():
			// 唤醒可能被合并，醒来后清空积压而不是只取一条
			for {
				cmd, ok := sess.queue.TryPop()
				if !ok {
					break
				}
				cmd()
				if sess.writeErr != nil {
					Log.Infow("notify write failed", "client_id", sess.ID, "error", sess.writeErr)
					return
				}
			}
		case <-ctx.Stopped():
			return
		}
	}
}

// dispatchFrame 解出标签并派发到对应处理器；
// 未知标签与「仅服务端可发」的标签属于协议违规
func dispatchFrame(ctx *ServerContext, sess *ClientSession, msg []byte) error {
	r := protocol.NewReader(msg)
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	if protocol.ServerOnly(tag) || tag == protocol.TagGetClientID {
		return fmt.Errorf("%w: tag %v from client", errProtocol, tag)
	}
	handler, ok := clientHandlers[tag]
	if !ok {
		return fmt.Errorf("%w: unknown tag %d", errProtocol, uint32(tag))
	}
	return handler(ctx, sess, r)
}

// teardown 连接拆除：先解除房间挂接并通知室友，再注销会话、
// 丢弃残留命令。必须在调度循环退出后同步完成，资源不跨协程存活
func teardown(ctx *ServerContext, sess *ClientSession) {
	close(sess.done)
	if sess.roomID != 0 {
		if room, ok := ctx.registry.Get(sess.roomID); ok {
			if pid, was := room.Leave(sess.ID); was {
				notifyLeft(ctx, room, pid, sess.ID)
			}
		}
		sess.roomID = 0
		sess.playerID = NotJoined
	}
	ctx.unregister(sess.ID)
	if n := len(sess.queue.Drain()); n > 0 {
		Log.Debugw("queue drained on teardown", "client_id", sess.ID, "commands", n)
	}
	Log.Infow("client disconnected", "client_id", sess.ID)
}

// broadcastFrame 对每个目标客户端入队一条“写出这帧”的命令；
// 帧字节只读共享，命令由目标连接自己的调度循环执行
func broadcastFrame(ctx *ServerContext, m *RoomMetrics, targets []uint32, frame []byte, except uint32) {
	for _, id := range targets {
		if id == except {
			continue
		}
		sess, ok := ctx.session(id)
		if !ok {
			// 目标刚好断开：软性跳过
			m.IncFanoutSkipped()
			continue
		}
		sess.queue.Push(sess.sendCommand(frame))
		m.AddQueued(1)
	}
}

// notifyLeft 把某槽位离开的消息广播给仍在房间里的客户端
func notifyLeft(ctx *ServerContext, room *GameRoom, playerID int32, except uint32) {
	frame, err := protocol.NewFrame(protocol.TagLeaveRoom).AppendU32(uint32(playerID)).Bytes()
	if err != nil {
		return
	}
	broadcastFrame(ctx, room.Metrics(), room.AttachedClients(), frame, except)
}
