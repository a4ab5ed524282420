package client

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"astroarena/protocol"
	"astroarena/queue"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	readTimeout  = 90 * time.Second
)

// GameView 渲染循环一帧内需要一致读取的整局视图
type GameView struct {
	Players   []protocol.PlayerSnapshot
	Asteroids []protocol.AsteroidSnapshot
	Bullets   []protocol.BulletSnapshot
	WinnerID  int32
}

// Client 一条到服务端的连接：自己的网络循环镜像服务端的调度模型
// （帧通道 + 命令队列多路等待），把收到的增量写进双缓冲，
// 渲染循环经 Current 访问器无锁取快照。
type Client struct {
	conn *websocket.Conn
	q    *queue.Queue
	log  *zap.SugaredLogger

	frames chan []byte
	done   chan struct{}
	once   sync.Once

	ID uint32 // 握手分配，之后只读

	roomID      atomic.Uint32 // 0 = 未加入
	playerID    atomic.Int32  // -1 = 未加入
	inRound     atomic.Bool
	winner      atomic.Int32
	countdownMs atomic.Uint32 // 最近一次 NewGameSoon 公布的倒计时
	lastPong    atomic.Int64

	// 私有权威副本：只有网络循环读写，发布时深拷贝进背面槽
	rooms protocol.RoomList
	room  protocol.RoomInfo
	game  GameView

	roomsBuf DoubleBuffer[protocol.RoomList]
	roomBuf  DoubleBuffer[protocol.RoomInfo]
	gameBuf  DoubleBuffer[GameView]

	writeErr error // 仅网络循环读写
}

// Dial 建连并完成 id 协商握手（发 GetClientId+0，收回显的新 id）
func Dial(url string, log *zap.SugaredLogger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:   conn,
		q:      queue.New(),
		log:    log,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	c.playerID.Store(-1)
	c.winner.Store(-1)

	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	req, err := protocol.NewFrame(protocol.TagGetClientID).AppendU32(0).Bytes()
	if err != nil {
		return err
	}
	if err := c.writeFrame(req); err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(dialTimeout))
	mt, msg, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return errors.New("handshake: unexpected message type")
	}
	r := protocol.NewReader(msg)
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	if tag != protocol.TagGetClientID {
		return fmt.Errorf("handshake: unexpected tag %v", tag)
	}
	id, err := r.ReadU32()
	if err != nil {
		return err
	}
	if id == 0 {
		return errors.New("handshake: server assigned zero id")
	}
	c.ID = id
	return nil
}

// Run 网络循环：读泵 + 多路等待，直到连接断开或 Close。
// 通常由调用方 go c.Run() 拉起（镜像服务端每连接一线程的模型）
func (c *Client) Run() {
	go c.readPump()
	for {
		select {
		case msg, ok := <-c.frames:
			if !ok {
				c.log.Infow("server closed connection", "client_id", c.ID)
				return
			}
			if err := c.dispatch(msg); err != nil {
				c.log.Warnw("dispatch failed, closing", "error", err)
				c.Close()
				return
			}
		case <-c.q.Ready():
			// 唤醒可能被合并，醒来后清空积压
			for {
				cmd, ok := c.q.TryPop()
				if !ok {
					break
				}
				cmd()
				if c.writeErr != nil {
					c.log.Warnw("write failed, closing", "error", c.writeErr)
					c.Close()
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

// Close 幂等关闭：解除网络循环与读泵的等待
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer close(c.frames)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		select {
		case c.frames <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writeFrame(b []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// send 把「写出这帧」排进自己的命令队列，由网络循环执行，
// 保证渲染/逻辑线程永远不直接碰套接字
func (c *Client) send(frame []byte, err error) {
	if err != nil {
		c.log.Warnw("frame build failed", "error", err)
		return
	}
	c.q.Push(func() {
		if c.writeErr != nil {
			return
		}
		if werr := c.writeFrame(frame); werr != nil {
			c.writeErr = werr
		}
	})
}

// ---- 渲染/逻辑线程可调用的操作 ----

func (c *Client) RequestRoomList() {
	c.send(protocol.NewFrame(protocol.TagGetRoomList).Bytes())
}

func (c *Client) JoinRoom(roomID uint32) {
	c.send(protocol.NewFrame(protocol.TagJoinRoom).AppendU32(roomID).Bytes())
}

func (c *Client) LeaveRoom() {
	c.send(protocol.NewFrame(protocol.TagLeaveRoom).Bytes())
}

func (c *Client) VoteReady() {
	c.send(protocol.NewFrame(protocol.TagVoteReady).Bytes())
}

func (c *Client) SendMovement(mv protocol.Movement) {
	c.send(protocol.NewFrame(protocol.TagPlayerMovement).AppendRecord(mv).Bytes())
}

func (c *Client) Shoot() {
	c.send(protocol.NewFrame(protocol.TagShootBullets).Bytes())
}

func (c *Client) RequestRoomState(roomID uint32) {
	c.send(protocol.NewFrame(protocol.TagUpdateRoomState).AppendU32(roomID).Bytes())
}

func (c *Client) RequestGameState() {
	c.send(protocol.NewFrame(protocol.TagUpdateGameState).Bytes())
}

func (c *Client) Ping() {
	c.send(protocol.NewFrame(protocol.TagCheckConnection).Bytes())
}

// ---- 渲染循环的只读访问器 ----

// Rooms 当前房间列表视图（只读；每帧调用一次）
func (c *Client) Rooms() *protocol.RoomList { return c.roomsBuf.Current() }

// Room 已加入房间的元数据视图
func (c *Client) Room() *protocol.RoomInfo { return c.roomBuf.Current() }

// Game 整局状态视图
func (c *Client) Game() *GameView { return c.gameBuf.Current() }

func (c *Client) RoomID() uint32   { return c.roomID.Load() }
func (c *Client) PlayerID() int32  { return c.playerID.Load() }
func (c *Client) InRound() bool    { return c.inRound.Load() }
func (c *Client) Winner() int32    { return c.winner.Load() }
func (c *Client) Countdown() uint32 { return c.countdownMs.Load() }

// LastPong 最近一次 CheckConnection 回显时间
func (c *Client) LastPong() time.Time { return time.Unix(0, c.lastPong.Load()) }

// ---- 入站帧派发（仅网络循环调用） ----

func (c *Client) dispatch(msg []byte) error {
	r := protocol.NewReader(msg)
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}

	switch tag {
	case protocol.TagGetClientID:
		// 握手后不应再出现
		return fmt.Errorf("unexpected %v after handshake", tag)

	case protocol.TagGetRoomList:
		var list protocol.RoomList
		if err := r.ReadRecord(&list); err != nil {
			c.log.Warnw("room list decode failed", "error", err)
			return nil
		}
		c.rooms = list
		c.publishRooms()

	case protocol.TagJoinRoom:
		roomID, err := r.ReadU32()
		if err != nil {
			return err
		}
		pid, err := r.ReadU32()
		if err != nil {
			return err
		}
		if roomID == 0 {
			c.log.Infow("join rejected")
			return nil
		}
		c.roomID.Store(roomID)
		c.playerID.Store(int32(pid))
		c.RequestRoomState(roomID)

	case protocol.TagLeaveRoom:
		pid, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int32(pid) == c.playerID.Load() {
			c.roomID.Store(0)
			c.playerID.Store(-1)
			c.inRound.Store(false)
		} else if int(pid) < len(c.room.Players) {
			c.room.Players[pid].State = protocol.SlotNone
			c.publishRoom()
		}

	case protocol.TagVoteReady:
		var slots []protocol.PlayerSlot
		if err := r.ReadRecord(&slots); err != nil {
			c.log.Warnw("vote record decode failed", "error", err)
			return nil
		}
		c.room.RoomID = c.roomID.Load()
		c.room.Players = slots
		c.publishRoom()

	case protocol.TagUpdateRoomState:
		var info protocol.RoomInfo
		if err := r.ReadRecord(&info); err != nil {
			c.log.Warnw("room state decode failed", "error", err)
			return nil
		}
		c.room = info
		c.publishRoom()

	case protocol.TagPlayerMovement:
		pid, err := r.ReadU32()
		if err != nil {
			return err
		}
		var mv protocol.Movement
		if err := r.ReadRecord(&mv); err != nil {
			return nil
		}
		if int(pid) < len(c.game.Players) {
			p := &c.game.Players[pid]
			p.X, p.Y = mv.X, mv.Y
			p.VX, p.VY = mv.VX, mv.VY
			p.Rotation = mv.Rotation
			c.publishGame()
		}

	case protocol.TagShootBullets:
		// 射击特效交给表现层，状态以后续子弹快照/增量为准
		if _, err := r.ReadU32(); err != nil {
			return err
		}

	case protocol.TagStartRound:
		c.winner.Store(-1)
		c.inRound.Store(true)
		// 开局拉一次全量，之后全靠增量维护
		c.RequestGameState()

	case protocol.TagEndRound:
		w, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, err := r.ReadU32(); err != nil { // 结算展示时长
			return err
		}
		c.winner.Store(int32(w))
		c.inRound.Store(false)

	case protocol.TagNewGameSoon:
		ms, err := r.ReadU32()
		if err != nil {
			return err
		}
		c.countdownMs.Store(ms)

	case protocol.TagReturnToLobby:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		c.inRound.Store(false)

	case protocol.TagSpawnAsteroid:
		id, err := r.ReadU32()
		if err != nil {
			return err
		}
		var snap protocol.AsteroidSnapshot
		if err := r.ReadRecord(&snap); err != nil {
			return nil
		}
		c.ensureAsteroids(int(id) + 1)
		c.game.Asteroids[id] = snap
		c.publishGame()

	case protocol.TagAsteroidDestroyed:
		id, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(id) < len(c.game.Asteroids) {
			c.game.Asteroids[id].Active = false
			c.publishGame()
		}

	case protocol.TagPlayerDestroyed:
		id, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(id) < len(c.game.Players) {
			c.game.Players[id].Active = false
			c.publishGame()
		}

	case protocol.TagBulletDestroyed:
		id, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(id) < len(c.game.Bullets) {
			c.game.Bullets[id].Active = false
			c.publishGame()
		}

	case protocol.TagUpdateGameState:
		var snap protocol.GameSnapshot
		if err := r.ReadRecord(&snap); err != nil {
			c.log.Warnw("game state decode failed", "error", err)
			return nil
		}
		c.game = GameView{
			Players:   snap.Players,
			Asteroids: snap.Asteroids,
			Bullets:   snap.Bullets,
			WinnerID:  snap.WinnerID,
		}
		c.publishGame()

	case protocol.TagUpdatePlayers:
		var ps []protocol.PlayerSnapshot
		if err := r.ReadRecord(&ps); err != nil {
			return nil
		}
		c.game.Players = ps
		c.publishGame()

	case protocol.TagUpdateAsteroids:
		var as []protocol.AsteroidSnapshot
		if err := r.ReadRecord(&as); err != nil {
			return nil
		}
		c.game.Asteroids = as
		c.publishGame()

	case protocol.TagUpdateBullets:
		var bs []protocol.BulletSnapshot
		if err := r.ReadRecord(&bs); err != nil {
			return nil
		}
		c.game.Bullets = bs
		c.publishGame()

	case protocol.TagCheckConnection:
		c.lastPong.Store(time.Now().UnixNano())

	default:
		return fmt.Errorf("unknown tag %d", uint32(tag))
	}
	return nil
}

func (c *Client) ensureAsteroids(n int) {
	for len(c.game.Asteroids) < n {
		c.game.Asteroids = append(c.game.Asteroids,
			protocol.AsteroidSnapshot{ID: int32(len(c.game.Asteroids))})
	}
}

// ---- 发布：把私有副本深拷贝进背面槽再翻转 ----
// 背面槽的底层数组独立于正面槽，读者持有的切片不会被后续写入改动

func (c *Client) publishGame() {
	back := c.gameBuf.Back()
	back.Players = copySlice(back.Players, c.game.Players)
	back.Asteroids = copySlice(back.Asteroids, c.game.Asteroids)
	back.Bullets = copySlice(back.Bullets, c.game.Bullets)
	back.WinnerID = c.game.WinnerID
	c.gameBuf.Publish()
}

func (c *Client) publishRoom() {
	back := c.roomBuf.Back()
	back.RoomID = c.room.RoomID
	back.Status = c.room.Status
	back.Players = copySlice(back.Players, c.room.Players)
	c.roomBuf.Publish()
}

func (c *Client) publishRooms() {
	back := c.roomsBuf.Back()
	fresh := make(protocol.RoomList, len(c.rooms))
	for id, info := range c.rooms {
		info.Players = copySlice(nil, info.Players)
		fresh[id] = info
	}
	*back = fresh
	c.roomsBuf.Publish()
}

func copySlice[T any](dst, src []T) []T {
	if cap(dst) < len(src) {
		dst = make([]T, len(src))
	}
	dst = dst[:len(src)]
	copy(dst, src)
	return dst
}
