package server

import (
	"astroarena/protocol"
)

// handlerFunc 客户端入站标签的处理器：返回非 nil 错误即断开连接。
// 标签集合固定且穷尽，用封闭的派发表而非开放式接口
type handlerFunc func(ctx *ServerContext, sess *ClientSession, r *protocol.FrameReader) error

var clientHandlers = map[protocol.Tag]handlerFunc{
	protocol.TagGetRoomList:     handleGetRoomList,
	protocol.TagJoinRoom:        handleJoinRoom,
	protocol.TagLeaveRoom:       handleLeaveRoom,
	protocol.TagVoteReady:       handleVoteReady,
	protocol.TagPlayerMovement:  handlePlayerMovement,
	protocol.TagShootBullets:    handleShootBullets,
	protocol.TagUpdateRoomState: handleUpdateRoomState,
	protocol.TagUpdateGameState: handleUpdateGameState,
	protocol.TagUpdatePlayers:   handleUpdatePlayers,
	protocol.TagUpdateAsteroids: handleUpdateAsteroids,
	protocol.TagUpdateBullets:   handleUpdateBullets,
	protocol.TagCheckConnection: handleCheckConnection,
}

func handleGetRoomList(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	frame, err := protocol.NewFrame(protocol.TagGetRoomList).
		AppendRecord(ctx.registry.Snapshot()).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

// handleJoinRoom 应答 room_id（0=失败）+ player_id
func handleJoinRoom(ctx *ServerContext, sess *ClientSession, r *protocol.FrameReader) error {
	roomID, err := r.ReadU32()
	if err != nil {
		return err // 标量缺失等同对端异常
	}

	replyFail := func() error {
		frame, err := protocol.NewFrame(protocol.TagJoinRoom).AppendU32(0).AppendU32(0).Bytes()
		if err != nil {
			return err
		}
		return sess.writeFrame(frame)
	}

	if sess.roomID != 0 {
		return replyFail() // 已在房间里
	}
	room, ok := ctx.registry.Get(roomID)
	if !ok {
		// 未知房间号：软性失败，连接保留
		Log.Debugw("join unknown room", "client_id", sess.ID, "room_id", roomID)
		return replyFail()
	}
	pid, ok := room.Join(sess.ID)
	if !ok {
		return replyFail() // 满员
	}
	sess.roomID = roomID
	sess.playerID = pid
	Log.Infow("player joined", "client_id", sess.ID, "room_id", roomID, "player_id", pid)

	frame, err := protocol.NewFrame(protocol.TagJoinRoom).
		AppendU32(roomID).AppendU32(uint32(pid)).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

func handleLeaveRoom(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	if sess.roomID == 0 {
		return nil // 未加入：软性无操作
	}
	room, ok := ctx.registry.Get(sess.roomID)
	if !ok {
		sess.roomID, sess.playerID = 0, NotJoined
		return nil
	}
	pid, was := room.Leave(sess.ID)
	sess.roomID, sess.playerID = 0, NotJoined
	if !was {
		return nil
	}
	Log.Infow("player left", "client_id", sess.ID, "room_id", room.ID, "player_id", pid)

	frame, err := protocol.NewFrame(protocol.TagLeaveRoom).AppendU32(uint32(pid)).Bytes()
	if err != nil {
		return err
	}
	// 先回执本人，再通知仍在房间里的室友
	if err := sess.writeFrame(frame); err != nil {
		return err
	}
	broadcastFrame(ctx, room.Metrics(), room.AttachedClients(), frame, sess.ID)
	return nil
}

func handleVoteReady(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	if sess.roomID == 0 {
		return nil
	}
	room, ok := ctx.registry.Get(sess.roomID)
	if !ok {
		return nil
	}
	slots, arm, ok := room.VoteReady(sess.ID)
	if !ok {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagVoteReady).AppendRecord(slots).Bytes()
	if err != nil {
		return err
	}
	if err := sess.writeFrame(frame); err != nil {
		return err
	}
	broadcastFrame(ctx, room.Metrics(), room.AttachedClients(), frame, sess.ID)

	if arm {
		// 第二票到位：启动房间驱动协程（倒计时 → 对局 Tick）
		go runRoomDriver(ctx, room)
	}
	return nil
}

func handlePlayerMovement(ctx *ServerContext, sess *ClientSession, r *protocol.FrameReader) error {
	var mv protocol.Movement
	if err := r.ReadRecord(&mv); err != nil {
		// 载荷解码失败：放弃本次操作但保留连接（标量交互仍可用）
		Log.Warnw("movement decode failed", "client_id", sess.ID, "error", err)
		return nil
	}
	if sess.roomID == 0 {
		return nil
	}
	room, ok := ctx.registry.Get(sess.roomID)
	if !ok {
		return nil
	}
	pid, ok := room.ApplyMovement(sess.ID, mv)
	if !ok {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagPlayerMovement).
		AppendU32(uint32(pid)).AppendRecord(mv).Bytes()
	if err != nil {
		return err
	}
	broadcastFrame(ctx, room.Metrics(), room.AttachedClients(), frame, sess.ID)
	return nil
}

func handleShootBullets(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	if sess.roomID == 0 {
		return nil
	}
	room, ok := ctx.registry.Get(sess.roomID)
	if !ok {
		return nil
	}
	pid, ok := room.Shoot(sess.ID)
	if !ok {
		return nil // 不在对局中或弹药分区耗尽
	}
	frame, err := protocol.NewFrame(protocol.TagShootBullets).AppendU32(uint32(pid)).Bytes()
	if err != nil {
		return err
	}
	broadcastFrame(ctx, room.Metrics(), room.AttachedClients(), frame, sess.ID)
	return nil
}

func handleUpdateRoomState(ctx *ServerContext, sess *ClientSession, r *protocol.FrameReader) error {
	roomID, err := r.ReadU32()
	if err != nil {
		return err
	}
	room, ok := ctx.registry.Get(roomID)
	if !ok {
		Log.Debugw("room state for unknown room", "client_id", sess.ID, "room_id", roomID)
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagUpdateRoomState).
		AppendRecord(room.Info()).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

func handleUpdateGameState(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	room, ok := sessionRoom(ctx, sess)
	if !ok {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagUpdateGameState).
		AppendRecord(room.GameSnapshot()).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

func handleUpdatePlayers(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	room, ok := sessionRoom(ctx, sess)
	if !ok {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagUpdatePlayers).
		AppendRecord(room.PlayersSnapshot()).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

func handleUpdateAsteroids(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	room, ok := sessionRoom(ctx, sess)
	if !ok {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagUpdateAsteroids).
		AppendRecord(room.AsteroidsSnapshot()).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

func handleUpdateBullets(ctx *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	room, ok := sessionRoom(ctx, sess)
	if !ok {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TagUpdateBullets).
		AppendRecord(room.BulletsSnapshot()).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

// handleCheckConnection 活性探测：刷新时间戳并原样回显
func handleCheckConnection(_ *ServerContext, sess *ClientSession, _ *protocol.FrameReader) error {
	sess.touch()
	frame, err := protocol.NewFrame(protocol.TagCheckConnection).Bytes()
	if err != nil {
		return err
	}
	return sess.writeFrame(frame)
}

// sessionRoom 会话当前所在房间；未加入或房间号失效都按查找未命中处理
func sessionRoom(ctx *ServerContext, sess *ClientSession) (*GameRoom, bool) {
	if sess.roomID == 0 {
		return nil, false
	}
	return ctx.registry.Get(sess.roomID)
}
