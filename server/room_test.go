package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroarena/protocol"
)

// TestJoinAssignsLowestFreeSlot 加入分配最低空槽位，满员失败
func TestJoinAssignsLowestFreeSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlayers = 2
	room := NewGameRoom(1, cfg)

	pid, ok := room.Join(101)
	require.True(t, ok)
	assert.Equal(t, int32(0), pid)

	pid, ok = room.Join(102)
	require.True(t, ok)
	assert.Equal(t, int32(1), pid)

	// 满员
	_, ok = room.Join(103)
	assert.False(t, ok)

	// 重复加入
	_, ok = room.Join(101)
	assert.False(t, ok)

	info := room.Info()
	assert.Equal(t, protocol.SlotNotReady, info.Players[0].State)
	assert.Equal(t, protocol.SlotNotReady, info.Players[1].State)
}

// TestLeaveFreesSlotForReuse 离开清槽，槽位可复用且不压缩
func TestLeaveFreesSlotForReuse(t *testing.T) {
	cfg := DefaultConfig()
	room := NewGameRoom(1, cfg)

	room.Join(101) // 槽位 0
	room.Join(102) // 槽位 1

	pid, was := room.Leave(101)
	require.True(t, was)
	assert.Equal(t, int32(0), pid)

	info := room.Info()
	assert.Equal(t, protocol.SlotNone, info.Players[0].State)
	assert.Equal(t, protocol.SlotNotReady, info.Players[1].State)

	// 新客户端拿回槽位 0，槽位 1 不动
	pid, ok := room.Join(103)
	require.True(t, ok)
	assert.Equal(t, int32(0), pid)

	// 未挂接客户端的离开是软性无操作
	_, was = room.Leave(999)
	assert.False(t, was)
}

// TestVoteReadyArmsDriverOnce ≥2 READY 且不在对局中才武装驱动，且只武装一次
func TestVoteReadyArmsDriverOnce(t *testing.T) {
	cfg := DefaultConfig()
	room := NewGameRoom(1, cfg)
	room.Join(101)
	room.Join(102)
	room.Join(103)

	// 第一票：不够人数
	slots, arm, ok := room.VoteReady(101)
	require.True(t, ok)
	assert.False(t, arm)
	assert.Equal(t, protocol.SlotReady, slots[0].State)

	// 第二票：武装
	_, arm, ok = room.VoteReady(102)
	require.True(t, ok)
	assert.True(t, arm)

	// 第三票：驱动已在跑，不重复武装
	_, arm, ok = room.VoteReady(103)
	require.True(t, ok)
	assert.False(t, arm)

	// 未挂接者投票无效
	_, _, ok = room.VoteReady(999)
	assert.False(t, ok)
}

// TestVoteReadyIgnoredDuringGame 对局中状态不变，投票按软性无效处理
func TestVoteReadyIgnoredDuringGame(t *testing.T) {
	cfg := DefaultConfig()
	room := NewGameRoom(1, cfg)
	room.Join(101)
	room.Join(102)

	room.mu.Lock()
	room.status = protocol.RoomGame
	room.mu.Unlock()

	slots, arm, ok := room.VoteReady(101)
	require.True(t, ok)
	assert.False(t, arm)
	assert.Equal(t, protocol.SlotNotReady, slots[0].State)
	assert.Equal(t, protocol.RoomGame, room.Status())
}

// TestVoteReadyIgnoredDuringLobbyHold 回合结束后的冷却期内投票无效
func TestVoteReadyIgnoredDuringLobbyHold(t *testing.T) {
	cfg := DefaultConfig()
	room := NewGameRoom(1, cfg)
	room.Join(101)
	room.Join(102)

	room.mu.Lock()
	room.lobbyHoldUntil = time.Now().Add(time.Hour)
	room.mu.Unlock()

	slots, arm, ok := room.VoteReady(101)
	require.True(t, ok)
	assert.False(t, arm)
	assert.Equal(t, protocol.SlotNotReady, slots[0].State)
}

// TestAttachedClientsStableOrder 名单快照升序，防抖比较与顺序无关
func TestAttachedClientsStableOrder(t *testing.T) {
	cfg := DefaultConfig()
	room := NewGameRoom(1, cfg)
	room.Join(300)
	room.Join(100)
	room.Join(200)

	assert.Equal(t, []uint32{100, 200, 300}, room.AttachedClients())

	other := NewGameRoom(2, cfg)
	other.Join(100)
	other.Join(200)
	other.Join(300)
	assert.True(t, rosterEqual(room.AttachedClients(), other.AttachedClients()))

	room.Leave(200)
	assert.False(t, rosterEqual(room.AttachedClients(), other.AttachedClients()))
}

// TestRegistryFixedRooms 固定房间集合：id 从 1 起，未知 id 查不到
func TestRegistryFixedRooms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rooms = 3
	reg := NewRegistry(cfg)

	for id := uint32(1); id <= 3; id++ {
		room, ok := reg.Get(id)
		require.True(t, ok)
		assert.Equal(t, id, room.ID)
	}
	_, ok := reg.Get(0)
	assert.False(t, ok)
	_, ok = reg.Get(4)
	assert.False(t, ok)

	snap := reg.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, protocol.RoomLobby, snap[1].Status)
	assert.Len(t, snap[1].Players, cfg.MaxPlayers)
}

// TestStartRoundGuards 只有 ≥2 人挂接且不在对局中才能切入 GAME
func TestStartRoundGuards(t *testing.T) {
	cfg := DefaultConfig()
	ctx := NewServerContext(cfg)
	room, _ := ctx.registry.Get(1)

	// 人数不足
	room.Join(101)
	assert.False(t, startRound(ctx, room))
	assert.Equal(t, protocol.RoomLobby, room.Status())

	// 两人：切换成功
	room.Join(102)
	assert.True(t, startRound(ctx, room))
	assert.Equal(t, protocol.RoomGame, room.Status())

	// 已在对局中：拒绝重复切换
	assert.False(t, startRound(ctx, room))
}
