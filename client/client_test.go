package client_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"astroarena/client"
	"astroarena/protocol"
	"astroarena/server"
)

const waitFor = 3 * time.Second
const pollEvery = 10 * time.Millisecond

func startTestServer(t *testing.T) string {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Rooms = 2
	cfg.TickRate = 50
	cfg.CountdownMs = 100
	cfg.LobbyDelayMs = 100
	cfg.EndShowMs = 50

	ctx := server.NewServerContext(cfg)
	srv := httptest.NewServer(server.HandleWS(ctx))
	t.Cleanup(func() {
		ctx.Stop()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialClient(t *testing.T, url string) *client.Client {
	t.Helper()
	c, err := client.Dial(url, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	go c.Run()
	return c
}

// TestDialNegotiatesID 握手拿到非零 id，两条连接 id 不同
func TestDialNegotiatesID(t *testing.T) {
	url := startTestServer(t)

	a := dialClient(t, url)
	b := dialClient(t, url)

	assert.NotZero(t, a.ID)
	assert.NotZero(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int32(-1), a.PlayerID())
	assert.Zero(t, a.RoomID())
}

// TestJoinRoomUpdatesView 加入成功后访问器与房间视图收敛到服务端状态
func TestJoinRoomUpdatesView(t *testing.T) {
	url := startTestServer(t)
	c := dialClient(t, url)

	c.JoinRoom(1)
	require.Eventually(t, func() bool {
		return c.RoomID() == 1 && c.PlayerID() == 0
	}, waitFor, pollEvery)

	// 加入回执会级联拉取一次房间状态
	require.Eventually(t, func() bool {
		room := c.Room()
		return room.RoomID == 1 && len(room.Players) > 0
	}, waitFor, pollEvery)
	assert.Equal(t, protocol.SlotNotReady, c.Room().Players[0].State)
}

// TestRoomListSnapshot 房间列表经双缓冲发布给渲染侧
func TestRoomListSnapshot(t *testing.T) {
	url := startTestServer(t)
	c := dialClient(t, url)

	c.RequestRoomList()
	require.Eventually(t, func() bool {
		return len(*c.Rooms()) == 2
	}, waitFor, pollEvery)

	list := *c.Rooms()
	assert.Equal(t, protocol.RoomLobby, list[1].Status)
	assert.Equal(t, protocol.RoomLobby, list[2].Status)
}

// TestRoundLifecycle 双方准备 → 倒计时 → 开局 → 对手离线 → 胜者判定
func TestRoundLifecycle(t *testing.T) {
	url := startTestServer(t)
	a := dialClient(t, url)
	b := dialClient(t, url)

	a.JoinRoom(1)
	b.JoinRoom(1)
	require.Eventually(t, func() bool {
		return a.RoomID() == 1 && b.RoomID() == 1
	}, waitFor, pollEvery)

	a.VoteReady()
	b.VoteReady()

	// 倒计时公告先于开局到达
	require.Eventually(t, func() bool {
		return a.Countdown() == 100
	}, waitFor, pollEvery)
	require.Eventually(t, func() bool {
		return a.InRound() && b.InRound()
	}, waitFor, pollEvery)
	assert.Equal(t, int32(-1), a.Winner())

	// 开局后客户端自动拉一次全量，游戏视图非空
	require.Eventually(t, func() bool {
		g := a.Game()
		return len(g.Players) > 0 && g.Players[0].Active && g.Players[1].Active
	}, waitFor, pollEvery)

	// 对手断开：剩余一方按存活判胜并回到大厅
	b.Close()
	require.Eventually(t, func() bool {
		return !a.InRound()
	}, waitFor, pollEvery)
	assert.Equal(t, int32(0), a.Winner())
}

// TestLeaveRoomResetsState 离开后会话级状态归零
func TestLeaveRoomResetsState(t *testing.T) {
	url := startTestServer(t)
	c := dialClient(t, url)

	c.JoinRoom(1)
	require.Eventually(t, func() bool { return c.RoomID() == 1 }, waitFor, pollEvery)

	c.LeaveRoom()
	require.Eventually(t, func() bool {
		return c.RoomID() == 0 && c.PlayerID() == -1
	}, waitFor, pollEvery)
}

// TestPingUpdatesLastPong 活性探测回显刷新时间戳
func TestPingUpdatesLastPong(t *testing.T) {
	url := startTestServer(t)
	c := dialClient(t, url)

	before := c.LastPong()
	c.Ping()
	require.Eventually(t, func() bool {
		return c.LastPong().After(before)
	}, waitFor, pollEvery)
}
