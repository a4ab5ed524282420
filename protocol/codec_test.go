package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroarena/protocol"
)

// TestFrameScalarRoundTrip 标量帧编解码往返
func TestFrameScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		tag  protocol.Tag
		vals []uint32
	}{
		{"tag only", protocol.TagCheckConnection, nil},
		{"one scalar", protocol.TagJoinRoom, []uint32{7}},
		{"two scalars", protocol.TagEndRound, []uint32{3, 5000}},
		{"zero value", protocol.TagGetClientID, []uint32{0}},
		{"max u32", protocol.TagEndRound, []uint32{protocol.NoWinner, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := protocol.NewFrame(tt.tag)
			for _, v := range tt.vals {
				w.AppendU32(v)
			}
			b, err := w.Bytes()
			require.NoError(t, err)
			// 帧长应精确：4 字节标签 + 每标量 4 字节
			require.Len(t, b, 4+4*len(tt.vals))

			r := protocol.NewReader(b)
			tag, err := r.ReadTag()
			require.NoError(t, err)
			assert.Equal(t, tt.tag, tag)
			for _, v := range tt.vals {
				got, err := r.ReadU32()
				require.NoError(t, err)
				assert.Equal(t, v, got)
			}
			assert.Zero(t, r.Remaining())
		})
	}
}

// TestRecordRoundTrip 结构化记录（含长度前缀）编解码往返
func TestRecordRoundTrip(t *testing.T) {
	t.Run("room info", func(t *testing.T) {
		in := protocol.RoomInfo{
			RoomID: 2,
			Status: protocol.RoomGame,
			Players: []protocol.PlayerSlot{
				{PlayerID: 0, State: protocol.SlotReady},
				{PlayerID: 1, State: protocol.SlotNotReady},
				{PlayerID: 2, State: protocol.SlotNone},
				{PlayerID: 3, State: protocol.SlotNone},
			},
		}
		b, err := protocol.NewFrame(protocol.TagUpdateRoomState).AppendRecord(in).Bytes()
		require.NoError(t, err)

		r := protocol.NewReader(b)
		tag, err := r.ReadTag()
		require.NoError(t, err)
		require.Equal(t, protocol.TagUpdateRoomState, tag)

		var out protocol.RoomInfo
		require.NoError(t, r.ReadRecord(&out))
		assert.Equal(t, in, out)
		assert.Zero(t, r.Remaining())
	})

	t.Run("room list", func(t *testing.T) {
		in := protocol.RoomList{
			1: {RoomID: 1, Status: protocol.RoomLobby, Players: []protocol.PlayerSlot{{PlayerID: 0, State: protocol.SlotNone}}},
			2: {RoomID: 2, Status: protocol.RoomGame, Players: []protocol.PlayerSlot{{PlayerID: 0, State: protocol.SlotReady}}},
		}
		b, err := protocol.NewFrame(protocol.TagGetRoomList).AppendRecord(in).Bytes()
		require.NoError(t, err)

		r := protocol.NewReader(b)
		_, err = r.ReadTag()
		require.NoError(t, err)
		var out protocol.RoomList
		require.NoError(t, r.ReadRecord(&out))
		assert.Equal(t, in, out)
	})

	t.Run("game snapshot", func(t *testing.T) {
		in := protocol.GameSnapshot{
			Players: []protocol.PlayerSnapshot{
				{ID: 0, X: 100.5, Y: 200.25, VX: -3, VY: 4, Rotation: 1.57, Active: true, Color: 0xE74C3CFF},
			},
			Asteroids: []protocol.AsteroidSnapshot{
				{ID: 5, X: 1, Y: 2, VX: 3, VY: 4, Radius: 42, Active: true},
			},
			Bullets: []protocol.BulletSnapshot{
				{ID: 9, X: 7, Y: 8, VX: 400, VY: 0, Active: false},
			},
			WinnerID: -1,
		}
		b, err := protocol.NewFrame(protocol.TagUpdateGameState).AppendRecord(in).Bytes()
		require.NoError(t, err)

		r := protocol.NewReader(b)
		_, err = r.ReadTag()
		require.NoError(t, err)
		var out protocol.GameSnapshot
		require.NoError(t, r.ReadRecord(&out))
		assert.Equal(t, in, out)
	})

	t.Run("mixed scalar then record", func(t *testing.T) {
		snap := protocol.AsteroidSnapshot{ID: 3, X: 10, Y: 20, Radius: 23.1, Active: true}
		b, err := protocol.NewFrame(protocol.TagSpawnAsteroid).
			AppendU32(3).AppendRecord(snap).Bytes()
		require.NoError(t, err)

		r := protocol.NewReader(b)
		tag, err := r.ReadTag()
		require.NoError(t, err)
		assert.Equal(t, protocol.TagSpawnAsteroid, tag)
		id, err := r.ReadU32()
		require.NoError(t, err)
		assert.Equal(t, uint32(3), id)
		var out protocol.AsteroidSnapshot
		require.NoError(t, r.ReadRecord(&out))
		assert.Equal(t, snap, out)
	})
}

// TestReaderShortFrame 短读必须报错而不是恐慌或返回半截值
func TestReaderShortFrame(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"truncated tag", []byte{0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := protocol.NewReader(tt.buf)
			_, err := r.ReadTag()
			assert.ErrorIs(t, err, protocol.ErrShortFrame)
		})
	}

	t.Run("scalar missing after tag", func(t *testing.T) {
		b, err := protocol.NewFrame(protocol.TagJoinRoom).Bytes()
		require.NoError(t, err)
		r := protocol.NewReader(b)
		_, err = r.ReadTag()
		require.NoError(t, err)
		_, err = r.ReadU32()
		assert.ErrorIs(t, err, protocol.ErrShortFrame)
	})

	t.Run("record length beyond frame", func(t *testing.T) {
		// 长度前缀声称 100 字节但帧里没有
		b, err := protocol.NewFrame(protocol.TagVoteReady).AppendU32(100).Bytes()
		require.NoError(t, err)
		r := protocol.NewReader(b)
		_, err = r.ReadTag()
		require.NoError(t, err)
		var out []protocol.PlayerSlot
		assert.ErrorIs(t, r.ReadRecord(&out), protocol.ErrBadLength)
	})
}

// TestServerOnlyTags 越权标签判定
func TestServerOnlyTags(t *testing.T) {
	serverOnly := []protocol.Tag{
		protocol.TagStartRound, protocol.TagEndRound, protocol.TagNewGameSoon,
		protocol.TagReturnToLobby, protocol.TagSpawnAsteroid,
		protocol.TagAsteroidDestroyed, protocol.TagPlayerDestroyed, protocol.TagBulletDestroyed,
	}
	for _, tag := range serverOnly {
		assert.True(t, protocol.ServerOnly(tag), tag.String())
	}
	clientTags := []protocol.Tag{
		protocol.TagGetClientID, protocol.TagGetRoomList, protocol.TagJoinRoom,
		protocol.TagVoteReady, protocol.TagCheckConnection,
	}
	for _, tag := range clientTags {
		assert.False(t, protocol.ServerOnly(tag), tag.String())
	}
}
