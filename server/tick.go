package server

import (
	"time"

	"astroarena/protocol"
)

// runRoomDriver 房间驱动协程：一个处于活跃回合流程的房间对应一个。
// 流程：名单防抖倒计时 → 开局 → 按 TickRate 推进模拟并扇出增量 →
// 存活者不足 2 时结束回合回到大厅
func runRoomDriver(ctx *ServerContext, g *GameRoom) {
	defer func() {
		g.mu.Lock()
		g.driverOn = false
		g.mu.Unlock()
	}()

	if !waitForStableRoster(ctx, g) {
		return
	}
	if !startRound(ctx, g) {
		return
	}
	runTicks(ctx, g)
}

// waitForStableRoster 开局防抖：公布一个固定延迟后的开局时刻，
// 到点复核挂接名单未变才放行；倒计时期间有人进出则重置重来，
// 避免用过期名单开局
func waitForStableRoster(ctx *ServerContext, g *GameRoom) bool {
	for {
		tn := g.Tuning()
		roster := g.AttachedClients()
		if len(roster) < 2 {
			return false
		}

		frame, err := protocol.NewFrame(protocol.TagNewGameSoon).
			AppendU32(uint32(tn.Countdown.Milliseconds())).Bytes()
		if err != nil {
			return false
		}
		broadcastFrame(ctx, g.Metrics(), roster, frame, 0)

		timer := time.NewTimer(tn.Countdown)
		select {
		case <-timer.C:
		case <-ctx.Stopped():
			timer.Stop()
			return false
		}

		if rosterEqual(roster, g.AttachedClients()) {
			return true
		}
		Log.Debugw("roster changed during countdown, re-arming", "room", g.ID)
	}
}

// startRound 防抖落定后的 LOBBY → GAME 切换：
// 为当前挂接的全部玩家重置模拟并通知开始渲染回合
func startRound(ctx *ServerContext, g *GameRoom) bool {
	g.mu.Lock()
	if len(g.attached) < 2 || g.status == protocol.RoomGame {
		g.mu.Unlock()
		return false
	}
	active := make([]bool, len(g.slots))
	for i := range g.slots {
		active[i] = g.slots[i].State != protocol.SlotNone
	}
	g.sim.Reset(active)
	g.status = protocol.RoomGame
	roster := g.attachedLocked()
	g.mu.Unlock()

	Log.Infow("round started", "room", g.ID, "players", len(roster))
	frame, err := protocol.NewFrame(protocol.TagStartRound).Bytes()
	if err != nil {
		return false
	}
	broadcastFrame(ctx, g.Metrics(), roster, frame, 0)
	return true
}

// runTicks 对局主循环：每个 Tick 用真实流逝时间推进模拟，
// 为每条增量、每个挂接客户端入队一条通知命令
func runTicks(ctx *ServerContext, g *GameRoom) {
	interval := time.Second / time.Duration(ctx.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Stopped():
			// 停机：把房间放回大厅态即可，不再发任何通知
			g.mu.Lock()
			g.status = protocol.RoomLobby
			g.mu.Unlock()
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			tickStart := time.Now()

			g.mu.Lock()
			tn := g.tuning
			deltas := g.sim.Tick(dt, &tn)
			alive, lastAlive := g.sim.ActiveShips()
			over := alive < 2 || len(g.attached) < 2
			var winner int32 = NoWinnerYet
			var roundDur time.Duration
			if over {
				if alive == 1 {
					winner = lastAlive
				}
				roundDur = now.Sub(g.sim.roundStart)
				g.sim.WinnerID = winner
				g.status = protocol.RoomLobby
				for i := range g.slots {
					if g.slots[i].State != protocol.SlotNone {
						g.slots[i].State = protocol.SlotNotReady
					}
				}
				g.lobbyHoldUntil = time.Now().Add(tn.LobbyDelay)
			}
			roster := g.attachedLocked()
			skips := g.sim.TakeSpawnSkips()
			g.mu.Unlock()

			fanoutDeltas(ctx, g, roster, deltas)
			g.metrics.AddTick(time.Since(tickStart).Nanoseconds())
			g.metrics.AddDeltas(int64(len(deltas)))
			if skips > 0 {
				g.metrics.AddSpawnsSkipped(skips)
			}

			if over {
				endRound(ctx, g, roster, winner, &tn, roundDur)
				return
			}
		}
	}
}

// endRound GAME → LOBBY 收尾：公布胜者与结算时长，再告知返回大厅的冷却
func endRound(ctx *ServerContext, g *GameRoom, roster []uint32, winner int32, tn *Tuning, dur time.Duration) {
	g.metrics.IncRoundsPlayed()
	Log.Infow("round ended", "room", g.ID, "winner", winner, "duration", dur.Round(time.Millisecond))

	frame, err := protocol.NewFrame(protocol.TagEndRound).
		AppendU32(uint32(winner)).
		AppendU32(uint32(tn.EndShow.Milliseconds())).Bytes()
	if err != nil {
		return
	}
	broadcastFrame(ctx, g.Metrics(), roster, frame, 0)

	frame, err = protocol.NewFrame(protocol.TagReturnToLobby).
		AppendU32(uint32(tn.LobbyDelay.Milliseconds())).Bytes()
	if err != nil {
		return
	}
	broadcastFrame(ctx, g.Metrics(), roster, frame, 0)
}

// fanoutDeltas 把本 Tick 的增量逐条、逐客户端入队。
// 每条只携带变更实体的 id（生成事件附带完整快照），
// 稳态带宽与变更量成正比而非与世界大小成正比
func fanoutDeltas(ctx *ServerContext, g *GameRoom, roster []uint32, deltas []Delta) {
	for _, d := range deltas {
		var (
			frame []byte
			err   error
		)
		switch d.Kind {
		case DeltaAsteroidSpawned:
			frame, err = protocol.NewFrame(protocol.TagSpawnAsteroid).
				AppendU32(uint32(d.ID)).AppendRecord(d.Asteroid).Bytes()
		case DeltaAsteroidDestroyed:
			frame, err = protocol.NewFrame(protocol.TagAsteroidDestroyed).
				AppendU32(uint32(d.ID)).Bytes()
		case DeltaPlayerDestroyed:
			frame, err = protocol.NewFrame(protocol.TagPlayerDestroyed).
				AppendU32(uint32(d.ID)).Bytes()
		case DeltaBulletDestroyed:
			frame, err = protocol.NewFrame(protocol.TagBulletDestroyed).
				AppendU32(uint32(d.ID)).Bytes()
		default:
			continue
		}
		if err != nil {
			continue
		}
		broadcastFrame(ctx, g.Metrics(), roster, frame, 0)
	}
}

func rosterEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
