package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount      int64 // 统计的 Tick 次数
	TotalTickNs    int64 // Tick 累计耗时（纳秒）
	DeltasEmitted  int64 // 本房间产生的增量事件数
	CommandsQueued int64 // 扇出到各客户端命令队列的命令数
	FanoutSkipped  int64 // 目标会话已不存在而跳过的扇出
	RoundsPlayed   int64 // 完整进行过的回合数
	SpawnsSkipped  int64 // 槽位池耗尽而放弃的生成次数
}

func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

func (m *RoomMetrics) AddDeltas(n int64) { atomic.AddInt64(&m.DeltasEmitted, n) }
func (m *RoomMetrics) AddQueued(n int64) { atomic.AddInt64(&m.CommandsQueued, n) }
func (m *RoomMetrics) IncFanoutSkipped() { atomic.AddInt64(&m.FanoutSkipped, 1) }
func (m *RoomMetrics) IncRoundsPlayed()  { atomic.AddInt64(&m.RoundsPlayed, 1) }

func (m *RoomMetrics) AddSpawnsSkipped(n int64) { atomic.AddInt64(&m.SpawnsSkipped, n) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":      tick,
		"avg_tick_ms":     avgMs,
		"deltas_emitted":  atomic.LoadInt64(&m.DeltasEmitted),
		"commands_queued": atomic.LoadInt64(&m.CommandsQueued),
		"fanout_skipped":  atomic.LoadInt64(&m.FanoutSkipped),
		"rounds_played":   atomic.LoadInt64(&m.RoundsPlayed),
		"spawns_skipped":  atomic.LoadInt64(&m.SpawnsSkipped),
	}
}
