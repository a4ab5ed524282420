package server

import (
	"sync"
	"time"

	"astroarena/protocol"
)

// NotJoined player_id / room_id 的未加入哨兵
const NotJoined int32 = -1

// Tuning 房间运行参数，可经 /admin/config 热更新（持房间锁读写）
type Tuning struct {
	SpawnInterval     float64       // 陨石生成间隔（秒）
	Countdown         time.Duration // 开局倒计时（名单防抖窗口）
	LobbyDelay        time.Duration // 回合结束后大厅冷却
	EndShow           time.Duration // 结算展示时长
	BulletSpeed       float64
	BulletTTL         float64
	AsteroidRadius    float64
	MinAsteroidRadius float64
}

func tuningFromConfig(cfg *Config) Tuning {
	return Tuning{
		SpawnInterval:     float64(cfg.SpawnIntervalMs) / 1000,
		Countdown:         time.Duration(cfg.CountdownMs) * time.Millisecond,
		LobbyDelay:        time.Duration(cfg.LobbyDelayMs) * time.Millisecond,
		EndShow:           time.Duration(cfg.EndShowMs) * time.Millisecond,
		BulletSpeed:       cfg.BulletSpeed,
		BulletTTL:         cfg.BulletTTL,
		AsteroidRadius:    cfg.AsteroidRadius,
		MinAsteroidRadius: cfg.MinAsteroidRadius,
	}
}

// playerSlot 房间内一个玩家槽位；player_id 即下标
type playerSlot struct {
	State    int32  // SlotNone / SlotNotReady / SlotReady
	ClientID uint32 // 占用该槽位的客户端，空槽为 0
}

// GameRoom 一个房间：大厅元数据 + 权威模拟 + 当前挂接的客户端集合。
// 不变式：触碰房间或模拟字段的读-改-写都必须持有 mu；
// 房间在启动时创建一次，终身不销毁，状态在 LOBBY ⇄ GAME 间循环。
type GameRoom struct {
	ID uint32

	mu       sync.Mutex
	status   int32 // protocol.RoomLobby / protocol.RoomGame
	slots    []playerSlot
	sim      *SimulationState
	attached map[uint32]struct{} // 挂接中的 client_id

	driverOn       bool      // 房间驱动协程是否在跑
	lobbyHoldUntil time.Time // 冷却结束前忽略准备投票

	tuning  Tuning
	metrics RoomMetrics
}

// NewGameRoom 创建房间（仅服务启动时调用）
func NewGameRoom(id uint32, cfg *Config) *GameRoom {
	return &GameRoom{
		ID:       id,
		status:   protocol.RoomLobby,
		slots:    make([]playerSlot, cfg.MaxPlayers),
		sim:      NewSimulation(cfg),
		attached: make(map[uint32]struct{}),
		tuning:   tuningFromConfig(cfg),
	}
}

// Info 房间元数据快照
func (g *GameRoom) Info() protocol.RoomInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.infoLocked()
}

func (g *GameRoom) infoLocked() protocol.RoomInfo {
	info := protocol.RoomInfo{
		RoomID:  g.ID,
		Status:  g.status,
		Players: make([]protocol.PlayerSlot, len(g.slots)),
	}
	for i := range g.slots {
		info.Players[i] = protocol.PlayerSlot{PlayerID: int32(i), State: g.slots[i].State}
	}
	return info
}

// Join 挂接客户端并分配第一个空槽位；满员或重复加入返回 false
func (g *GameRoom) Join(clientID uint32) (int32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.attached[clientID]; dup {
		return NotJoined, false
	}
	for i := range g.slots {
		if g.slots[i].State != protocol.SlotNone {
			continue
		}
		g.slots[i] = playerSlot{State: protocol.SlotNotReady, ClientID: clientID}
		g.attached[clientID] = struct{}{}
		return int32(i), true
	}
	return NotJoined, false
}

// Leave 解除挂接并清空槽位；对局中人数跌破 2 时回合由驱动协程
// 在下一个 Tick 边界终止（驱动自己检查挂接数）
func (g *GameRoom) Leave(clientID uint32) (int32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.attached[clientID]; !ok {
		return NotJoined, false
	}
	delete(g.attached, clientID)
	for i := range g.slots {
		if g.slots[i].ClientID != clientID || g.slots[i].State == protocol.SlotNone {
			continue
		}
		g.slots[i] = playerSlot{}
		g.sim.ClearSlot(i)
		return int32(i), true
	}
	return NotJoined, true
}

// VoteReady 将投票者槽位置为 READY；当 READY ≥ 2 且不在对局中、
// 驱动未启动且冷却已过时，交由调用方启动房间驱动（arm=true）
func (g *GameRoom) VoteReady(clientID uint32) (slots []protocol.PlayerSlot, arm bool, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.slotOfLocked(clientID)
	if idx < 0 {
		return nil, false, false
	}
	if g.status == protocol.RoomGame || time.Now().Before(g.lobbyHoldUntil) {
		// 对局中或冷却期的投票按软性无效处理
		return g.infoLocked().Players, false, true
	}
	g.slots[idx].State = protocol.SlotReady

	ready := 0
	for i := range g.slots {
		if g.slots[i].State == protocol.SlotReady {
			ready++
		}
	}
	if ready >= 2 && !g.driverOn {
		g.driverOn = true
		arm = true
	}
	return g.infoLocked().Players, arm, true
}

// AttachedClients 当前挂接的 client_id 快照（升序，供名单防抖比较）
func (g *GameRoom) AttachedClients() []uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attachedLocked()
}

func (g *GameRoom) attachedLocked() []uint32 {
	out := make([]uint32, 0, len(g.attached))
	for id := range g.attached {
		out = append(out, id)
	}
	// 集合很小，插入排序足够
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (g *GameRoom) slotOfLocked(clientID uint32) int {
	for i := range g.slots {
		if g.slots[i].State != protocol.SlotNone && g.slots[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

// Status 当前房间状态
func (g *GameRoom) Status() int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Tuning 读取当前运行参数副本
func (g *GameRoom) Tuning() Tuning {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tuning
}

// SetTuning 热更新运行参数
func (g *GameRoom) SetTuning(tn Tuning) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tuning = tn
}

// Metrics 指标访问器（内部原子计数，无需持锁）
func (g *GameRoom) Metrics() *RoomMetrics {
	return &g.metrics
}

// ApplyMovement 采纳某客户端上报的运动记录；未挂接时软性忽略
func (g *GameRoom) ApplyMovement(clientID uint32, mv protocol.Movement) (int32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.slotOfLocked(clientID)
	if idx < 0 {
		return NotJoined, false
	}
	g.sim.ApplyMovement(idx, mv)
	return int32(idx), true
}

// Shoot 射手分区内激活一颗子弹；不在对局中或分区耗尽返回 false
func (g *GameRoom) Shoot(clientID uint32) (int32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.slotOfLocked(clientID)
	if idx < 0 || g.status != protocol.RoomGame {
		return NotJoined, false
	}
	if !g.sim.ShootBullet(idx, &g.tuning) {
		// 分区耗尽：记日志后静默跳过
		Log.Debugw("bullet partition exhausted", "room", g.ID, "player", idx)
		return int32(idx), false
	}
	return int32(idx), true
}

// GameSnapshot 整局快照
func (g *GameRoom) GameSnapshot() protocol.GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sim.SnapshotGame()
}

// PlayersSnapshot 全部飞船快照
func (g *GameRoom) PlayersSnapshot() []protocol.PlayerSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sim.SnapshotPlayers()
}

// AsteroidsSnapshot 全部陨石快照
func (g *GameRoom) AsteroidsSnapshot() []protocol.AsteroidSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sim.SnapshotAsteroids()
}

// BulletsSnapshot 全部子弹快照
func (g *GameRoom) BulletsSnapshot() []protocol.BulletSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sim.SnapshotBullets()
}

// Registry 启动时创建的固定房间集合；房间终身存在，无增删
type Registry struct {
	rooms []*GameRoom
}

// NewRegistry 创建 cfg.Rooms 个房间，room_id 从 1 起编号
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{rooms: make([]*GameRoom, cfg.Rooms)}
	for i := range r.rooms {
		r.rooms[i] = NewGameRoom(uint32(i+1), cfg)
	}
	return r
}

// Get 按 room_id 查房间；未知 id 返回 false（并发竞态下属预期情况）
func (r *Registry) Get(id uint32) (*GameRoom, bool) {
	if id < 1 || int(id) > len(r.rooms) {
		return nil, false
	}
	return r.rooms[id-1], true
}

// All 全部房间（固定切片，只读）
func (r *Registry) All() []*GameRoom {
	return r.rooms
}

// Snapshot room_id → RoomInfo 的全量快照（GetRoomList 应答）
func (r *Registry) Snapshot() protocol.RoomList {
	out := make(protocol.RoomList, len(r.rooms))
	for _, g := range r.rooms {
		out[g.ID] = g.Info()
	}
	return out
}
