package server

import (
	"math"
	"math/rand"
	"time"

	"astroarena/protocol"
)

// NoWinnerYet WinnerID 的哨兵值：回合尚无胜者
const NoWinnerYet int32 = -1

// 运动学常量：轻微阻尼让松开推进的飞船缓慢减速
const shipDrag = 0.35 // 每秒速度衰减比例

// DeltaKind 本 Tick 内槽位 空闲↔激活 跳变的种类
type DeltaKind int

const (
	DeltaAsteroidSpawned DeltaKind = iota
	DeltaAsteroidDestroyed
	DeltaPlayerDestroyed
	DeltaBulletDestroyed
)

// Delta 一条最小变更描述：只带变更实体的 id，
// 仅生成事件附带新实体的完整快照，绝不下发整局状态
type Delta struct {
	Kind     DeltaKind
	ID       int32
	Asteroid protocol.AsteroidSnapshot // 仅 DeltaAsteroidSpawned 有效
}

// SimulationState 一个房间的权威模拟状态。
// 本身不带锁：所有读写都必须在所属 GameRoom 的互斥锁内进行。
type SimulationState struct {
	Players   []SimPlayer
	Asteroids []Asteroid // 定长槽位池，空闲即 !Active
	Bullets   []Bullet   // 按玩家槽位等分为连续分区

	perPlayer      int
	worldW, worldH float64

	spawnTimer float64
	spawnSkips int64
	roundStart time.Time
	WinnerID   int32

	rng *rand.Rand
}

// NewSimulation 按配置建立全部槽位池
func NewSimulation(cfg *Config) *SimulationState {
	return &SimulationState{
		Players:   make([]SimPlayer, cfg.MaxPlayers),
		Asteroids: make([]Asteroid, cfg.AsteroidPool),
		Bullets:   make([]Bullet, cfg.MaxPlayers*cfg.BulletsPerPlayer),
		perPlayer: cfg.BulletsPerPlayer,
		worldW:    cfg.World.Width,
		worldH:    cfg.World.Height,
		WinnerID:  NoWinnerYet,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Reset 开局重置：激活指定槽位的飞船并摆到出生点，清空陨石与子弹
func (s *SimulationState) Reset(activeSlots []bool) {
	for i := range s.Players {
		p := &s.Players[i]
		*p = SimPlayer{}
		if i < len(activeSlots) && activeSlots[i] {
			// 出生点沿世界四角内缩摆放，朝向场地中心
			fx := 0.2 + 0.6*float64(i%2)
			fy := 0.2 + 0.6*float64((i/2)%2)
			p.X = s.worldW * fx
			p.Y = s.worldH * fy
			p.Rotation = math.Atan2(s.worldH/2-p.Y, s.worldW/2-p.X)
			p.Active = true
			p.Color = ShipColor(i)
		}
	}
	for i := range s.Asteroids {
		s.Asteroids[i] = Asteroid{}
	}
	for i := range s.Bullets {
		s.Bullets[i] = Bullet{}
	}
	s.spawnTimer = 0
	s.spawnSkips = 0
	s.roundStart = time.Now()
	s.WinnerID = NoWinnerYet
}

// Tick 推进一帧：运动学 → 生成器 → 碰撞判定，返回本帧全部增量
func (s *SimulationState) Tick(dt float64, tn *Tuning) []Delta {
	var deltas []Delta

	s.stepKinematics(dt, &deltas)
	s.stepSpawner(dt, tn, &deltas)
	s.stepCollisions(tn, &deltas)

	return deltas
}

func (s *SimulationState) stepKinematics(dt float64, deltas *[]Delta) {
	damp := 1 - shipDrag*dt
	if damp < 0 {
		damp = 0
	}
	for i := range s.Players {
		p := &s.Players[i]
		if !p.Active {
			continue
		}
		p.VX *= damp
		p.VY *= damp
		p.X = wrap(p.X+p.VX*dt, s.worldW)
		p.Y = wrap(p.Y+p.VY*dt, s.worldH)
	}
	for i := range s.Asteroids {
		a := &s.Asteroids[i]
		if !a.Active {
			continue
		}
		a.X = wrap(a.X+a.VX*dt, s.worldW)
		a.Y = wrap(a.Y+a.VY*dt, s.worldH)
	}
	for i := range s.Bullets {
		b := &s.Bullets[i]
		if !b.Active {
			continue
		}
		b.X += b.VX * dt
		b.Y += b.VY * dt
		b.TTL -= dt
		// 子弹不回绕：出界或存活期耗尽即销毁，槽位回收
		if b.TTL <= 0 || b.X < 0 || b.X > s.worldW || b.Y < 0 || b.Y > s.worldH {
			b.Active = false
			*deltas = append(*deltas, Delta{Kind: DeltaBulletDestroyed, ID: int32(i)})
		}
	}
}

func (s *SimulationState) stepSpawner(dt float64, tn *Tuning, deltas *[]Delta) {
	// 配置层已拒绝非正间隔，这里再挡一道，扣减循环绝不能自旋
	if tn.SpawnInterval <= 0 {
		return
	}
	s.spawnTimer += dt
	for s.spawnTimer >= tn.SpawnInterval {
		s.spawnTimer -= tn.SpawnInterval
		idx := s.freeAsteroidSlot()
		if idx < 0 {
			// 池耗尽：记日志后跳过本次生成，绝不致命
			s.spawnSkips++
			Log.Debugw("asteroid pool exhausted, spawn skipped")
			continue
		}
		a := &s.Asteroids[idx]
		// 从场地边缘随机一侧进场
		heading := s.rng.Float64() * 2 * math.Pi
		speed := 40 + s.rng.Float64()*60
		switch s.rng.Intn(4) {
		case 0:
			a.X, a.Y = 0, s.rng.Float64()*s.worldH
		case 1:
			a.X, a.Y = s.worldW, s.rng.Float64()*s.worldH
		case 2:
			a.X, a.Y = s.rng.Float64()*s.worldW, 0
		default:
			a.X, a.Y = s.rng.Float64()*s.worldW, s.worldH
		}
		a.VX = math.Cos(heading) * speed
		a.VY = math.Sin(heading) * speed
		a.Radius = tn.AsteroidRadius * (0.8 + s.rng.Float64()*0.4)
		a.Active = true
		*deltas = append(*deltas, Delta{
			Kind: DeltaAsteroidSpawned, ID: int32(idx),
			Asteroid: a.snapshot(int32(idx)),
		})
	}
}

func (s *SimulationState) stepCollisions(tn *Tuning, deltas *[]Delta) {
	// 子弹 × 陨石：双方销毁，陨石分裂
	for bi := range s.Bullets {
		b := &s.Bullets[bi]
		if !b.Active {
			continue
		}
		for ai := range s.Asteroids {
			a := &s.Asteroids[ai]
			if !a.Active {
				continue
			}
			if !circlesHit(b.X, b.Y, BulletRadius, a.X, a.Y, a.Radius) {
				continue
			}
			b.Active = false
			a.Active = false
			*deltas = append(*deltas, Delta{Kind: DeltaBulletDestroyed, ID: int32(bi)})
			*deltas = append(*deltas, Delta{Kind: DeltaAsteroidDestroyed, ID: int32(ai)})
			s.splitAsteroid(a, tn, deltas)
			break
		}
	}

	// 子弹 × 异槽位飞船：双方销毁
	for bi := range s.Bullets {
		b := &s.Bullets[bi]
		if !b.Active {
			continue
		}
		owner := bi / s.perPlayer
		for pi := range s.Players {
			p := &s.Players[pi]
			if !p.Active || pi == owner {
				continue
			}
			if !circlesHit(b.X, b.Y, BulletRadius, p.X, p.Y, ShipRadius) {
				continue
			}
			b.Active = false
			p.Active = false
			*deltas = append(*deltas, Delta{Kind: DeltaBulletDestroyed, ID: int32(bi)})
			*deltas = append(*deltas, Delta{Kind: DeltaPlayerDestroyed, ID: int32(pi)})
			break
		}
	}

	// 飞船 × 陨石：飞船销毁
	for pi := range s.Players {
		p := &s.Players[pi]
		if !p.Active {
			continue
		}
		for ai := range s.Asteroids {
			a := &s.Asteroids[ai]
			if !a.Active {
				continue
			}
			if circlesHit(p.X, p.Y, ShipRadius, a.X, a.Y, a.Radius) {
				p.Active = false
				*deltas = append(*deltas, Delta{Kind: DeltaPlayerDestroyed, ID: int32(pi)})
				break
			}
		}
	}
}

// splitAsteroid 把被击中的陨石分裂为至多两个反向小块；
// 小于最小半径的子块直接放弃，槽位留作复用
func (s *SimulationState) splitAsteroid(parent *Asteroid, tn *Tuning, deltas *[]Delta) {
	child := parent.Radius * 0.55
	if child < tn.MinAsteroidRadius {
		return
	}
	base := math.Atan2(parent.VY, parent.VX)
	speed := math.Hypot(parent.VX, parent.VY)*1.15 + 20
	for _, side := range [2]float64{1, -1} {
		idx := s.freeAsteroidSlot()
		if idx < 0 {
			s.logPoolFull()
			return
		}
		heading := base + side*(math.Pi/2+(s.rng.Float64()-0.5)*0.6)
		a := &s.Asteroids[idx]
		a.X, a.Y = parent.X, parent.Y
		a.VX = math.Cos(heading) * speed
		a.VY = math.Sin(heading) * speed
		a.Radius = child
		a.Active = true
		*deltas = append(*deltas, Delta{
			Kind: DeltaAsteroidSpawned, ID: int32(idx),
			Asteroid: a.snapshot(int32(idx)),
		})
	}
}

func (s *SimulationState) logPoolFull() {
	s.spawnSkips++
	Log.Debugw("asteroid pool exhausted, split child dropped")
}

// TakeSpawnSkips 取走并清零自上次统计以来被放弃的生成次数；
// 调用方必须持有所属房间的锁
func (s *SimulationState) TakeSpawnSkips() int64 {
	n := s.spawnSkips
	s.spawnSkips = 0
	return n
}

// freeAsteroidSlot 线性找一个空闲槽位；无则返回 -1
func (s *SimulationState) freeAsteroidSlot() int {
	for i := range s.Asteroids {
		if !s.Asteroids[i].Active {
			return i
		}
	}
	return -1
}

// ShootBullet 在射手分区内激活一颗子弹；分区耗尽返回 false
func (s *SimulationState) ShootBullet(slot int, tn *Tuning) bool {
	if slot < 0 || slot >= len(s.Players) || !s.Players[slot].Active {
		return false
	}
	p := &s.Players[slot]
	lo := slot * s.perPlayer
	for i := lo; i < lo+s.perPlayer; i++ {
		b := &s.Bullets[i]
		if b.Active {
			continue
		}
		dx, dy := math.Cos(p.Rotation), math.Sin(p.Rotation)
		b.X = p.X + dx*(ShipRadius+BulletRadius)
		b.Y = p.Y + dy*(ShipRadius+BulletRadius)
		b.VX = p.VX + dx*tn.BulletSpeed
		b.VY = p.VY + dy*tn.BulletSpeed
		b.TTL = tn.BulletTTL
		b.Active = true
		return true
	}
	return false
}

// ApplyMovement 采纳客户端上报的运动记录（位置回绕进场地）。
// NaN/Inf 会让碰撞判定永远为假，飞船变成打不死的幽灵，整条上报直接丢弃
func (s *SimulationState) ApplyMovement(slot int, mv protocol.Movement) {
	if slot < 0 || slot >= len(s.Players) || !s.Players[slot].Active {
		return
	}
	if !finite(mv.X) || !finite(mv.Y) || !finite(mv.VX) || !finite(mv.VY) || !finite(mv.Rotation) {
		Log.Warnw("non-finite movement dropped", "slot", slot)
		return
	}
	p := &s.Players[slot]
	p.X = wrap(mv.X, s.worldW)
	p.Y = wrap(mv.Y, s.worldH)
	p.VX, p.VY = mv.VX, mv.VY
	p.Rotation = mv.Rotation
}

// ActiveShips 返回存活飞船数与最后一名存活者的槽位
func (s *SimulationState) ActiveShips() (count int, last int32) {
	last = NoWinnerYet
	for i := range s.Players {
		if s.Players[i].Active {
			count++
			last = int32(i)
		}
	}
	return count, last
}

// ClearSlot 玩家离开时清掉其飞船与整段子弹分区
func (s *SimulationState) ClearSlot(slot int) {
	if slot < 0 || slot >= len(s.Players) {
		return
	}
	s.Players[slot] = SimPlayer{}
	lo := slot * s.perPlayer
	for i := lo; i < lo+s.perPlayer && i < len(s.Bullets); i++ {
		s.Bullets[i] = Bullet{}
	}
}

// SnapshotPlayers 全部飞船槽位快照
func (s *SimulationState) SnapshotPlayers() []protocol.PlayerSnapshot {
	out := make([]protocol.PlayerSnapshot, len(s.Players))
	for i := range s.Players {
		out[i] = s.Players[i].snapshot(int32(i))
	}
	return out
}

// SnapshotAsteroids 全部陨石槽位快照
func (s *SimulationState) SnapshotAsteroids() []protocol.AsteroidSnapshot {
	out := make([]protocol.AsteroidSnapshot, len(s.Asteroids))
	for i := range s.Asteroids {
		out[i] = s.Asteroids[i].snapshot(int32(i))
	}
	return out
}

// SnapshotBullets 全部子弹槽位快照
func (s *SimulationState) SnapshotBullets() []protocol.BulletSnapshot {
	out := make([]protocol.BulletSnapshot, len(s.Bullets))
	for i := range s.Bullets {
		out[i] = s.Bullets[i].snapshot(int32(i))
	}
	return out
}

// SnapshotGame 整局快照（仅用于客户端显式拉取）
func (s *SimulationState) SnapshotGame() protocol.GameSnapshot {
	return protocol.GameSnapshot{
		Players:   s.SnapshotPlayers(),
		Asteroids: s.SnapshotAsteroids(),
		Bullets:   s.SnapshotBullets(),
		WinnerID:  s.WinnerID,
	}
}

// wrap 取模回绕，入参可以是任意有限值（坐标由客户端上报，不可信）
func wrap(v, max float64) float64 {
	if max <= 0 {
		return v
	}
	v = math.Mod(v, max)
	if v < 0 {
		v += max
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func circlesHit(x1, y1, r1, x2, y2, r2 float64) bool {
	dx, dy := x1-x2, y1-y2
	rr := r1 + r2
	return dx*dx+dy*dy < rr*rr
}
