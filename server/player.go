package server

import "astroarena/protocol"

// 模拟世界里的实体都放在定长槽位池中：slot 空闲当且仅当 Active == false，
// 释放后原地复用，从不压缩搬移，也不动态扩容。

// ShipRadius 飞船碰撞半径；BulletRadius 子弹碰撞半径
const (
	ShipRadius   = 16.0
	BulletRadius = 3.0
)

// shipPalette 按玩家槽位下标取色（RGBA）
var shipPalette = [...]uint32{
	0xE74C3CFF, // 红
	0x3498DBFF, // 蓝
	0x2ECC71FF, // 绿
	0xF1C40FFF, // 黄
	0x9B59B6FF,
	0x1ABC9CFF,
	0xE67E22FF,
	0xECF0F1FF,
}

// ShipColor 槽位下标对应的飞船颜色
func ShipColor(slot int) uint32 {
	return shipPalette[slot%len(shipPalette)]
}

// SimPlayer 服务端权威的飞船状态
type SimPlayer struct {
	X, Y     float64
	VX, VY   float64
	Rotation float64
	Active   bool
	Color    uint32
}

// Asteroid 陨石（障碍物）槽位
type Asteroid struct {
	X, Y   float64
	VX, VY float64
	Radius float64
	Active bool
}

// Bullet 子弹槽位；TTL 以秒计，归零即失效
type Bullet struct {
	X, Y   float64
	VX, VY float64
	TTL    float64
	Active bool
}

func (p *SimPlayer) snapshot(id int32) protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		ID: id, X: p.X, Y: p.Y, VX: p.VX, VY: p.VY,
		Rotation: p.Rotation, Active: p.Active, Color: p.Color,
	}
}

func (a *Asteroid) snapshot(id int32) protocol.AsteroidSnapshot {
	return protocol.AsteroidSnapshot{
		ID: id, X: a.X, Y: a.Y, VX: a.VX, VY: a.VY,
		Radius: a.Radius, Active: a.Active,
	}
}

func (b *Bullet) snapshot(id int32) protocol.BulletSnapshot {
	return protocol.BulletSnapshot{
		ID: id, X: b.X, Y: b.Y, VX: b.VX, VY: b.VY, Active: b.Active,
	}
}
