package protocol

// Tag 协议标签：每个帧以 4 字节大端 Tag 开头，标识消息类型
type Tag uint32

// 客户端 → 服务端（部分由服务端回显或广播）
const (
	TagGetClientID Tag = iota + 1
	TagGetRoomList
	TagJoinRoom
	TagLeaveRoom
	TagVoteReady
	TagPlayerMovement
	TagShootBullets
	TagUpdateRoomState
	TagUpdateGameState
	TagUpdatePlayers
	TagUpdateAsteroids
	TagUpdateBullets
	TagCheckConnection
)

// 服务端 → 客户端（客户端发送这些标签属于协议违规，连接会被断开）
const (
	TagStartRound Tag = iota + 101
	TagEndRound
	TagNewGameSoon
	TagReturnToLobby
	TagSpawnAsteroid
	TagAsteroidDestroyed
	TagPlayerDestroyed
	TagBulletDestroyed
)

// NoWinner 回合无胜者时 EndRound 携带的哨兵值
const NoWinner = ^uint32(0)

// ServerOnly 判断该标签是否只允许服务端发送
func ServerOnly(t Tag) bool {
	return t >= TagStartRound && t <= TagBulletDestroyed
}

// String 输出标签名，便于日志排查
func (t Tag) String() string {
	switch t {
	case TagGetClientID:
		return "GetClientId"
	case TagGetRoomList:
		return "GetRoomList"
	case TagJoinRoom:
		return "JoinRoom"
	case TagLeaveRoom:
		return "LeaveRoom"
	case TagVoteReady:
		return "VoteReady"
	case TagPlayerMovement:
		return "PlayerMovement"
	case TagShootBullets:
		return "ShootBullets"
	case TagUpdateRoomState:
		return "UpdateRoomState"
	case TagUpdateGameState:
		return "UpdateGameState"
	case TagUpdatePlayers:
		return "UpdatePlayers"
	case TagUpdateAsteroids:
		return "UpdateAsteroids"
	case TagUpdateBullets:
		return "UpdateBullets"
	case TagCheckConnection:
		return "CheckConnection"
	case TagStartRound:
		return "StartRound"
	case TagEndRound:
		return "EndRound"
	case TagNewGameSoon:
		return "NewGameSoon"
	case TagReturnToLobby:
		return "ReturnToLobby"
	case TagSpawnAsteroid:
		return "SpawnAsteroid"
	case TagAsteroidDestroyed:
		return "AsteroidDestroyed"
	case TagPlayerDestroyed:
		return "PlayerDestroyed"
	case TagBulletDestroyed:
		return "BulletDestroyed"
	}
	return "Unknown"
}

// 玩家槽位状态（player_id 即槽位下标）
const (
	SlotNone     int32 = iota // 空槽
	SlotNotReady              // 已加入未准备
	SlotReady                 // 已准备
)

// 房间状态
const (
	RoomLobby int32 = iota
	RoomGame
)

// PlayerSlot 房间内一个玩家槽位的简要信息（VoteReady 广播用）
type PlayerSlot struct {
	PlayerID int32 `msgpack:"player_id"`
	State    int32 `msgpack:"state"`
}

// RoomInfo 房间元数据快照
type RoomInfo struct {
	RoomID  uint32       `msgpack:"room_id"`
	Status  int32        `msgpack:"status"`
	Players []PlayerSlot `msgpack:"players"`
}

// RoomList GetRoomList 应答：room_id → RoomInfo
type RoomList map[uint32]RoomInfo

// Movement 客户端上报的运动记录（位置/速度/朝向）
type Movement struct {
	X        float64 `msgpack:"x"`
	Y        float64 `msgpack:"y"`
	VX       float64 `msgpack:"vx"`
	VY       float64 `msgpack:"vy"`
	Rotation float64 `msgpack:"rot"`
}

// PlayerSnapshot 单个飞船的完整快照
type PlayerSnapshot struct {
	ID       int32   `msgpack:"id"`
	X        float64 `msgpack:"x"`
	Y        float64 `msgpack:"y"`
	VX       float64 `msgpack:"vx"`
	VY       float64 `msgpack:"vy"`
	Rotation float64 `msgpack:"rot"`
	Active   bool    `msgpack:"active"`
	Color    uint32  `msgpack:"color"`
}

// AsteroidSnapshot 单个障碍物（陨石）的完整快照
type AsteroidSnapshot struct {
	ID     int32   `msgpack:"id"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	VX     float64 `msgpack:"vx"`
	VY     float64 `msgpack:"vy"`
	Radius float64 `msgpack:"radius"`
	Active bool    `msgpack:"active"`
}

// BulletSnapshot 单个子弹的完整快照
type BulletSnapshot struct {
	ID     int32   `msgpack:"id"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	VX     float64 `msgpack:"vx"`
	VY     float64 `msgpack:"vy"`
	Active bool    `msgpack:"active"`
}

// GameSnapshot 整局状态快照（仅在 UpdateGameState 拉取时整体下发）
type GameSnapshot struct {
	Players   []PlayerSnapshot   `msgpack:"players"`
	Asteroids []AsteroidSnapshot `msgpack:"asteroids"`
	Bullets   []BulletSnapshot   `msgpack:"bullets"`
	WinnerID  int32              `msgpack:"winner_id"`
}
