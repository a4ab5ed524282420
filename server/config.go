package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 服务端整体配置，来自 YAML 文件，缺省时使用内置默认值
type Config struct {
	Addr    string `yaml:"addr"`
	LogFile string `yaml:"log_file"`

	Rooms      int `yaml:"rooms"`       // 启动时固定创建的房间数
	MaxPlayers int `yaml:"max_players"` // 每房间玩家槽位数（player_id 即下标）
	TickRate   int `yaml:"tick_rate"`   // 每秒模拟推进次数

	World struct {
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
	} `yaml:"world"`

	AsteroidPool     int `yaml:"asteroid_pool"`      // 陨石槽位池容量
	BulletsPerPlayer int `yaml:"bullets_per_player"` // 每个玩家槽位的子弹分区大小

	SpawnIntervalMs int `yaml:"spawn_interval_ms"` // 陨石生成间隔
	CountdownMs     int `yaml:"countdown_ms"`      // 开局倒计时（名单防抖窗口）
	LobbyDelayMs    int `yaml:"lobby_delay_ms"`    // 回合结束后大厅冷却
	EndShowMs       int `yaml:"end_show_ms"`       // 结算画面展示时长

	BulletSpeed       float64 `yaml:"bullet_speed"`
	BulletTTL         float64 `yaml:"bullet_ttl"` // 秒
	AsteroidRadius    float64 `yaml:"asteroid_radius"`
	MinAsteroidRadius float64 `yaml:"min_asteroid_radius"` // 分裂子块低于此半径不再生成
}

// DefaultConfig 内置默认值（无配置文件也能直接试跑）
func DefaultConfig() *Config {
	c := &Config{
		Addr:              ":8080",
		LogFile:           "astroarena.log",
		Rooms:             4,
		MaxPlayers:        4,
		TickRate:          20,
		AsteroidPool:      24,
		BulletsPerPlayer:  8,
		SpawnIntervalMs:   2500,
		CountdownMs:       3000,
		LobbyDelayMs:      5000,
		EndShowMs:         3000,
		BulletSpeed:       420,
		BulletTTL:         1.6,
		AsteroidRadius:    42,
		MinAsteroidRadius: 12,
	}
	c.World.Width = 1280
	c.World.Height = 720
	return c
}

// LoadConfig 读取 YAML 配置；path 为空或文件不存在时返回默认配置
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Rooms < 1 || c.MaxPlayers < 2 {
		return fmt.Errorf("config: rooms >= 1 且 max_players >= 2，当前 rooms=%d max_players=%d", c.Rooms, c.MaxPlayers)
	}
	if c.TickRate < 1 || c.TickRate > 120 {
		return fmt.Errorf("config: tick_rate 超出范围: %d", c.TickRate)
	}
	if c.AsteroidPool < 1 || c.BulletsPerPlayer < 1 {
		return fmt.Errorf("config: 槽位池容量非法")
	}
	if c.MinAsteroidRadius <= 0 || c.AsteroidRadius <= c.MinAsteroidRadius {
		return fmt.Errorf("config: 陨石半径配置非法")
	}
	if c.SpawnIntervalMs <= 0 {
		return fmt.Errorf("config: spawn_interval_ms 必须为正: %d", c.SpawnIntervalMs)
	}
	if c.CountdownMs < 0 || c.LobbyDelayMs < 0 || c.EndShowMs < 0 {
		return fmt.Errorf("config: 时长字段不能为负")
	}
	if c.BulletSpeed <= 0 || c.BulletTTL <= 0 {
		return fmt.Errorf("config: 子弹参数必须为正")
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("config: 世界尺寸必须为正")
	}
	return nil
}
