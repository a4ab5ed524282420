package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// HandleAdminConfig 提供房间运行参数的读取与热更新
// GET  /admin/config?room=1  返回当前参数
// POST /admin/config?room=1  以 JSON 载荷更新部分字段
func HandleAdminConfig(ctx *ServerContext) http.HandlerFunc {
	type cfg struct {
		SpawnIntervalMs *int     `json:"spawn_interval_ms,omitempty"`
		CountdownMs     *int     `json:"countdown_ms,omitempty"`
		LobbyDelayMs    *int     `json:"lobby_delay_ms,omitempty"`
		EndShowMs       *int     `json:"end_show_ms,omitempty"`
		BulletSpeed     *float64 `json:"bullet_speed,omitempty"`
		BulletTTL       *float64 `json:"bullet_ttl,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := adminRoom(ctx, r)
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			tn := room.Tuning()
			spawn := int(tn.SpawnInterval * 1000)
			countdown := int(tn.Countdown.Milliseconds())
			lobby := int(tn.LobbyDelay.Milliseconds())
			show := int(tn.EndShow.Milliseconds())
			cur := cfg{
				SpawnIntervalMs: &spawn,
				CountdownMs:     &countdown,
				LobbyDelayMs:    &lobby,
				EndShowMs:       &show,
				BulletSpeed:     &tn.BulletSpeed,
				BulletTTL:       &tn.BulletTTL,
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(cur)
		case http.MethodPost:
			var body cfg
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			tn := room.Tuning()
			if body.SpawnIntervalMs != nil {
				tn.SpawnInterval = float64(*body.SpawnIntervalMs) / 1000
			}
			if body.CountdownMs != nil {
				tn.Countdown = time.Duration(*body.CountdownMs) * time.Millisecond
			}
			if body.LobbyDelayMs != nil {
				tn.LobbyDelay = time.Duration(*body.LobbyDelayMs) * time.Millisecond
			}
			if body.EndShowMs != nil {
				tn.EndShow = time.Duration(*body.EndShowMs) * time.Millisecond
			}
			if body.BulletSpeed != nil {
				tn.BulletSpeed = *body.BulletSpeed
			}
			if body.BulletTTL != nil {
				tn.BulletTTL = *body.BulletTTL
			}
			// 非正生成间隔会让 Tick 的扣减循环自旋，热更新同样要挡
			if tn.SpawnInterval <= 0 || tn.BulletSpeed <= 0 || tn.BulletTTL <= 0 ||
				tn.Countdown < 0 || tn.LobbyDelay < 0 || tn.EndShow < 0 {
				http.Error(w, "invalid tuning", http.StatusBadRequest)
				return
			}
			room.SetTuning(tn)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			Log.Infow("tuning updated", "room", room.ID,
				"spawn_interval", tn.SpawnInterval,
				"countdown", tn.Countdown,
				"bullet_speed", tn.BulletSpeed)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=1
func HandleMetrics(ctx *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := adminRoom(ctx, r)
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}
		payload := map[string]any{
			"room":         room.ID,
			"status":       room.Status(),
			"clients":      ctx.ClientCount(),
			"idle_seconds": ctx.SessionAges(),
			"metrics":      room.Metrics().Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func adminRoom(ctx *ServerContext, r *http.Request) (*GameRoom, bool) {
	raw := r.URL.Query().Get("room")
	if raw == "" {
		raw = "1"
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, false
	}
	return ctx.registry.Get(uint32(id))
}
