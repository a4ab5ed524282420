package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAdminConfigRejectsZeroSpawnInterval 热更新同样不能注入
// 会让 Tick 自旋的生成间隔，原参数必须原封不动
func TestAdminConfigRejectsZeroSpawnInterval(t *testing.T) {
	ctx := NewServerContext(DefaultConfig())
	h := HandleAdminConfig(ctx)

	req := httptest.NewRequest(http.MethodPost, "/admin/config?room=1",
		strings.NewReader(`{"spawn_interval_ms":0}`))
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	room, ok := ctx.registry.Get(1)
	require.True(t, ok)
	assert.Greater(t, room.Tuning().SpawnInterval, 0.0)
}

// TestAdminConfigUpdatesTuning 合法的部分字段更新生效，其余字段不动
func TestAdminConfigUpdatesTuning(t *testing.T) {
	ctx := NewServerContext(DefaultConfig())
	h := HandleAdminConfig(ctx)

	req := httptest.NewRequest(http.MethodPost, "/admin/config?room=1",
		strings.NewReader(`{"spawn_interval_ms":1000,"bullet_speed":500}`))
	w := httptest.NewRecorder()
	h(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	room, _ := ctx.registry.Get(1)
	tn := room.Tuning()
	assert.Equal(t, 1.0, tn.SpawnInterval)
	assert.Equal(t, 500.0, tn.BulletSpeed)
	// 未提交的字段保持原值
	assert.Equal(t, DefaultConfig().BulletTTL, tn.BulletTTL)
}

// TestAdminConfigUnknownRoom 未知房间号返回 404
func TestAdminConfigUnknownRoom(t *testing.T) {
	ctx := NewServerContext(DefaultConfig())
	h := HandleAdminConfig(ctx)

	req := httptest.NewRequest(http.MethodGet, "/admin/config?room=99", nil)
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
