package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/wellchat-backend/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LogMode:     "development",
		Environment: "test",
		Server:      config.ServerConfig{Port: 0, ShutdownSeconds: 1},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			SQLitePath:  filepath.Join(t.TempDir(), "app.db"),
			AutoMigrate: true,
		},
		Auth: config.AuthConfig{JWTSecretKey: "app-test-secret"},
		PHQ9: config.PHQ9Config{
			SpacingThreshold:  3,
			FallbackScore:     1,
			DetectorTimeout:   time.Second,
			ScorerTimeout:     time.Second,
			ScorerMaxAttempts: 1,
			LockWarnAfter:     time.Second,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestNewWiresServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	if a.Clients.Redis != nil || a.Clients.EventBus != nil {
		t.Fatalf("expected no redis without REDIS_ADDR")
	}
	if a.Services.Engine == nil || a.Services.Control == nil {
		t.Fatalf("services not wired: %+v", a.Services)
	}

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.Server.Engine.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve(httptest.NewRequest(http.MethodGet, "/healthcheck", nil)); rec.Code != http.StatusOK {
		t.Fatalf("healthcheck status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := serve(httptest.NewRequest(http.MethodGet, "/api/assessment/phq9/conversational/status", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d", rec.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(cfg.Auth.JWTSecretKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/assessment/phq9/conversational/status", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := serve(req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"has_active":false`) {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
