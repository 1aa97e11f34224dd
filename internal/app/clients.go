package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/wellchat-backend/internal/clients/redis"
	"github.com/yungbote/wellchat-backend/internal/config"
	"github.com/yungbote/wellchat-backend/internal/platform/idempotency"
	"github.com/yungbote/wellchat-backend/internal/platform/llm"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type Clients struct {
	LLM        llm.Client
	Classifier llm.Classifier
	Scorer     llm.Scorer

	// Redis is nil when REDIS_ADDR is unset; the engine then runs single-replica
	// with an in-memory idempotency store and no event fan-out.
	Redis       *goredis.Client
	EventBus    redis.EventBus
	Idempotency idempotency.Store
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	client := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}, log)
	out := Clients{
		LLM:         client,
		Classifier:  llm.NewClassifier(client),
		Scorer:      llm.NewScorer(client),
		Idempotency: idempotency.NewMemoryStore(),
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		log.Warn("REDIS_ADDR not set; using in-memory idempotency and no event bus")
		return out, nil
	}
	rdb, err := redis.NewClient(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	bus, err := redis.NewEventBus(rdb, cfg.Redis.Channel, log)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init redis event bus: %w", err)
	}
	out.Redis = rdb
	out.EventBus = bus
	out.Idempotency = idempotency.NewRedisStore(rdb, "wellchat:idem")
	return out, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
