package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/planforge-backend/internal/platform/gcp"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/platform/openai"
	"github.com/yungbote/planforge-backend/internal/temporalx"
)

// Clients holds the external connections. Redis, storage and Temporal are
// optional and stay nil when unconfigured.
type Clients struct {
	Redis           goredis.UniversalClient
	Storage         *storage.Client
	KnowledgeBucket gcp.Bucket
	ExportBucket    gcp.Bucket
	OpenAI          openai.Client
	Temporal        temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		c.Redis = rdb
	} else {
		log.Warn("REDIS_ADDR not set; using in-process locks and no event fan-out")
	}

	if cfg.KnowledgeBucket != "" || cfg.ExportBucket != "" {
		storageCfg, err := gcp.ResolveStorageConfigFromEnv()
		if err != nil {
			c.Close()
			return nil, err
		}
		sc, err := gcp.NewStorageClient(ctx, storageCfg)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		c.Storage = sc
		if cfg.KnowledgeBucket != "" {
			if c.KnowledgeBucket, err = gcp.NewBucket(log, sc, cfg.KnowledgeBucket); err != nil {
				c.Close()
				return nil, err
			}
		}
		if cfg.ExportBucket != "" {
			if c.ExportBucket, err = gcp.NewBucket(log, sc, cfg.ExportBucket); err != nil {
				c.Close()
				return nil, err
			}
		}
	}

	ai, err := openai.NewClient(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	c.OpenAI = ai

	tc, err := temporalx.NewClient(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init temporal client: %w", err)
	}
	c.Temporal = tc

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
