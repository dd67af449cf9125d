package app

import (
	"strings"
	"time"

	"github.com/yungbote/planforge-backend/internal/pipeline/compose"
	"github.com/yungbote/planforge-backend/internal/platform/envutil"
	"github.com/yungbote/planforge-backend/internal/services"
)

type Config struct {
	Port        string
	LogMode     string
	Environment string
	Version     string

	JWTSecretKey string
	CORSOrigins  []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KnowledgeBucket     string
	KnowledgePrefix     string
	ExportBucket        string
	KnowledgeCharBudget int
	AgentFile           string

	Plan services.PlanServiceConfig

	MetricsAddr string
}

func LoadConfig() Config {
	var origins []string
	if raw := envutil.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),

		JWTSecretKey: envutil.String("JWT_SECRET_KEY", ""),
		CORSOrigins:  origins,

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),

		KnowledgeBucket:     envutil.String("KNOWLEDGE_GCS_BUCKET_NAME", ""),
		KnowledgePrefix:     envutil.String("KNOWLEDGE_GCS_PREFIX", "knowledge/"),
		ExportBucket:        envutil.String("EXPORT_GCS_BUCKET_NAME", ""),
		KnowledgeCharBudget: envutil.Int("KNOWLEDGE_CHAR_BUDGET", compose.DefaultCharBudget),
		AgentFile:           envutil.String("AGENT_INSTRUCTIONS_FILE", "CLAUDE.md"),

		Plan: services.PlanServiceConfig{
			SyncTimeout: envutil.Seconds("SYNC_GENERATION_TIMEOUT_SECONDS", 60*time.Second),
			LockTTL:     envutil.Seconds("GENERATION_LOCK_TTL_SECONDS", 2*time.Minute),
		},

		MetricsAddr: envutil.String("METRICS_ADDR", ":9090"),
	}
}
