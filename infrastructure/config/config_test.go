package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so ambient CI
// environment cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE", "ENVIRONMENT", "LOG_LEVEL",
		"SERVER_ADDRESS", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"SERVER_IDLE_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT", "ENABLE_CORS",
		"CORS_ALLOWED_ORIGINS",
		"DATABASE_URL", "DATABASE_MAX_CONNS", "DATABASE_MIN_CONNS",
		"DATABASE_CONNECT_TIMEOUT", "DATABASE_CONN_LIFETIME", "DATABASE_MIGRATE",
		"AI_BASE_URL", "AI_API_KEY", "AI_COMPLETION_MODEL",
		"AI_COMPLETION_MODEL_VERSION", "AI_EMBEDDING_MODEL",
		"AI_EMBEDDING_DIMENSIONS", "AI_REQUEST_TIMEOUT",
		"AI_EMBED_CACHE_TTL", "AI_EMBED_CACHE_CLEANUP",
		"AI_BREAKER_MAX_REQUESTS", "AI_BREAKER_INTERVAL", "AI_BREAKER_TIMEOUT",
		"AI_BREAKER_FAILURE_THRESHOLD", "AI_BREAKER_MIN_REQUESTS",
		"JWT_SECRET", "JWT_ISSUER", "AUTH_DEV_USER",
		"SEARCH_SIMILARITY_THRESHOLD", "SEARCH_LIMIT", "SEARCH_MAX_LIMIT",
		"SEARCH_MAX_TRAVERSAL_DEPTH", "EMBED_MAX_CHARS",
		"ANSWER_SIMILARITY_THRESHOLD", "ANSWER_TOP_K", "ANSWER_NEIGHBOR_DEPTH",
		"ANSWER_TEMPERATURE", "ANSWER_MAX_TOKENS",
		"EXTRACTION_TEMPERATURE", "EXTRACTION_MAX_TOKENS",
		"SUGGEST_THRESHOLD", "SUGGEST_CANDIDATES", "SUGGEST_TEMPERATURE",
		"SUGGEST_MAX_TOKENS", "EMBED_BATCH_SIZE", "EMBED_BACKFILL_CRON",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.MigrateOnStart)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.CompletionModel)
	assert.Equal(t, 1536, cfg.AI.EmbeddingDimensions)
	assert.Equal(t, 0.5, cfg.Tuning.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Tuning.MaxTraversalDepth)
	assert.Equal(t, 50, cfg.Tuning.EmbedBatchSize)
	assert.Equal(t, "@every 1m", cfg.Tuning.EmbedBackfillCron)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("SERVER_READ_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATABASE_URL", "postgres://other:5432/kb")
	t.Setenv("AI_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("SEARCH_SIMILARITY_THRESHOLD", "0.7")
	t.Setenv("DATABASE_MIGRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://other:5432/kb", cfg.Database.DSN)
	assert.Equal(t, 768, cfg.AI.EmbeddingDimensions)
	assert.Equal(t, 0.7, cfg.Tuning.SimilarityThreshold)
	assert.False(t, cfg.Database.MigrateOnStart)
}

func TestLoad_FileOverlayAndEnvPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
server:
  address: ":7070"
tuning:
  answer_top_k: 9
ai:
  embedding_dimensions: 384
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_ADDRESS", ":6060")

	cfg, err := Load()
	require.NoError(t, err)

	// env beats the file, the file beats the defaults
	assert.Equal(t, ":6060", cfg.Server.Address)
	assert.Equal(t, 9, cfg.Tuning.AnswerTopK)
	assert.Equal(t, 384, cfg.AI.EmbeddingDimensions)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.CompletionModel)
}

func TestLoad_MissingFileFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("ProductionRequiresSecrets", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")

		t.Setenv("JWT_SECRET", "s3cret")
		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AI_API_KEY")

		t.Setenv("AI_API_KEY", "key")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
	})

	t.Run("RejectsBadDimensions", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AI_EMBEDDING_DIMENSIONS", "0")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AI_EMBEDDING_DIMENSIONS")
	})

	t.Run("RejectsOutOfRangeThreshold", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SEARCH_SIMILARITY_THRESHOLD", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SEARCH_SIMILARITY_THRESHOLD")
	})
}
