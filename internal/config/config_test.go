package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 0.7, cfg.RAG.ScoreThreshold)
	assert.Equal(t, 3000, cfg.RAG.MaxContextLength)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9000

[rag]
chunk_size = 500
chunk_overlap = 50
top_k = 3
score_threshold = 0.5
max_context_length = 1200

[s3]
bucket = "from-file"
force_path_style = true
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "8")
	t.Setenv("RAG_SCORE_THRESHOLD", "0.65")
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("APP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 8, cfg.RAG.TopK)
	assert.Equal(t, 0.65, cfg.RAG.ScoreThreshold)
	assert.Equal(t, "from-env", cfg.S3.Bucket)
	assert.True(t, cfg.S3.ForcePathStyle)
	// Untouched sections keep their defaults.
	assert.Equal(t, "document.ingest", cfg.RabbitMQ.IngestQueue)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[app\nport = "), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.ErrorContains(t, err, "decode config file failed")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"overlap not below size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, "chunk_overlap"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"threshold out of range", func(c *Config) { c.RAG.ScoreThreshold = 1.5 }, "score_threshold"},
		{"no bucket", func(c *Config) { c.S3.Bucket = " " }, "s3.bucket"},
		{"no secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"bad port", func(c *Config) { c.App.Port = 0 }, "app.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, defaultConfig().Validate())
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "root:@tcp(127.0.0.1:3306)/chatpdf?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}
