package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清理可能影响测试的环境变量
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"CONFIG_FILE", "OPENAI_API_KEY", "OPENAI_BASE_URL", "DATABASE_URL", "PORT",
		"KAFKA_BROKERS", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET",
		"RAG_CONFIG_KEY", "RAG_SERVER_PORT", "RAG_KNOWLEDGE_RETRIEVAL_DEFAULT_TOP_K", "RAG_KNOWLEDGE_RETRIEVAL_MAX_TOP_K",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoader_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewLoader("", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.ChatModel)
	assert.Equal(t, 1000, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 32000, cfg.Knowledge.ContextBudget)
	assert.Equal(t, 60*time.Second, cfg.Knowledge.RequestTimeout)
	assert.Equal(t, 5, cfg.Knowledge.Retrieval.DefaultTopK)
	assert.Equal(t, 50, cfg.Knowledge.Retrieval.MaxTopK)
	assert.Equal(t, 0.0, cfg.Knowledge.Retrieval.MinScore)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Storage.Enabled)
}

func TestLoader_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAG_SERVER_PORT", "9100")
	t.Setenv("RAG_KNOWLEDGE_RETRIEVAL_DEFAULT_TOP_K", "8")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	cfg, err := NewLoader("", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Knowledge.Retrieval.DefaultTopK)
	assert.Equal(t, "sk-test", cfg.AI.OpenAIAPIKey)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
}

func TestLoader_ValidationFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAG_KNOWLEDGE_RETRIEVAL_DEFAULT_TOP_K", "80")

	_, err := NewLoader("", nil).Load()
	assert.ErrorContains(t, err, "config validation failed")
}

func TestLoader_MaxTopKCeiling(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAG_KNOWLEDGE_RETRIEVAL_MAX_TOP_K", "10000")

	_, err := NewLoader("", nil).Load()
	assert.ErrorContains(t, err, "config validation failed")
}

func writeConfig(t *testing.T, path, port string) {
	t.Helper()
	content := "server:\n  port: \"" + port + "\"\n  env: staging\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoader_FileAndReload(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "7000")

	loader := NewLoader(path, nil)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "staging", cfg.Server.Env)

	var oldPort, newPort string
	loader.RegisterCallback(func(o, n *Config) error {
		oldPort, newPort = o.Server.Port, n.Server.Port
		return nil
	})

	writeConfig(t, path, "7001")
	require.NoError(t, loader.Reload())
	assert.Equal(t, "7000", oldPort)
	assert.Equal(t, "7001", newPort)
	assert.Equal(t, "7001", loader.Current().Server.Port)
}

func TestLoader_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), nil).Load()
	assert.Error(t, err)
}

func TestLoader_StartWatchingRequiresFile(t *testing.T) {
	clearEnv(t)
	assert.Error(t, NewLoader("", nil).StartWatching())
}

func TestLoader_EncryptedSecret(t *testing.T) {
	clearEnv(t)
	box, err := NewSecretBox("master")
	require.NoError(t, err)
	sealed, err := box.Encrypt("sk-secret")
	require.NoError(t, err)

	t.Setenv("RAG_CONFIG_KEY", "master")
	t.Setenv("OPENAI_API_KEY", sealed)

	cfg, err := NewLoader("", nil).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.AI.OpenAIAPIKey)
}

func TestLoader_EncryptedSecretWithoutKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "enc:AAAA")

	_, err := NewLoader("", nil).Load()
	assert.ErrorContains(t, err, "RAG_CONFIG_KEY")
}

func TestSecretBox(t *testing.T) {
	_, err := NewSecretBox("")
	assert.Error(t, err)

	a, err := NewSecretBox("k1")
	require.NoError(t, err)
	b, err := NewSecretBox("k2")
	require.NoError(t, err)

	sealed, err := a.Encrypt("value")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))

	plain, err := a.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "value", plain)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestRedisAddr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380"}.Addr())
}
