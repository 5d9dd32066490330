package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "API_PREFIX", "STATIC_DIR", "LOG_LEVEL", "STORE_BACKEND", "STORE_PATH",
	"COLLECTION_NAME", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "LLM_PROVIDER",
	"OLLAMA_URL", "OLLAMA_MODEL", "OLLAMA_EMBED_MODEL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RETRIEVAL_TOP_K", "MAX_UPLOAD_BYTES",
	"ENABLE_REQUEST_LOGGING",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.PathPrefix)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:4200"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"GET", "POST"}, cfg.CORS.AllowedMethods)
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.True(t, cfg.EnableRequestLogging)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGINS", "https://app.example, https://admin.example ,")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("ENABLE_REQUEST_LOGGING", "false")

	cfg, err := Load(&CLIOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.CORS.AllowedOrigins)
	assert.Zero(t, cfg.RateLimitRPS)
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.False(t, cfg.EnableRequestLogging)
}

func TestLoadAcceptsListenAddress(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := Load(&CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Port)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_BURST", "lots")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_BURST")
}

func TestLoadYAMLOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")

	path := writeFile(t, "config.yaml", `
port: "7000"
path_prefix: /api/v2
enable_request_logging: false
shutdown_grace_period: 3s
rate_limit:
  rps: 0
  burst: 0
cors:
  allowed_origins: ["https://docs.example"]
  allow_credentials: false
  allowed_methods: []
store:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
llm:
  provider: ollama
  model: mistral
  timeout: 45s
retrieval:
  top_k: 6
`)

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "/api/v2", cfg.PathPrefix)
	assert.False(t, cfg.EnableRequestLogging)
	assert.Equal(t, 3*time.Second, cfg.ShutdownGracePeriod)
	assert.Zero(t, cfg.RateLimitRPS)
	assert.Zero(t, cfg.RateLimitBurst)
	assert.Equal(t, []string{"https://docs.example"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.CORS.AllowCredentials)
	assert.Empty(t, cfg.CORS.AllowedMethods)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
}

func TestLoadYAMLInvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "startup_timeout: soon\n")

	_, err := Load(&CLIOverrides{ConfigFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup_timeout")
}

func TestLoadMissingYAML(t *testing.T) {
	clearEnv(t)

	_, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestLoadCLIOverridesEverything(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	path := writeFile(t, "config.yaml", "port: \"7000\"\nlog_level: warn\n")

	port := "6000"
	prefix := ""
	level := "debug"
	rps := 5.0
	burst := -1
	origins := "http://localhost:5173"
	cfg, err := Load(&CLIOverrides{
		ConfigFile:     path,
		Port:           &port,
		PathPrefix:     &prefix,
		LogLevel:       &level,
		RateLimitRPS:   &rps,
		RateLimitBurst: &burst,
		CORSOrigins:    &origins,
	})
	require.NoError(t, err)

	assert.Equal(t, "6000", cfg.Port)
	assert.Equal(t, "", cfg.PathPrefix)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, defaultRateLimitBurst, cfg.RateLimitBurst, "negative CLI value means unset")
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.AllowedOrigins)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	const key = "OLLAMA_EMBED_MODEL"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := writeFile(t, "test.env", key+"=mxbai-embed-large\n")

	cfg, err := Load(&CLIOverrides{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", cfg.LLM.EmbedModel)
}

func TestLoadExplicitEnvFileMustExist(t *testing.T) {
	clearEnv(t)

	_, err := Load(&CLIOverrides{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"bad port":          func(c *Config) { c.Port = "http" },
		"named host port":   func(c *Config) { c.Port = "localhost:http" },
		"too many colons":   func(c *Config) { c.Port = "a:b:9000" },
		"port out of range": func(c *Config) { c.Port = "70000" },
		"negative rps":      func(c *Config) { c.RateLimitRPS = -1 },
		"unknown backend":   func(c *Config) { c.Store.Backend = "chroma" },
		"empty collection":  func(c *Config) { c.Store.Collection = " " },
		"unknown provider":  func(c *Config) { c.LLM.Provider = "openai" },
		"ollama no model":   func(c *Config) { c.LLM.Provider = ProviderOllama; c.LLM.Model = "" },
		"zero top k":        func(c *Config) { c.Retrieval.TopK = 0 },
		"overlap too large": func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkSize },
		"zero upload limit": func(c *Config) { c.MaxUploadBytes = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}

	assert.NoError(t, validateConfig(defaultConfig()))
}

func TestValidateConfigAcceptsListenAddress(t *testing.T) {
	for _, port := range []string{"8080", ":8080", "127.0.0.1:8080", "[::1]:0"} {
		cfg := defaultConfig()
		cfg.Port = port
		assert.NoError(t, validateConfig(cfg), port)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Empty(t, splitList(" , "))
}
