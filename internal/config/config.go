package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8080"
	defaultPathPrefix     = "/api/v1"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultMaxUploadBytes = 10 << 20
	defaultEnvFile        = ".env"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// LLM providers.
const (
	ProviderNone   = "none"
	ProviderOllama = "ollama"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables (.env included) > Defaults
type Config struct {
	Port                 string
	PathPrefix           string
	StaticDir            string
	LogLevel             string
	ShutdownGracePeriod  time.Duration
	StartupTimeout       time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxUploadBytes       int64
	CORS                 CORSConfig
	Store                StoreConfig
	LLM                  LLMConfig
	Retrieval            RetrievalConfig
}

// CORSConfig mirrors the CORS policy applied to every request.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	Debug            bool
}

// StoreConfig selects and configures the vector collection backend.
type StoreConfig struct {
	Backend        string
	Collection     string
	Path           string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
}

// LLMConfig configures the optional language model provider.
type LLMConfig struct {
	Provider   string
	URL        string
	Model      string
	EmbedModel string
	Timeout    time.Duration
}

// RetrievalConfig tunes chunking and retrieval.
type RetrievalConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
	EmbeddingDim int
}

// yamlConfig represents the YAML configuration file structure.
// Pointer fields distinguish "absent" from explicit zero values.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	PathPrefix           *string       `yaml:"path_prefix"`
	StaticDir            *string       `yaml:"static_dir"`
	LogLevel             string        `yaml:"log_level"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	StartupTimeout       string        `yaml:"startup_timeout"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	MaxUploadBytes       *int64        `yaml:"max_upload_bytes"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	CORS                 yamlCORS      `yaml:"cors"`
	Store                yamlStore     `yaml:"store"`
	LLM                  yamlLLM       `yaml:"llm"`
	Retrieval            yamlRetrieval `yaml:"retrieval"`
}

type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlCORS struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials *bool    `yaml:"allow_credentials"`
	MaxAge           *int     `yaml:"max_age"`
	Debug            *bool    `yaml:"debug"`
}

type yamlStore struct {
	Backend    string    `yaml:"backend"`
	Collection string    `yaml:"collection"`
	Path       string    `yaml:"path"`
	Redis      yamlRedis `yaml:"redis"`
}

type yamlRedis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        *int   `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type yamlLLM struct {
	Provider   string `yaml:"provider"`
	URL        string `yaml:"url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	Timeout    string `yaml:"timeout"`
}

type yamlRetrieval struct {
	TopK         int `yaml:"top_k"`
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	EmbeddingDim int `yaml:"embedding_dim"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	PathPrefix     *string
	StoreBackend   *string
	StorePath      *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	CORSOrigins    *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	envFile, explicit := defaultEnvFile, false
	if overrides != nil && overrides.EnvFile != "" {
		envFile, explicit = overrides.EnvFile, true
	}
	if err := loadEnvFile(envFile, explicit); err != nil {
		return Config{}, err
	}
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		PathPrefix:           defaultPathPrefix,
		LogLevel:             defaultLogLevel,
		ShutdownGracePeriod:  10 * time.Second,
		StartupTimeout:       30 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         2 * time.Minute,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		MaxUploadBytes:       defaultMaxUploadBytes,
		CORS: CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:4200"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
		},
		Store: StoreConfig{
			Backend:        BackendMemory,
			Collection:     "documents",
			Path:           "data",
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "docassistant",
		},
		LLM: LLMConfig{
			Provider:   ProviderNone,
			URL:        "http://localhost:11434",
			Model:      "llama3.2",
			EmbedModel: "nomic-embed-text",
			Timeout:    2 * time.Minute,
		},
		Retrieval: RetrievalConfig{
			TopK:         4,
			ChunkSize:    800,
			ChunkOverlap: 100,
			EmbeddingDim: 256,
		},
	}
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, y *yamlConfig) error {
	if y.Port != "" {
		cfg.Port = y.Port
	}
	if y.PathPrefix != nil {
		cfg.PathPrefix = *y.PathPrefix
	}
	if y.StaticDir != nil {
		cfg.StaticDir = *y.StaticDir
	}
	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_grace_period", y.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"startup_timeout", y.StartupTimeout, &cfg.StartupTimeout},
		{"read_header_timeout", y.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", y.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", y.IdleTimeout, &cfg.IdleTimeout},
		{"llm.timeout", y.LLM.Timeout, &cfg.LLM.Timeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.raw)
		}
		*d.dst = value
	}

	if y.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *y.EnableRequestLogging
	}
	if y.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *y.MaxUploadBytes
	}
	if y.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *y.RateLimit.RPS
	}
	if y.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *y.RateLimit.Burst
	}

	if len(y.CORS.AllowedOrigins) > 0 {
		cfg.CORS.AllowedOrigins = y.CORS.AllowedOrigins
	}
	if y.CORS.AllowedMethods != nil {
		cfg.CORS.AllowedMethods = y.CORS.AllowedMethods
	}
	if y.CORS.AllowedHeaders != nil {
		cfg.CORS.AllowedHeaders = y.CORS.AllowedHeaders
	}
	if y.CORS.ExposedHeaders != nil {
		cfg.CORS.ExposedHeaders = y.CORS.ExposedHeaders
	}
	if y.CORS.AllowCredentials != nil {
		cfg.CORS.AllowCredentials = *y.CORS.AllowCredentials
	}
	if y.CORS.MaxAge != nil {
		cfg.CORS.MaxAge = *y.CORS.MaxAge
	}
	if y.CORS.Debug != nil {
		cfg.CORS.Debug = *y.CORS.Debug
	}

	setString(&cfg.Store.Backend, y.Store.Backend)
	setString(&cfg.Store.Collection, y.Store.Collection)
	setString(&cfg.Store.Path, y.Store.Path)
	setString(&cfg.Store.RedisAddr, y.Store.Redis.Addr)
	setString(&cfg.Store.RedisPassword, y.Store.Redis.Password)
	setString(&cfg.Store.RedisKeyPrefix, y.Store.Redis.KeyPrefix)
	if y.Store.Redis.DB != nil {
		cfg.Store.RedisDB = *y.Store.Redis.DB
	}

	setString(&cfg.LLM.Provider, y.LLM.Provider)
	setString(&cfg.LLM.URL, y.LLM.URL)
	setString(&cfg.LLM.Model, y.LLM.Model)
	setString(&cfg.LLM.EmbedModel, y.LLM.EmbedModel)

	setInt(&cfg.Retrieval.TopK, y.Retrieval.TopK)
	setInt(&cfg.Retrieval.ChunkSize, y.Retrieval.ChunkSize)
	setInt(&cfg.Retrieval.ChunkOverlap, y.Retrieval.ChunkOverlap)
	setInt(&cfg.Retrieval.EmbeddingDim, y.Retrieval.EmbeddingDim)

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	lookupString("PORT", &cfg.Port)
	lookupString("API_PREFIX", &cfg.PathPrefix)
	lookupString("STATIC_DIR", &cfg.StaticDir)
	lookupString("LOG_LEVEL", &cfg.LogLevel)
	lookupString("STORE_BACKEND", &cfg.Store.Backend)
	lookupString("STORE_PATH", &cfg.Store.Path)
	lookupString("COLLECTION_NAME", &cfg.Store.Collection)
	lookupString("REDIS_ADDR", &cfg.Store.RedisAddr)
	lookupString("REDIS_PASSWORD", &cfg.Store.RedisPassword)
	lookupString("LLM_PROVIDER", &cfg.LLM.Provider)
	lookupString("OLLAMA_URL", &cfg.LLM.URL)
	lookupString("OLLAMA_MODEL", &cfg.LLM.Model)
	lookupString("OLLAMA_EMBED_MODEL", &cfg.LLM.EmbedModel)

	if origins := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); origins != "" {
		cfg.CORS.AllowedOrigins = splitList(origins)
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: invalid number %q", rps)
		}
		cfg.RateLimitRPS = value
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RATE_LIMIT_BURST", &cfg.RateLimitBurst},
		{"REDIS_DB", &cfg.Store.RedisDB},
		{"RETRIEVAL_TOP_K", &cfg.Retrieval.TopK},
	}
	for _, item := range ints {
		raw := strings.TrimSpace(os.Getenv(item.key))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", item.key, raw)
		}
		*item.dst = value
	}

	if raw := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: invalid integer %q", raw)
		}
		cfg.MaxUploadBytes = value
	}

	if raw := strings.TrimSpace(os.Getenv("ENABLE_REQUEST_LOGGING")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("ENABLE_REQUEST_LOGGING: invalid boolean %q", raw)
		}
		cfg.EnableRequestLogging = value
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}
	if overrides.PathPrefix != nil {
		cfg.PathPrefix = *overrides.PathPrefix
	}
	if overrides.StoreBackend != nil && *overrides.StoreBackend != "" {
		cfg.Store.Backend = *overrides.StoreBackend
	}
	if overrides.StorePath != nil && *overrides.StorePath != "" {
		cfg.Store.Path = *overrides.StorePath
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
	if overrides.CORSOrigins != nil && *overrides.CORSOrigins != "" {
		cfg.CORS.AllowedOrigins = splitList(*overrides.CORSOrigins)
	}
}

// validateConfig validates the final configuration.
// validatePort accepts a bare port ("8080") or a listen address ("127.0.0.1:8080").
func validatePort(value string) error {
	port := value
	if strings.Contains(value, ":") {
		_, p, err := net.SplitHostPort(value)
		if err != nil {
			return fmt.Errorf("port must be a number or host:port, got %q: %w", value, err)
		}
		port = p
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("port must be a number between 0 and 65535, got %q", value)
	}
	return nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if err := validatePort(cfg.Port); err != nil {
		return err
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if cfg.ShutdownGracePeriod <= 0 || cfg.StartupTimeout <= 0 {
		return fmt.Errorf("shutdown grace period and startup timeout must be positive")
	}

	switch strings.ToLower(cfg.Store.Backend) {
	case BackendMemory, BackendBolt, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if strings.TrimSpace(cfg.Store.Collection) == "" {
		return fmt.Errorf("collection name cannot be empty")
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case ProviderNone, "":
	case ProviderOllama:
		if cfg.LLM.URL == "" || cfg.LLM.Model == "" {
			return fmt.Errorf("ollama provider requires url and model")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive")
	}
	if cfg.Retrieval.ChunkSize <= 0 || cfg.Retrieval.ChunkOverlap < 0 || cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk_size)")
	}
	if cfg.Retrieval.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lookupString(key string, dst *string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}
