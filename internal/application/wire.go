package application

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/api"
	"github.com/eugenenazirov/doc-assistant/internal/config"
	"github.com/eugenenazirov/doc-assistant/internal/cors"
	"github.com/eugenenazirov/doc-assistant/internal/documents"
	"github.com/eugenenazirov/doc-assistant/internal/embedding"
	"github.com/eugenenazirov/doc-assistant/internal/llm"
	"github.com/eugenenazirov/doc-assistant/internal/storage"
)

// New wires the document assistant over collection and assembles the App from cfg.
func New(cfg config.Config, logger *zap.Logger, collection storage.Collection) (*App, error) {
	if collection == nil {
		return nil, &ConfigurationError{Field: "collection", Err: fmt.Errorf("collection is required")}
	}

	lm, err := newLanguageModel(cfg)
	if err != nil {
		return nil, &ConfigurationError{Field: "llm", Err: err}
	}

	serviceOpts := []documents.Option{
		documents.WithTopK(cfg.Retrieval.TopK),
		documents.WithChunking(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		documents.WithLogger(logger.Named("documents")),
	}
	if lm.generator != nil {
		serviceOpts = append(serviceOpts, documents.WithGenerator(lm.generator))
	}
	service := documents.NewService(collection, lm.embedder, serviceOpts...)

	handler := api.NewHandler(service,
		api.WithHandlerLogger(logger.Named("api")),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	hooks := []StartupHook{CollectionSizeHook(collection, logger)}
	if lm.pinger != nil {
		hooks = append(hooks, LLMReadyHook(lm.pinger, logger, 0))
	}

	builder := NewBuilder(logger).
		WithPrefix(cfg.PathPrefix).
		WithRoutes(handler.Routes()...).
		OnStartup(hooks...).
		WithCORS(PolicyFromConfig(cfg.CORS)).
		WithMiddleware(api.NewMiddleware(logger,
			api.WithLogging(cfg.EnableRequestLogging),
			api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		)).
		WithServer(NewServerOptions(cfg))

	if cfg.StaticDir != "" {
		static, err := staticHandler(cfg.StaticDir)
		if err != nil {
			return nil, &ConfigurationError{Field: "static_dir", Err: err}
		}
		builder.WithFallback(static)
	}

	return builder.Build()
}

// PolicyFromConfig converts the configured CORS section into a policy.
func PolicyFromConfig(c config.CORSConfig) cors.Policy {
	return cors.Policy{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           time.Duration(c.MaxAge) * time.Second,
		Debug:            c.Debug,
	}
}

// NewServerOptions derives server options from the configuration.
func NewServerOptions(cfg config.Config) ServerOptions {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return ServerOptions{
		Addr:              addr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

type languageModel struct {
	embedder  embedding.Embedder
	generator llm.Generator
	pinger    llm.Pinger
}

func newLanguageModel(cfg config.Config) (languageModel, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", config.ProviderNone:
		return languageModel{embedder: embedding.NewHashing(cfg.Retrieval.EmbeddingDim)}, nil
	case config.ProviderOllama:
		client := llm.NewOllama(llm.OllamaOptions{
			URL:        cfg.LLM.URL,
			Model:      cfg.LLM.Model,
			EmbedModel: cfg.LLM.EmbedModel,
			Timeout:    cfg.LLM.Timeout,
		})
		lm := languageModel{generator: client, pinger: client}
		if cfg.LLM.EmbedModel == "" {
			lm.embedder = embedding.NewHashing(cfg.Retrieval.EmbeddingDim)
			return lm, nil
		}
		embedder, err := embedding.FromProvider(client)
		if err != nil {
			return languageModel{}, err
		}
		lm.embedder = embedder
		return lm, nil
	default:
		return languageModel{}, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

// staticHandler serves files from dir, resolved against the project root when relative.
func staticHandler(dir string) (http.Handler, error) {
	path := dir
	if !filepath.IsAbs(path) {
		resolved, err := resolveProjectPath(dir)
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return http.FileServer(http.Dir(path)), nil
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
