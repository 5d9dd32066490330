package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/application"
	"github.com/eugenenazirov/doc-assistant/internal/config"
	"github.com/eugenenazirov/doc-assistant/internal/logging"
	"github.com/eugenenazirov/doc-assistant/internal/storage"
)

var signalNotify = signal.Notify

// lifecycle is the part of application.App the shutdown loop needs.
type lifecycle interface {
	Errors() <-chan error
	Shutdown(ctx context.Context) error
}

func main() {
	overrides, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "invalid arguments")

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	collection, err := storage.Open(context.Background(), storeOptions(cfg))
	if err != nil {
		logger.Fatal("failed to open collection", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer func() {
		if err := collection.Close(); err != nil {
			logger.Warn("failed to close collection", zap.Error(err))
		}
	}()

	app, err := application.New(cfg, logger, collection)
	if err != nil {
		_ = collection.Close()
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.StartupTimeout)
	err = app.Start(startCtx)
	cancel()
	if err != nil {
		_ = collection.Close()
		logger.Fatal("failed to start server", zap.Error(err))
	}

	waitForShutdown(app, cfg.ShutdownGracePeriod, logger)
}

// parseFlags maps command-line flags onto config overrides. Unset flags leave
// lower-precedence sources untouched.
func parseFlags(args []string) (*config.CLIOverrides, error) {
	kingpinApp := kingpin.New("doc-assistant", "Document Assistant - answers questions about uploaded documents")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a dotenv file (default .env when present)").String()
	port := kingpinApp.Flag("port", "HTTP port or host:port to listen on").String()
	prefix := kingpinApp.Flag("prefix", "Path prefix of the API routes (use / for the root)").String()
	storeBackend := kingpinApp.Flag("store-backend", "Collection backend").Enum(config.BackendMemory, config.BackendBolt, config.BackendRedis)
	storePath := kingpinApp.Flag("store-path", "Directory of the bolt collection file").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	corsOrigins := kingpinApp.Flag("cors-origins", "Comma-separated list of allowed CORS origins").String()

	if _, err := kingpinApp.Parse(args); err != nil {
		return nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile:   *configFile,
		EnvFile:      *envFile,
		Port:         nonEmpty(port),
		PathPrefix:   nonEmpty(prefix),
		StoreBackend: nonEmpty(storeBackend),
		StorePath:    nonEmpty(storePath),
		LogLevel:     nonEmpty(logLevel),
		CORSOrigins:  nonEmpty(corsOrigins),
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}
	return overrides, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func storeOptions(cfg config.Config) storage.Options {
	return storage.Options{
		Backend:    cfg.Store.Backend,
		Collection: cfg.Store.Collection,
		Path:       cfg.Store.Path,
		Redis: storage.RedisOptions{
			Addr:      cfg.Store.RedisAddr,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			KeyPrefix: cfg.Store.RedisKeyPrefix,
		},
	}
}

// waitForShutdown blocks until a termination signal or a serve failure, then
// shuts the app down within timeout.
func waitForShutdown(app lifecycle, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-app.Errors():
		logger.Error("server stopped unexpectedly", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Warn("shutdown finished with error", zap.Error(err))
	}
}
