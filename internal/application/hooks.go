package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/llm"
	"github.com/eugenenazirov/doc-assistant/internal/storage"
)

const defaultReadyInterval = 3 * time.Second

// StartupHook runs once before the application accepts traffic.
type StartupHook struct {
	Name string
	Run  func(ctx context.Context) error
}

// CollectionSizeHook loads the collection and logs how many documents it holds.
func CollectionSizeHook(collection storage.Collection, logger *zap.Logger) StartupHook {
	return StartupHook{
		Name: "collection_size",
		Run: func(ctx context.Context) error {
			res, err := collection.Get(ctx)
			if err != nil {
				return fmt.Errorf("read collection %s: %w", collection.Name(), err)
			}
			logger.Info(fmt.Sprintf("Loaded collection with %d documents", len(res.IDs)),
				zap.String("collection", collection.Name()),
				zap.Int("documents", len(res.IDs)),
			)
			return nil
		},
	}
}

// LLMReadyHook blocks until the LLM provider answers a ping or ctx expires.
func LLMReadyHook(pinger llm.Pinger, logger *zap.Logger, interval time.Duration) StartupHook {
	if interval <= 0 {
		interval = defaultReadyInterval
	}
	return StartupHook{
		Name: "llm_ready",
		Run: func(ctx context.Context) error {
			logger.Info("waiting for LLM provider to be ready")
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				err := pinger.Ping(ctx)
				if err == nil {
					logger.Info("LLM provider is ready")
					return nil
				}
				logger.Debug("LLM provider not ready yet", zap.Error(err), zap.Duration("retry_in", interval))

				select {
				case <-ctx.Done():
					return fmt.Errorf("llm provider not ready: %w", ctx.Err())
				case <-ticker.C:
				}
			}
		},
	}
}
