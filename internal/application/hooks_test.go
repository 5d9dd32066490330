package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/doc-assistant/internal/storage"
)

type unreadableCollection struct {
	storage.Collection
}

func (unreadableCollection) Name() string { return "broken" }

func (unreadableCollection) Get(context.Context) (storage.GetResult, error) {
	return storage.GetResult{}, errors.New("disk on fire")
}

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestCollectionSizeHookLogsDocumentCount(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	collection := storage.NewMemoryCollection("documents")
	require.NoError(t, collection.Add(context.Background(),
		storage.Record{ID: "a", Document: "alpha", Embedding: []float32{1, 0}},
		storage.Record{ID: "b", Document: "beta", Embedding: []float32{0, 1}},
	))

	hook := CollectionSizeHook(collection, zap.New(core))
	assert.Equal(t, "collection_size", hook.Name)
	require.NoError(t, hook.Run(context.Background()))

	entries := logs.FilterMessage("Loaded collection with 2 documents").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "documents", fields["collection"])
	assert.EqualValues(t, 2, fields["documents"])
}

func TestCollectionSizeHookEmptyCollection(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	hook := CollectionSizeHook(storage.NewMemoryCollection("documents"), zap.New(core))

	require.NoError(t, hook.Run(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Loaded collection with 0 documents").Len())
}

func TestCollectionSizeHookFailsOnUnreadableCollection(t *testing.T) {
	hook := CollectionSizeHook(unreadableCollection{}, zaptest.NewLogger(t))

	err := hook.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCollectionSizeHookAbortsStartup(t *testing.T) {
	app, err := newTestBuilder(t).OnStartup(CollectionSizeHook(unreadableCollection{}, zaptest.NewLogger(t))).Build()
	require.NoError(t, err)

	err = app.Start(context.Background())
	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, "collection_size", startupErr.Hook)
	assert.Equal(t, StateStopped, app.State())
}

func TestLLMReadyHookRetriesUntilReady(t *testing.T) {
	pinger := &flakyPinger{failures: 2}
	hook := LLMReadyHook(pinger, zaptest.NewLogger(t), time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, hook.Run(ctx))
	assert.Equal(t, 3, pinger.calls)
}

func TestLLMReadyHookStopsWhenContextExpires(t *testing.T) {
	pinger := &flakyPinger{failures: 1 << 30}
	hook := LLMReadyHook(pinger, zaptest.NewLogger(t), time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := hook.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, pinger.calls, 1)
}
