package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// DefaultCollectionName is used when no collection name is configured.
const DefaultCollectionName = "documents"

var (
	// ErrInvalidRecord indicates a record is missing its id or embedding.
	ErrInvalidRecord = errors.New("record must have a non-empty id and embedding")
	// ErrDimensionMismatch is returned when a query embedding and a stored embedding differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrUnknownBackend is returned by Open for unsupported backend names.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Metadata holds string attributes attached to a record.
type Metadata map[string]string

// Record is a single embedded chunk of text.
type Record struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// GetResult is the column-oriented view of a collection returned by Get.
type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []Metadata
}

// Match is a query hit ordered by descending Score.
type Match struct {
	ID       string
	Document string
	Metadata Metadata
	Score    float64
}

// Collection stores embedded records and answers nearest-neighbour queries.
type Collection interface {
	Name() string
	Add(ctx context.Context, records ...Record) error
	Get(ctx context.Context) (GetResult, error)
	Query(ctx context.Context, embedding []float32, limit int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// MemoryCollection keeps records in-memory and guards access with a RWMutex.
type MemoryCollection struct {
	name string

	mu      sync.RWMutex
	order   []string
	records map[string]Record
}

// NewMemoryCollection creates an empty in-memory collection.
func NewMemoryCollection(name string) *MemoryCollection {
	if name == "" {
		name = DefaultCollectionName
	}
	return &MemoryCollection{
		name:    name,
		records: make(map[string]Record),
	}
}

// Name returns the collection name.
func (c *MemoryCollection) Name() string {
	return c.name
}

// Add validates and stores records. Re-adding an id replaces the record in place.
func (c *MemoryCollection) Add(_ context.Context, records ...Record) error {
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		if _, exists := c.records[rec.ID]; !exists {
			c.order = append(c.order, rec.ID)
		}
		c.records[rec.ID] = cloneRecord(rec)
	}
	return nil
}

// Get returns defensive copies of every record in insertion order.
func (c *MemoryCollection) Get(_ context.Context) (GetResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := newGetResult(len(c.order))
	for _, id := range c.order {
		res.append(cloneRecord(c.records[id]))
	}
	return res, nil
}

// Query ranks stored records by cosine similarity to embedding.
func (c *MemoryCollection) Query(_ context.Context, embedding []float32, limit int) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		candidates = append(candidates, c.records[id])
	}
	return rank(embedding, candidates, limit)
}

// Count returns the number of stored records.
func (c *MemoryCollection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order), nil
}

// Reset removes every record.
func (c *MemoryCollection) Reset(_ context.Context) error {
	c.mu.Lock()
	c.order = nil
	c.records = make(map[string]Record)
	c.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory collection.
func (c *MemoryCollection) Close() error {
	return nil
}

func validateRecord(rec Record) error {
	if rec.ID == "" || len(rec.Embedding) == 0 {
		return ErrInvalidRecord
	}
	return nil
}

func cloneRecord(rec Record) Record {
	return Record{
		ID:        rec.ID,
		Document:  rec.Document,
		Embedding: slices.Clone(rec.Embedding),
		Metadata:  maps.Clone(rec.Metadata),
	}
}

func newGetResult(capacity int) GetResult {
	return GetResult{
		IDs:       make([]string, 0, capacity),
		Documents: make([]string, 0, capacity),
		Metadatas: make([]Metadata, 0, capacity),
	}
}

func (r *GetResult) append(rec Record) {
	r.IDs = append(r.IDs, rec.ID)
	r.Documents = append(r.Documents, rec.Document)
	r.Metadatas = append(r.Metadatas, rec.Metadata)
}
