package documents

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/embedding"
	"github.com/eugenenazirov/doc-assistant/internal/llm"
	"github.com/eugenenazirov/doc-assistant/internal/storage"
)

// Metadata keys stored on every chunk.
const (
	MetaDocumentID = "document_id"
	MetaTitle      = "title"
	MetaType       = "type"
	MetaChunkIndex = "chunk_index"
	MetaSize       = "size"
)

// Document types.
const (
	TypeUpload = "upload"
	TypeText   = "text"
	TypePDF    = "pdf"
)

// DefaultTitle is used for direct uploads without a title.
const DefaultTitle = "Direct Text Upload"

// NoAnswer is returned when retrieval finds nothing relevant.
const NoAnswer = "I could not find any relevant documents to answer that question."

const (
	defaultTopK    = 4
	excerptLength  = 200
	promptTemplate = `You are a helpful assistant answering questions about the user's documents.
Use only the context below. If the answer is not in the context, say you don't know.

Context:
%s

Question: %s
Answer:`
)

// Document is the input to Ingest.
type Document struct {
	Title string
	Type  string
	Text  string
}

// IngestResult describes a stored document.
type IngestResult struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Size   int    `json:"size"`
	Chunks int    `json:"chunks"`
}

// Source is a retrieved chunk backing an answer.
type Source struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
}

// Answer is the result of Ask.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Summary aggregates the chunks of one document.
type Summary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Size   int    `json:"size"`
	Chunks int    `json:"chunks"`
}

// Service ingests documents into a collection and answers questions over them.
type Service struct {
	collection storage.Collection
	embedder   embedding.Embedder
	generator  llm.Generator
	chunker    Chunker
	topK       int
	logger     *zap.Logger
	newID      func() string
}

// Option configures Service behaviour.
type Option func(*Service)

// WithGenerator enables generative answers. Without one, answers are extractive.
func WithGenerator(g llm.Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithChunking overrides the chunk size and overlap.
func WithChunking(size, overlap int) Option {
	return func(s *Service) {
		s.chunker = NewChunker(size, overlap)
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides document id generation, primarily for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService constructs a Service over the given collection and embedder.
func NewService(collection storage.Collection, embedder embedding.Embedder, opts ...Option) *Service {
	s := &Service{
		collection: collection,
		embedder:   embedder,
		chunker:    NewChunker(defaultChunkSize, defaultChunkOverlap),
		topK:       defaultTopK,
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns the underlying collection.
func (s *Service) Collection() storage.Collection {
	return s.collection
}

// Ingest chunks, embeds and stores a document.
func (s *Service) Ingest(ctx context.Context, doc Document) (IngestResult, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return IngestResult{}, ErrEmptyDocument
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = DefaultTitle
	}
	docType := doc.Type
	if docType == "" {
		docType = TypeUpload
	}

	chunks := s.chunker.Split(text)
	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return IngestResult{}, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(chunks), len(vectors))
	}

	docID := s.newID()
	size := len([]rune(text))
	records := make([]storage.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = storage.Record{
			ID:        docID + ":" + strconv.Itoa(i),
			Document:  chunk,
			Embedding: vectors[i],
			Metadata: storage.Metadata{
				MetaDocumentID: docID,
				MetaTitle:      title,
				MetaType:       docType,
				MetaChunkIndex: strconv.Itoa(i),
				MetaSize:       strconv.Itoa(size),
			},
		}
	}
	if err := s.collection.Add(ctx, records...); err != nil {
		return IngestResult{}, fmt.Errorf("store chunks: %w", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", docID),
		zap.String("title", title),
		zap.String("type", docType),
		zap.Int("chunks", len(chunks)),
	)

	return IngestResult{ID: docID, Title: title, Type: docType, Size: size, Chunks: len(chunks)}, nil
}

// IngestPDF extracts the text of a PDF and ingests it.
func (s *Service) IngestPDF(ctx context.Context, title string, r io.ReaderAt, size int64) (IngestResult, error) {
	text, err := extractPDFText(r, size)
	if err != nil {
		return IngestResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return IngestResult{}, fmt.Errorf("%w: no text content", ErrUnreadablePDF)
	}
	return s.Ingest(ctx, Document{Title: title, Type: TypePDF, Text: text})
}

// Ask answers a question from the most relevant chunks.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	question, matches, err := s.retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	sources := toSources(matches)
	if len(matches) == 0 {
		return Answer{Answer: NoAnswer, Sources: sources}, nil
	}

	if s.generator == nil {
		return Answer{Answer: extractive(matches), Sources: sources}, nil
	}

	text, err := s.generator.Generate(ctx, buildPrompt(question, matches))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	return Answer{Answer: strings.TrimSpace(text), Sources: sources}, nil
}

// AskStream is Ask delivering the answer incrementally through emit.
func (s *Service) AskStream(ctx context.Context, question string, emit func(token string) error) ([]Source, error) {
	question, matches, err := s.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	sources := toSources(matches)
	switch {
	case len(matches) == 0:
		return sources, emit(NoAnswer)
	case s.generator == nil:
		return sources, emit(extractive(matches))
	}

	if err := s.generator.GenerateStream(ctx, buildPrompt(question, matches), emit); err != nil {
		return sources, fmt.Errorf("stream answer: %w", err)
	}
	return sources, nil
}

// List returns one summary per stored document, in ingestion order.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	res, err := s.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}

	summaries := make([]Summary, 0)
	index := make(map[string]int)
	for i, id := range res.IDs {
		meta := res.Metadatas[i]
		docID := meta[MetaDocumentID]
		if docID == "" {
			docID = id
		}
		if pos, ok := index[docID]; ok {
			summaries[pos].Chunks++
			continue
		}
		size, _ := strconv.Atoi(meta[MetaSize])
		index[docID] = len(summaries)
		summaries = append(summaries, Summary{
			ID:     docID,
			Title:  meta[MetaTitle],
			Type:   meta[MetaType],
			Size:   size,
			Chunks: 1,
		})
	}
	return summaries, nil
}

// Count returns the number of stored chunks.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.collection.Count(ctx)
}

// Reset removes every chunk and reports how many were removed.
func (s *Service) Reset(ctx context.Context) (int, error) {
	n, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count collection: %w", err)
	}
	if err := s.collection.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset collection: %w", err)
	}
	s.logger.Info("collection reset", zap.String("collection", s.collection.Name()), zap.Int("removed", n))
	return n, nil
}

func (s *Service) retrieve(ctx context.Context, question string) (string, []storage.Match, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, ErrEmptyQuestion
	}

	n, err := s.collection.Count(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("count collection: %w", err)
	}
	if n == 0 {
		return question, nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return "", nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return "", nil, fmt.Errorf("embed question: expected 1 vector, got %d", len(vectors))
	}

	matches, err := s.collection.Query(ctx, vectors[0], s.topK)
	if err != nil {
		return "", nil, fmt.Errorf("query collection: %w", err)
	}

	relevant := matches[:0]
	for _, m := range matches {
		if m.Score > 0 {
			relevant = append(relevant, m)
		}
	}
	return question, relevant, nil
}

func toSources(matches []storage.Match) []Source {
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			DocumentID: m.Metadata[MetaDocumentID],
			Title:      m.Metadata[MetaTitle],
			Score:      m.Score,
			Excerpt:    truncate(m.Document, excerptLength),
		})
	}
	return sources
}

func extractive(matches []storage.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Document)
	}
	return strings.Join(parts, "\n\n")
}

func buildPrompt(question string, matches []storage.Match) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		if title := m.Metadata[MetaTitle]; title != "" {
			sb.WriteString("[" + title + "] ")
		}
		sb.WriteString(m.Document)
	}
	return fmt.Sprintf(promptTemplate, sb.String(), question)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
