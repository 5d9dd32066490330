package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/eugenenazirov/doc-assistant/internal/documents"
	"github.com/eugenenazirov/doc-assistant/internal/routing"
)

const (
	defaultMaxUploadBytes = 10 << 20
	multipartMemory       = 4 << 20
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Assistant is the document service behind the HTTP handlers.
type Assistant interface {
	Ingest(ctx context.Context, doc documents.Document) (documents.IngestResult, error)
	IngestPDF(ctx context.Context, title string, r io.ReaderAt, size int64) (documents.IngestResult, error)
	Ask(ctx context.Context, question string) (documents.Answer, error)
	AskStream(ctx context.Context, question string, emit func(token string) error) ([]documents.Source, error)
	List(ctx context.Context) ([]documents.Summary, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) (int, error)
}

// Handler wires the document assistant into HTTP handlers.
type Handler struct {
	assistant      Assistant
	logger         *zap.Logger
	clock          func() time.Time
	maxUploadBytes int64
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMaxUploadBytes limits request bodies of upload endpoints.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithHandlerLogger sets the logger used for handler-level errors.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(assistant Assistant, opts ...HandlerOption) *Handler {
	h := &Handler{
		assistant: assistant,
		logger:    zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the route table served by the handler, relative to the API prefix.
func (h *Handler) Routes() []routing.Route {
	return []routing.Route{
		{Name: "health", Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(h.handleHealth)},
		{Name: "ask", Method: http.MethodPost, Path: "/ask", Handler: http.HandlerFunc(h.handleAsk)},
		{Name: "ask_stream", Method: http.MethodGet, Path: "/ask/stream", Handler: http.HandlerFunc(h.handleAskStream)},
		{Name: "upload", Method: http.MethodPost, Path: "/upload", Handler: http.HandlerFunc(h.handleUpload)},
		{Name: "upload_pdf", Method: http.MethodPost, Path: "/upload/pdf", Handler: http.HandlerFunc(h.handleUploadPDF)},
		{Name: "upload_text", Method: http.MethodPost, Path: "/upload/text", Handler: http.HandlerFunc(h.handleUploadText)},
		{Name: "list_docs", Method: http.MethodGet, Path: "/list", Handler: http.HandlerFunc(h.handleList)},
		{Name: "reset_docs", Method: http.MethodPost, Path: "/reset", Handler: http.HandlerFunc(h.handleReset)},
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	n, err := h.assistant.Count(r.Context())
	if err != nil {
		resp.Status = "degraded"
		resp.Details = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Chunks = n
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	answer, err := h.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) handleAskStream(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if question == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", documents.ErrEmptyQuestion.Error())
		return
	}

	rc := http.NewResponseController(w)
	// Streams are bounded by the request context, not the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(token string) error {
		if err := writeEvent(w, "", token); err != nil {
			return err
		}
		return rc.Flush()
	}

	sources, err := h.assistant.AskStream(r.Context(), question, emit)
	if err != nil {
		h.logger.Warn("answer stream failed", zap.Error(err), zap.String("request_id", requestIDFromContext(r.Context())))
		_ = writeEvent(w, "error", err.Error())
		_ = rc.Flush()
		return
	}

	payload, _ := json.Marshal(streamDone{Sources: sources})
	_ = writeEvent(w, "done", string(payload))
	_ = rc.Flush()
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req uploadRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.assistant.Ingest(r.Context(), documents.Document{
		Title: req.Title,
		Type:  documents.TypeUpload,
		Text:  req.Text,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUploadResponse(res, "Text uploaded successfully"))
}

func (h *Handler) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	res, err := h.assistant.IngestPDF(r.Context(), uploadTitle(r, header), file, header.Size)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUploadResponse(res, fmt.Sprintf("PDF uploaded successfully: %s", header.Filename)))
}

func (h *Handler) handleUploadText(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !utf8.Valid(data) {
		writeError(w, http.StatusBadRequest, "Invalid file", "text files must be UTF-8 encoded")
		return
	}

	res, err := h.assistant.Ingest(r.Context(), documents.Document{
		Title: uploadTitle(r, header),
		Type:  documents.TypeText,
		Text:  string(data),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUploadResponse(res, fmt.Sprintf("Text file uploaded successfully: %s", header.Filename)))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.assistant.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Documents: docs, Count: len(docs)})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	removed, err := h.assistant.Reset(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Message: "All documents have been cleared", Removed: removed})
}

// decodeJSON decodes and validates the request body, writing the error response on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", err.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	if err := validateRequest(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return false
	}
	return true
}

// formFile extracts the "file" part of a multipart upload, writing the error response on failure.
func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", err.Error())
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "expected multipart/form-data with a file field")
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "missing file field")
		return nil, nil, false
	}
	return file, header, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, documents.ErrEmptyQuestion),
		errors.Is(err, documents.ErrEmptyDocument),
		errors.Is(err, documents.ErrUnreadablePDF):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("request_id", requestIDFromContext(r.Context())))
		writeInternalError(w, err)
	}
}

func uploadTitle(r *http.Request, header *multipart.FileHeader) string {
	if title := strings.TrimSpace(r.FormValue("title")); title != "" {
		return title
	}
	return filepath.Base(header.Filename)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// writeEvent writes one server-sent event; multi-line data is split across data fields.
func writeEvent(w io.Writer, event, data string) error {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: " + event + "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		sb.WriteString("data: " + line + "\n")
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

type askRequest struct {
	Question string `json:"question" validate:"required"`
}

type uploadRequest struct {
	Text  string `json:"text" validate:"required"`
	Title string `json:"title" validate:"max=200"`
}

type uploadResponse struct {
	documents.IngestResult
	Message string `json:"message"`
}

func newUploadResponse(res documents.IngestResult, message string) uploadResponse {
	return uploadResponse{IngestResult: res, Message: message}
}

type listResponse struct {
	Documents []documents.Summary `json:"documents"`
	Count     int                 `json:"count"`
}

type resetResponse struct {
	Message string `json:"message"`
	Removed int    `json:"removed"`
}

type streamDone struct {
	Sources []documents.Source `json:"sources"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Chunks    int       `json:"chunks"`
	Details   string    `json:"details,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
