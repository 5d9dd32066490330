package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/doc-assistant/internal/application"
	"github.com/eugenenazirov/doc-assistant/internal/config"
	"github.com/eugenenazirov/doc-assistant/internal/storage"
)

func testConfig() config.Config {
	return config.Config{
		Port:                "127.0.0.1:0",
		PathPrefix:          "/api/v1",
		ShutdownGracePeriod: time.Second,
		StartupTimeout:      time.Second,
		ReadHeaderTimeout:   time.Second,
		WriteTimeout:        5 * time.Second,
		IdleTimeout:         5 * time.Second,
		MaxUploadBytes:      1 << 20,
		CORS: config.CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
		},
		Store: config.StoreConfig{Backend: config.BackendBolt, Collection: "documents"},
		LLM:   config.LLMConfig{Provider: config.ProviderNone},
		Retrieval: config.RetrievalConfig{
			TopK:         3,
			ChunkSize:    800,
			ChunkOverlap: 100,
			EmbeddingDim: 256,
		},
	}
}

// startApp opens the bolt collection in dir and serves the assembled app.
func startApp(t *testing.T, dir string, logger *zap.Logger) (string, func()) {
	t.Helper()

	collection, err := storage.OpenBolt(dir, "documents")
	if err != nil {
		t.Fatalf("open collection: %v", err)
	}
	app, err := application.New(testConfig(), logger, collection)
	if err != nil {
		t.Fatalf("assemble application: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := collection.Close(); err != nil {
			t.Errorf("close collection: %v", err)
		}
	}
	return "http://" + app.Addr() + "/api/v1", stop
}

func performRequest(t *testing.T, method, target string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestIntegrationFlow(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zap.InfoLevel)
	base, stop := startApp(t, dir, zap.New(core))

	if entries := logs.FilterMessage("Loaded collection with 0 documents").Len(); entries != 1 {
		t.Fatalf("expected collection size to be logged once at startup, got %d", entries)
	}

	resp := performRequest(t, http.MethodGet, base+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	resp = performRequest(t, http.MethodPost, base+"/upload", map[string]any{
		"title": "Travel policy",
		"text":  "Employees must book economy class flights for trips shorter than six hours.",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from upload, got %d", resp.StatusCode)
	}

	resp = performRequest(t, http.MethodPost, base+"/ask", map[string]any{"question": "Which class must employees book for flights?"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from ask, got %d", resp.StatusCode)
	}
	var answer struct {
		Answer  string `json:"answer"`
		Sources []struct {
			Title string `json:"title"`
		} `json:"sources"`
	}
	decode(t, resp, &answer)
	if len(answer.Sources) == 0 || answer.Sources[0].Title != "Travel policy" {
		t.Fatalf("expected the travel policy as source, got %+v", answer)
	}

	resp = performRequest(t, http.MethodGet, base+"/list", nil, map[string]string{"Origin": "http://localhost:3000"})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected CORS origin echo, got %q", got)
	}
	var listed struct {
		Count int `json:"count"`
	}
	decode(t, resp, &listed)
	if listed.Count != 1 {
		t.Fatalf("expected 1 document, got %d", listed.Count)
	}

	stop()

	// The bolt collection survives a restart and the startup hook reports it.
	core, logs = observer.New(zap.InfoLevel)
	base, stop = startApp(t, dir, zap.New(core))
	defer stop()

	if entries := logs.FilterMessage("Loaded collection with 1 documents").Len(); entries != 1 {
		t.Fatalf("expected persisted chunk to be reported at startup, got %d", entries)
	}

	resp = performRequest(t, http.MethodPost, base+"/reset", nil, nil)
	var reset struct {
		Removed int `json:"removed"`
	}
	decode(t, resp, &reset)
	if reset.Removed != 1 {
		t.Fatalf("expected 1 chunk removed, got %d", reset.Removed)
	}
}

func TestIntegrationCORSPreflight(t *testing.T) {
	base, stop := startApp(t, t.TempDir(), zap.NewNop())
	defer stop()

	resp := performRequest(t, http.MethodOptions, base+"/ask", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type",
	})
	if resp.Header.Get("Access-Control-Allow-Methods") != http.MethodPost {
		t.Fatalf("expected POST to be allowed, got %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be allowed")
	}

	resp = performRequest(t, http.MethodOptions, base+"/ask", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodDelete,
	})
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("expected no allowed methods for DELETE, got %q", got)
	}

	resp = performRequest(t, http.MethodGet, base+"/health", nil, map[string]string{"Origin": "http://evil.example"})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers for foreign origin, got %q", got)
	}
}
