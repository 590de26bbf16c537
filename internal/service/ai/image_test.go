package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/archofall1/ai-ap/internal/config"
)

func TestHFImageGenerator(t *testing.T) {
	var gotPrompt, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		gotPrompt = body["inputs"]
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG-bytes"))
	}))
	defer srv.Close()

	g := &hfImageGenerator{endpoint: srv.URL, token: "hf_test", httpClient: srv.Client()}
	data, err := g.Generate(context.Background(), "a red fox")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(data) != "\x89PNG-bytes" {
		t.Fatalf("unexpected bytes %q", data)
	}
	if gotPrompt != "a red fox" || gotAuth != "Bearer hf_test" {
		t.Fatalf("unexpected request prompt=%q auth=%q", gotPrompt, gotAuth)
	}
}

func TestHFImageGeneratorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Model is loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := &hfImageGenerator{endpoint: srv.URL, httpClient: srv.Client()}
	_, err := g.Generate(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "Model is loading") {
		t.Fatalf("expected upstream error detail, got %v", err)
	}
}

func TestNewImageGenerator(t *testing.T) {
	cfg := config.Default()
	cfg.Providers["openai"] = config.ProviderConfig{BaseURL: "http://127.0.0.1:1/v1"}

	g, err := NewImageGenerator(cfg, config.ModelSpec{Provider: "huggingface", Model: "org/model"}, "tok")
	if err != nil {
		t.Fatalf("huggingface generator: %v", err)
	}
	hf, ok := g.(*hfImageGenerator)
	if !ok || !strings.HasSuffix(hf.endpoint, "/org/model") {
		t.Fatalf("unexpected generator %#v", g)
	}

	if _, err := NewImageGenerator(cfg, config.ModelSpec{Provider: "openai", Model: "dall-e-3"}, "tok"); err != nil {
		t.Fatalf("openai generator: %v", err)
	}
	if _, err := NewImageGenerator(cfg, config.ModelSpec{Provider: "missing", Model: "x"}, "tok"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
