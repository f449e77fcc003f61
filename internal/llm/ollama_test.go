package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "llama3" || body.Messages[0].Content != "hi" {
			t.Errorf("unexpected request: %+v", body)
		}
		w.Write([]byte(`{"message":{"content":"{\"flag\": false}"}}`))
	}))
	defer srv.Close()

	o := NewOllama("llama3", srv.URL, time.Second)
	got, err := o.Generate(context.Background(), LocalKey, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"flag": false}` {
		t.Errorf("got %q", got)
	}
}

func TestOllamaStatusClassification(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	o := NewOllama("llama3", srv.URL, time.Second)

	_, err := o.Generate(context.Background(), LocalKey, "hi")
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("429: expected quota error, got %v", err)
	}

	status = http.StatusNotFound
	_, err = o.Generate(context.Background(), LocalKey, "hi")
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("404: expected permanent error, got %v", err)
	}

	status = http.StatusInternalServerError
	_, err = o.Generate(context.Background(), LocalKey, "hi")
	if err == nil || errors.Is(err, ErrPermanent) || errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("500: expected transient error, got %v", err)
	}
}

func TestOllamaHasNoAudio(t *testing.T) {
	_, err := NewOllama("llama3", "", 0).GenerateAudio(context.Background(), LocalKey, "hi")
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
}
