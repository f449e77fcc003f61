package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalKey is the placeholder credential for backends that need none.
const LocalKey = "local"

// Ollama implements the text half of Backend against a local Ollama server.
// It cannot synthesize speech.
type Ollama struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllama creates an Ollama backend.
func NewOllama(model, baseURL string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Ollama{
		Model:   model,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Generate sends a prompt to Ollama's chat endpoint. The key is ignored.
func (o *Ollama) Generate(ctx context.Context, _ string, prompt string) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.3,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.Message.Content, nil
}

// GenerateAudio always fails permanently.
func (o *Ollama) GenerateAudio(context.Context, string, string) ([]byte, error) {
	return nil, fmt.Errorf("%w: ollama has no speech synthesis", ErrPermanent)
}

// classifyStatus maps an HTTP status onto the retry taxonomy.
func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
	case code == http.StatusRequestTimeout:
		return err
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	default:
		return err
	}
}
