package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiOptions configures the Gemini backend.
type GeminiOptions struct {
	Model    string
	TTSModel string
	Voice    string
	Timeout  time.Duration
}

// Gemini implements Backend on google.golang.org/genai. One client is kept
// per API key and created on first use.
type Gemini struct {
	opts GeminiOptions

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini creates a Gemini backend with defaults for unset options.
func NewGemini(opts GeminiOptions) *Gemini {
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.TTSModel == "" {
		opts.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if opts.Voice == "" {
		opts.Voice = "Kore"
	}
	return &Gemini{opts: opts, clients: make(map[string]*genai.Client)}
}

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

func (g *Gemini) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.Timeout > 0 {
		return context.WithTimeout(ctx, g.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// Generate sends prompt to the text model.
func (g *Gemini) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	c, err := g.client(ctx, apiKey)
	if err != nil {
		return "", err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := c.Models.GenerateContent(ctx, g.opts.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini returned no text")
	}
	return sb.String(), nil
}

// GenerateAudio asks the TTS model to read text aloud and returns the raw
// 16-bit PCM of the first audio part, or nil if there is none.
func (g *Gemini) GenerateAudio(ctx context.Context, apiKey, text string) ([]byte, error) {
	c, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	prompt := "Read the following text clearly and naturally:\n\n" + text
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.opts.Voice},
			},
		},
	}

	resp, err := c.Models.GenerateContent(ctx, g.opts.TTSModel,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, classify(err)
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil && p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio") {
				return p.InlineData.Data, nil
			}
		}
	}
	return nil, nil
}

// classify maps service errors onto the retry taxonomy.
func classify(err error) error {
	code, status, ok := apiErrorInfo(err)
	if !ok {
		if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
			return fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
		}
		return err
	}

	if status == "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
	}
	return classifyStatus(code, err)
}

func apiErrorInfo(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}
