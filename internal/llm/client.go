// Package llm dispatches prompts to a generative-language service through a
// rotating credential pool with bounded, quota-aware retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQuotaExhausted marks a backend failure caused by per-key quota.
	ErrQuotaExhausted = errors.New("llm: quota exhausted")
	// ErrPermanent marks a backend failure that retrying cannot fix.
	ErrPermanent = errors.New("llm: permanent failure")
	// ErrGenerationExhausted is returned once every attempt has failed.
	ErrGenerationExhausted = errors.New("llm: generation exhausted")
	// ErrMalformedOutput is returned when structured output cannot be parsed.
	ErrMalformedOutput = errors.New("llm: malformed structured output")
)

// Backend performs a single call against the generative service with one key.
type Backend interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
	// GenerateAudio returns nil bytes when the service produced no audio.
	GenerateAudio(ctx context.Context, apiKey, text string) ([]byte, error)
}

// Options tune the retry loop.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	// QuotaBackoffUnit is multiplied by 2^attempt after a quota error.
	QuotaBackoffUnit time.Duration
}

// DefaultOptions returns three attempts, a one second generic delay and
// one second quota backoff units.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, RetryDelay: time.Second, QuotaBackoffUnit: time.Second}
}

// Client is the resilient dispatcher shared by every generating stage.
type Client struct {
	backend Backend
	pool    *KeyPool
	opts    Options
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient wires a backend to a key pool.
func NewClient(backend Backend, pool *KeyPool, opts Options, logger *zap.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.QuotaBackoffUnit <= 0 {
		opts.QuotaBackoffUnit = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		backend: backend,
		pool:    pool,
		opts:    opts,
		logger:  logger.With(zap.String("component", "llm")),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatchText sends prompt and returns the model's text.
func (c *Client) DispatchText(ctx context.Context, prompt string) (string, error) {
	return dispatch(c, ctx, "text", func(ctx context.Context, key string) (string, error) {
		return c.backend.Generate(ctx, key, prompt)
	})
}

// DispatchStructured asks for strict JSON and parses the reply into an object.
// A reply that does not parse is not retried.
func (c *Client) DispatchStructured(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := c.DispatchText(ctx, prompt+"\n\nOutput strictly valid JSON.")
	if err != nil {
		return nil, err
	}
	obj, err := ParseJSONResponse(text)
	if err != nil {
		c.logger.Warn("structured output did not parse", zap.Error(err))
		return nil, err
	}
	return obj, nil
}

// DispatchAudio synthesizes narration. It returns nil bytes and no error
// when the service answered without audio.
func (c *Client) DispatchAudio(ctx context.Context, text string) ([]byte, error) {
	return dispatch(c, ctx, "audio", func(ctx context.Context, key string) ([]byte, error) {
		return c.backend.GenerateAudio(ctx, key, text)
	})
}

// dispatch runs call under the retry policy. The first key comes from the
// pool; quota errors rotate to the next key with exponential backoff, other
// transient errors keep the same key after RetryDelay.
func dispatch[T any](c *Client, ctx context.Context, kind string, call func(context.Context, string) (T, error)) (T, error) {
	var zero T
	key, err := c.pool.Next()
	if err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := call(ctx, key)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}
		if errors.Is(err, ErrPermanent) {
			c.logger.Warn("permanent failure, not retrying",
				zap.String("kind", kind), zap.String("key", mask(key)), zap.Error(err))
			return zero, err
		}

		last := attempt == c.opts.MaxAttempts-1
		var delay time.Duration
		if errors.Is(err, ErrQuotaExhausted) {
			c.logger.Warn("quota exceeded, rotating key",
				zap.String("kind", kind), zap.String("key", mask(key)), zap.Int("attempt", attempt+1))
			if next, perr := c.pool.Next(); perr == nil {
				key = next
			}
			delay = c.opts.QuotaBackoffUnit * time.Duration(math.Pow(2, float64(attempt)))
		} else {
			c.logger.Warn("generation failed, retrying",
				zap.String("kind", kind), zap.Int("attempt", attempt+1), zap.Error(err))
			delay = c.opts.RetryDelay
		}

		if last {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrGenerationExhausted, c.opts.MaxAttempts, lastErr)
}
