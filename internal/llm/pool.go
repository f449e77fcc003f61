package llm

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when a dispatch is attempted with an empty pool.
var ErrNoKeys = errors.New("llm: no API keys configured")

// KeyPool hands out credentials round-robin. The cursor advances on every
// call to Next and is not persisted.
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// NewKeyPool copies keys into a new pool with the cursor at the first key.
func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{keys: append([]string(nil), keys...)}
}

// Next returns the key under the cursor and advances it.
func (p *KeyPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", ErrNoKeys
	}
	key := p.keys[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.keys)
	return key, nil
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// mask hides all but the last four characters of a key for logging.
func mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "..." + key[len(key)-4:]
}
