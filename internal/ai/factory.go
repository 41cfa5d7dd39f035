package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spendyze/internal/cache"
	"spendyze/internal/log"
)

// Config selects and tunes the provider.
type Config struct {
	Provider  string // offline, gemini or openai
	APIKey    string
	Model     string
	BaseURL   string // openai only
	CacheSize int
	CacheTTL  time.Duration
	Breaker   BreakerSettings
}

// New builds the Service for cfg.Provider. The returned cache is nil for the
// offline provider; callers register it for periodic cleanup.
func New(ctx context.Context, cfg Config, logger *log.Logger) (Service, *cache.LRUCache[Summary], error) {
	var model Model
	switch strings.ToLower(cfg.Provider) {
	case "", "offline", "static":
		return Offline{}, nil, nil
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		model = g
	case "openai":
		o, err := NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		model = o
	default:
		return nil, nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}

	size, ttl := cfg.CacheSize, cfg.CacheTTL
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	summaries := cache.NewLRUCache[Summary](size, ttl)
	return NewClient(WithBreaker(model, cfg.Breaker), summaries, logger), summaries, nil
}
