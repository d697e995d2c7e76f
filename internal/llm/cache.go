package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"
)

// Cache is the key/value store behind the caching decorators. Misses and
// backend errors are both reported as errors and treated as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

func cacheKey(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}

type CachedDetector struct {
	next   LanguageDetector
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDetector(next LanguageDetector, cache Cache, ttl time.Duration) *CachedDetector {
	return &CachedDetector{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: slog.Default().With("component", "language_cache"),
	}
}

func (c *CachedDetector) Detect(ctx context.Context, text string) (Detection, error) {
	key := cacheKey("kd:lang:", text)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var det Detection
		if json.Unmarshal([]byte(raw), &det) == nil && det.Language != "" {
			return det, nil
		}
	}

	det, err := c.next.Detect(ctx, text)
	if err != nil {
		return det, err
	}
	if b, err := json.Marshal(det); err == nil {
		if err := c.cache.Set(ctx, key, string(b), c.ttl); err != nil {
			c.logger.Warn("cache write failed", "error", err)
		}
	}
	return det, nil
}

type CachedTranslator struct {
	next   Translator
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedTranslator(next Translator, cache Cache, ttl time.Duration) *CachedTranslator {
	return &CachedTranslator{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: slog.Default().With("component", "translation_cache"),
	}
}

func (c *CachedTranslator) Translate(ctx context.Context, text, from string) (string, error) {
	key := cacheKey("kd:tr:", from, text)
	if cached, err := c.cache.Get(ctx, key); err == nil && cached != "" {
		return cached, nil
	}

	translated, err := c.next.Translate(ctx, text, from)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, translated, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
	return translated, nil
}
