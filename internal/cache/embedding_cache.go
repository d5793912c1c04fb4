package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const DefaultEmbeddingTTL = 24 * time.Hour

// EmbeddingCache keeps query vectors in Redis so repeated questions skip the
// embedding provider.
type EmbeddingCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewEmbeddingCache(client *redisv9.Client, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	return &EmbeddingCache{client: client, ttl: ttl}
}

func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.key(model, text)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get embedding failed: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached embedding failed: %w", err)
	}
	if len(vector) == 0 {
		return nil, false, nil
	}
	return vector, true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vector []float32) error {
	payload, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(model, text), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set embedding failed: %w", err)
	}
	return nil
}

func (c *EmbeddingCache) Delete(ctx context.Context, model, text string) error {
	if err := c.client.Del(ctx, c.key(model, text)).Err(); err != nil {
		return fmt.Errorf("redis delete embedding failed: %w", err)
	}
	return nil
}

func (c *EmbeddingCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:query:%s:%s", model, hex.EncodeToString(sum[:]))
}
