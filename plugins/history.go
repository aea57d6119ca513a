package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Transmission is one entry of the transmit history
type Transmission struct {
	ID       string        `json:"id"`
	Time     time.Time     `json:"time"`
	Source   string        `json:"source"`
	Raw      bool          `json:"raw"`
	Preamble uint8         `json:"preamble,omitempty"`
	Data     string        `json:"data"` // hex payload, or whole buffer when Raw
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// HistoryStore keeps the most recent transmissions
type HistoryStore interface {
	Record(ctx context.Context, t Transmission) error
	// Recent returns up to n entries, newest first
	Recent(ctx context.Context, n int) ([]Transmission, error)
}

// HistoryConfig selects the history backend
type HistoryConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Key       string `yaml:"key"`
	Limit     int    `yaml:"limit"`
}

// NewHistoryStore returns a Redis store when an address is configured and an
// in-memory one otherwise
func NewHistoryStore(cfg HistoryConfig) HistoryStore {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.RedisAddr == "" {
		return NewMemoryHistory(cfg.Limit)
	}
	if cfg.Key == "" {
		cfg.Key = "ismtx:history"
	}
	return NewRedisHistory(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.Key, cfg.Limit)
}

// MemoryHistory is a bounded in-process history
type MemoryHistory struct {
	mu    sync.Mutex
	items []Transmission // oldest first
	limit int
}

func NewMemoryHistory(limit int) *MemoryHistory {
	return &MemoryHistory{limit: limit}
}

func (h *MemoryHistory) Record(_ context.Context, t Transmission) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, t)
	if len(h.items) > h.limit {
		h.items = h.items[len(h.items)-h.limit:]
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, n int) ([]Transmission, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.items) {
		n = len(h.items)
	}
	out := make([]Transmission, 0, n)
	for i := len(h.items) - 1; i >= len(h.items)-n; i-- {
		out = append(out, h.items[i])
	}
	return out, nil
}

// RedisHistory keeps the history in a capped Redis list, newest at the head
type RedisHistory struct {
	client *redis.Client
	key    string
	limit  int
}

func NewRedisHistory(client *redis.Client, key string, limit int) *RedisHistory {
	return &RedisHistory{client: client, key: key, limit: limit}
}

func (h *RedisHistory) Record(ctx context.Context, t Transmission) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, h.key, data)
		pipe.LTrim(ctx, h.key, 0, int64(h.limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record transmission %s: %w", t.ID, err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, n int) ([]Transmission, error) {
	if n <= 0 || n > h.limit {
		n = h.limit
	}
	entries, err := h.client.LRange(ctx, h.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := make([]Transmission, 0, len(entries))
	for _, e := range entries {
		var t Transmission
		if err := json.Unmarshal([]byte(e), &t); err != nil {
			return nil, fmt.Errorf("corrupt history entry: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Close closes the Redis connection
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
