package mocks

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TrackingCache is an in-memory stand-in for the Redis report cache that
// counts calls. Values are stored as JSON like the real cache.
type TrackingCache struct {
	mu          sync.Mutex
	GetCalls    int
	SetCalls    int
	DeleteCalls int
	data        map[string]cacheEntry
}

type cacheEntry struct {
	value  []byte
	expiry time.Time
}

func NewTrackingCache() *TrackingCache {
	return &TrackingCache{
		data: make(map[string]cacheEntry),
	}
}

func (c *TrackingCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.GetCalls++
	entry, exists := c.data[key]
	if !exists || !time.Now().Before(entry.expiry) {
		return redis.Nil
	}
	return json.Unmarshal(entry.value, dest)
}

func (c *TrackingCache) Set(ctx context.Context, key string, value any, exp time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.SetCalls++
	c.data[key] = cacheEntry{value: data, expiry: time.Now().Add(exp)}
	return nil
}

func (c *TrackingCache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.DeleteCalls++
	var removed int64
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored keys.
func (c *TrackingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Counts returns the get, set and delete call counts.
func (c *TrackingCache) Counts() (gets, sets, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.GetCalls, c.SetCalls, c.DeleteCalls
}

func (c *TrackingCache) Close() error {
	return nil
}
