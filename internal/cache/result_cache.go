package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/iago/studyhub-back/internal/metrics"
)

type Entry struct {
	Value     json.RawMessage
	ModelID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

// ResultCache keeps successful summary and quiz results keyed by a content
// signature. Callers only store successes.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewResultCache(config Config) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &ResultCache{
		entries:    make(map[string]Entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        config.Now,
	}
}

func (c *ResultCache) Get(task, signature string) (Entry, bool) {
	c.mu.Lock()
	entry, exists := c.entries[signature]
	if exists && c.now().After(entry.ExpiresAt) {
		delete(c.entries, signature)
		exists = false
	}
	c.mu.Unlock()

	metrics.CacheLookup(task, exists)
	if !exists {
		return Entry{}, false
	}
	return cloneEntry(entry), true
}

func (c *ResultCache) Set(signature string, entry Entry) {
	now := c.now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(c.ttl)
	entry.Value = append(json.RawMessage(nil), entry.Value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[signature]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[signature] = entry
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Signature hashes the task, model and input text. Text is compared
// byte for byte apart from surrounding whitespace.
func Signature(task, model, text string) string {
	hash := sha256.New()
	hash.Write([]byte(strings.ToLower(strings.TrimSpace(task))))
	hash.Write([]byte{0})
	hash.Write([]byte(strings.TrimSpace(model)))
	hash.Write([]byte{0})
	hash.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(hash.Sum(nil))
}

// evict drops expired entries, or the oldest one when none expired.
func (c *ResultCache) evict(now time.Time) {
	oldestKey := ""
	var oldest time.Time
	removed := false
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed = true
			continue
		}
		if oldestKey == "" || entry.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.CreatedAt
		}
	}
	if !removed && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cloneEntry(entry Entry) Entry {
	clone := entry
	clone.Value = append(json.RawMessage(nil), entry.Value...)
	return clone
}
