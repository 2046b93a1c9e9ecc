package cache

import (
	"encoding/json"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestResultCacheExpiresEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewResultCache(Config{TTL: time.Minute, MaxEntries: 10, Now: clock.Now})

	signature := Signature("summary", "gemini", "text")
	cache.Set(signature, Entry{Value: json.RawMessage(`{"title":"x"}`)})

	entry, ok := cache.Get("summary", signature)
	if !ok || string(entry.Value) != `{"title":"x"}` {
		t.Fatalf("expected cached entry, got %v %q", ok, entry.Value)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if _, ok := cache.Get("summary", signature); ok {
		t.Fatalf("expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, got %d", cache.Len())
	}
}

func TestResultCacheEvictsOldestAtCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewResultCache(Config{TTL: time.Hour, MaxEntries: 2, Now: clock.Now})

	cache.Set("a", Entry{Value: json.RawMessage(`1`)})
	clock.now = clock.now.Add(time.Second)
	cache.Set("b", Entry{Value: json.RawMessage(`2`)})
	clock.now = clock.now.Add(time.Second)
	cache.Set("c", Entry{Value: json.RawMessage(`3`)})

	if _, ok := cache.Get("quiz", "a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get("quiz", "c"); !ok {
		t.Fatalf("expected newest entry to be cached")
	}
}

func TestSignatureSeparatesTasksAndKeepsCase(t *testing.T) {
	if Signature("summary", "m", "Text") == Signature("quiz", "m", "Text") {
		t.Fatalf("expected task to change signature")
	}
	if Signature("summary", "m", "Text") == Signature("summary", "m", "text") {
		t.Fatalf("expected text case to change signature")
	}
	if Signature("summary", "m", " Text\n") != Signature("summary", "m", "Text") {
		t.Fatalf("expected surrounding whitespace to be ignored")
	}
}

func TestResultCacheReturnsCopies(t *testing.T) {
	cache := NewResultCache(Config{})
	cache.Set("k", Entry{Value: json.RawMessage(`[1]`)})

	first, _ := cache.Get("quiz", "k")
	first.Value[0] = 'x'
	second, _ := cache.Get("quiz", "k")
	if string(second.Value) != `[1]` {
		t.Fatalf("expected cached value to be isolated, got %q", second.Value)
	}
}
