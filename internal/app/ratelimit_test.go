package app

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRateLimiter_EnforcesWindowLimit(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter()
	limiter.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		allowed, _, err := limiter.Allow(context.Background(), "create", "203.0.113.7", 10, time.Minute)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !allowed {
			t.Fatalf("request %d within the limit must be allowed", i+1)
		}
		now = now.Add(time.Second)
	}

	allowed, retryAfter, err := limiter.Allow(context.Background(), "create", "203.0.113.7", 10, time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if allowed {
		t.Fatal("11th request inside the window must be rejected")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Fatalf("retry-after hint out of range: %d", retryAfter)
	}
}

func TestMemoryRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter()
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if allowed, _, _ := limiter.Allow(context.Background(), "general", "client", 3, time.Minute); !allowed {
			t.Fatalf("request %d must be allowed", i+1)
		}
	}
	if allowed, _, _ := limiter.Allow(context.Background(), "general", "client", 3, time.Minute); allowed {
		t.Fatal("limit reached; request must be rejected")
	}

	// Once the oldest hits fall out of the window, capacity returns.
	now = now.Add(61 * time.Second)
	if allowed, _, _ := limiter.Allow(context.Background(), "general", "client", 3, time.Minute); !allowed {
		t.Fatal("request after the window slid must be allowed")
	}
}

func TestMemoryRateLimiter_SubjectsAreIndependent(t *testing.T) {
	limiter := NewMemoryRateLimiter()

	if allowed, _, _ := limiter.Allow(context.Background(), "create", "10.0.0.1", 1, time.Minute); !allowed {
		t.Fatal("first client must be allowed")
	}
	if allowed, _, _ := limiter.Allow(context.Background(), "create", "10.0.0.1", 1, time.Minute); allowed {
		t.Fatal("first client is over its limit")
	}
	if allowed, _, _ := limiter.Allow(context.Background(), "create", "10.0.0.2", 1, time.Minute); !allowed {
		t.Fatal("second client has its own budget")
	}
}

func TestMemoryRateLimiter_ScopesAreIndependent(t *testing.T) {
	limiter := NewMemoryRateLimiter()

	if allowed, _, _ := limiter.Allow(context.Background(), "create", "10.0.0.1", 1, time.Minute); !allowed {
		t.Fatal("create scope must be allowed")
	}
	if allowed, _, _ := limiter.Allow(context.Background(), "general", "10.0.0.1", 1, time.Minute); !allowed {
		t.Fatal("general scope carries a separate counter")
	}
}

func TestMemoryRateLimiter_SweepDropsIdleKeys(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter()
	limiter.now = func() time.Time { return now }

	limiter.Allow(context.Background(), "general", "idle-client", 10, time.Minute)
	now = now.Add(time.Hour)
	limiter.Allow(context.Background(), "general", "fresh-client", 10, time.Minute)

	limiter.Sweep(15 * time.Minute)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.entries["general:idle-client"]; ok {
		t.Fatal("idle key must be swept")
	}
	if _, ok := limiter.entries["general:fresh-client"]; !ok {
		t.Fatal("recently seen key must survive the sweep")
	}
}
