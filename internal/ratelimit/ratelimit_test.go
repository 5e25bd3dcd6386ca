package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestLimiterAllow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(60, 2) // 1 token/sec, burst 2
	l.now = clock.now
	key := "editor-1"

	if !l.Allow(key) {
		t.Fatalf("first token should be allowed")
	}
	if !l.Allow(key) {
		t.Fatalf("second token (burst) should be allowed")
	}
	if l.Allow(key) {
		t.Fatalf("third token should be rate-limited")
	}
	if !l.Allow("editor-2") {
		t.Fatalf("other editors keep their own bucket")
	}

	clock.t = clock.t.Add(1100 * time.Millisecond)
	if !l.Allow(key) {
		t.Fatalf("token should refill after 1s")
	}
}

func TestLimiterSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(60, 2)
	l.now = clock.now

	l.Allow("editor-1")
	clock.t = clock.t.Add(time.Second)
	l.Allow("editor-2")

	clock.t = clock.t.Add(1500 * time.Millisecond)
	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("expected 1 idle bucket removed, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 bucket left, got %d", l.Len())
	}
}
