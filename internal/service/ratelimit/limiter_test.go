package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(1, 2, WithClock(func() time.Time { return now }))

	if !l.Allow("ip") || !l.Allow("ip") {
		t.Fatalf("burst of 2 should be allowed")
	}
	if l.Allow("ip") {
		t.Fatalf("third request should be limited")
	}
	if !l.Allow("other") {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(time.Second)
	if !l.Allow("ip") {
		t.Fatalf("one token should refill after a second")
	}
	if l.Allow("ip") {
		t.Fatalf("only one token should have refilled")
	}
}

func TestLimiterForgetsIdleKeys(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(1, 1, WithClock(func() time.Time { return now }))
	l.Allow("a")
	l.Allow("b")

	now = now.Add(11 * time.Minute)
	l.Allow("c")
	if l.Len() != 1 {
		t.Fatalf("expected idle keys dropped, have %d", l.Len())
	}
}
