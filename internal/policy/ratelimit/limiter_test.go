package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_WaitSpacesCalls(t *testing.T) {
	l := New(Config{Interval: 100 * time.Millisecond})

	ctx := context.Background()
	url := "https://maps.googleapis.com/maps/api/place/textsearch/json"

	// The first call consumes the initial token immediately.
	start := time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	// The next token arrives one interval later.
	start = time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	l := New(Config{Interval: time.Second})

	ctx := context.Background()
	if err := l.Wait(ctx, "https://a.example/1"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "https://b.example/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Errorf("host b blocked unexpectedly")
	}
}

func TestLimiter_ZeroIntervalDisablesLimiting(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := l.Wait(ctx, "https://a.example/"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("expected unlimited calls, took %v", time.Since(start))
	}
}

func TestLimiter_CanceledContext(t *testing.T) {
	l := New(Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, "https://a.example/"); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := l.Wait(ctx, "https://a.example/"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
