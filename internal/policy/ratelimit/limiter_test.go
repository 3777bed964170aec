package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterWait(t *testing.T) {
	// 10 RPS with burst 1: the first call is immediate, the second waits
	// roughly one token interval (100ms).
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "https://morbihan.gouv.fr/recherche"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	start = time.Now()
	if err := l.Wait(ctx, "https://morbihan.gouv.fr/autre"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterDifferentDomains(t *testing.T) {
	// 1 RPS per domain, but buckets are independent.
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://ain.gouv.fr/1"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "https://cantal.gouv.fr/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("second domain blocked unexpectedly")
	}
}

func TestLimiterContextCancel(t *testing.T) {
	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	ctx := context.Background()

	// Drain the only token.
	if err := l.Wait(ctx, "https://gers.gouv.fr/1"); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(cancelled, "https://gers.gouv.fr/2"); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(Config{DefaultRPS: 0})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := l.Wait(ctx, "https://somme.gouv.fr/x"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("disabled limiter should not block")
	}
}
