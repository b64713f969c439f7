package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWrapErrTimeout(t *testing.T) {
	err := wrapErr("mock", 0, context.DeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("deadline error not folded into ErrTimeout: %v", err)
	}
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("wrapErr did not produce *Error: %T", err)
	}
	if be.Provider != "mock" {
		t.Fatalf("provider = %q", be.Provider)
	}
}

func TestWrapErrStatus(t *testing.T) {
	err := wrapErr("openai", 429, errors.New("rate limited"))
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("wrapErr did not produce *Error: %T", err)
	}
	if be.Status != 429 {
		t.Fatalf("status = %d, want 429", be.Status)
	}
}

func TestMockScript(t *testing.T) {
	m := &Mock{Responses: []string{"one", "two"}}
	ctx := context.Background()
	for i, want := range []string{"one", "two", "two"} {
		resp, err := m.Chat(ctx, &Request{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Text != want {
			t.Fatalf("call %d = %q, want %q", i, resp.Text, want)
		}
	}
	if got := len(m.Calls()); got != 3 {
		t.Fatalf("recorded %d calls, want 3", got)
	}
}

func TestMockCancelled(t *testing.T) {
	m := &Mock{Responses: []string{"ok"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Chat(ctx, &Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimitPassthrough(t *testing.T) {
	m := &Mock{Responses: []string{"ok"}}
	if b := RateLimit(m, 0, 0); b != Backend(m) {
		t.Fatal("non-positive rps should return the inner backend")
	}
}

func TestRateLimitWaits(t *testing.T) {
	m := &Mock{Responses: []string{"ok"}}
	b := RateLimit(m, 50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := b.Chat(ctx, &Request{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	// Burst of 1 at 50 rps means the two extra calls wait ~20ms each.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("limiter did not slow calls: %v", elapsed)
	}
}

func TestRateLimitCancelledWhileWaiting(t *testing.T) {
	m := &Mock{Responses: []string{"ok"}}
	b := RateLimit(m, 0.1, 1)
	ctx := context.Background()
	if _, err := b.Chat(ctx, &Request{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Chat(ctx, &Request{}); err == nil {
		t.Fatal("expected error while waiting for a token")
	}
}
