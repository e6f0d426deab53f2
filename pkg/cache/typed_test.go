package cache

import (
	"context"
	"testing"
	"time"
)

type cachedAdvice struct {
	Summary string   `json:"summary"`
	Routes  []string `json:"routes"`
}

func TestTyped_RoundTrip(t *testing.T) {
	mem := newTestMemory(t, 10)
	tc := NewTyped[cachedAdvice](mem, "advice:", time.Minute)
	ctx := context.Background()

	if _, hit, err := tc.Get(ctx, "k"); hit || err != nil {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	want := &cachedAdvice{Summary: "cheapest", Routes: []string{"Shanghai -> Singapore"}}
	if err := tc.Set(ctx, "k", want); err != nil {
		t.Fatal(err)
	}

	got, hit, err := tc.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("expected hit, got %v %v", hit, err)
	}
	if got.Summary != want.Summary || len(got.Routes) != 1 {
		t.Errorf("got %+v", got)
	}

	if raw, err := mem.Get(ctx, "advice:k"); err != nil || len(raw) == 0 {
		t.Error("value must be stored under the prefix")
	}
}

func TestTyped_CorruptEntryIsMiss(t *testing.T) {
	mem := newTestMemory(t, 10)
	tc := NewTyped[cachedAdvice](mem, "advice:", time.Minute)
	ctx := context.Background()

	_ = mem.Set(ctx, "advice:bad", []byte("{not json"), 0)

	if _, hit, err := tc.Get(ctx, "bad"); hit || err != nil {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
	if _, err := mem.Get(ctx, "advice:bad"); err == nil {
		t.Error("corrupt entry must be removed")
	}
}

func TestTyped_InvalidateAll(t *testing.T) {
	mem := newTestMemory(t, 10)
	tc := NewTyped[cachedAdvice](mem, "advice:", 0)
	ctx := context.Background()

	_ = tc.Set(ctx, "a", &cachedAdvice{})
	_ = tc.Set(ctx, "b", &cachedAdvice{})
	_ = mem.Set(ctx, "keep", []byte("1"), 0)

	n, err := tc.InvalidateAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("InvalidateAll = %d, %v", n, err)
	}
}
