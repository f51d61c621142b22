package observability

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsCarryKeyAndValue(t *testing.T) {
	err := errors.New("boom")
	cases := []struct {
		field Field
		key   string
		value interface{}
	}{
		{String("name", "page"), "name", "page"},
		{Int("pages", 12), "pages", 12},
		{Float64("confidence", 92.5), "confidence", 92.5},
		{Duration("elapsed", time.Second), "elapsed", time.Second},
		{Error("err", err), "err", err},
	}
	for _, c := range cases {
		if c.field.Key() != c.key {
			t.Fatalf("key = %q, want %q", c.field.Key(), c.key)
		}
		if c.field.Value() != c.value {
			t.Fatalf("value for %q = %v, want %v", c.key, c.field.Value(), c.value)
		}
	}
}

func TestNopLoggerWithReturnsNop(t *testing.T) {
	var l Logger = NopLogger{}
	l = l.With(String("k", "v"))
	l.Info("ignored")
	if _, ok := l.(NopLogger); !ok {
		t.Fatalf("With on NopLogger should stay a NopLogger, got %T", l)
	}
}

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZap(zap.New(core)).With(String("component", "batch"))

	l.Info("page done", Int("page", 3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "batch" {
		t.Fatalf("missing component field: %v", ctx)
	}
	if ctx["page"] != int64(3) {
		t.Fatalf("missing page field: %v", ctx)
	}
}
