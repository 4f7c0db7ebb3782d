package collector

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/valscreen/internal/core"
)

// mockSource for testing
type mockSource struct {
	name string
}

func (m *mockSource) Name() string { return m.name }
func (m *mockSource) FastSize(ctx context.Context, id core.Identifier) (float64, error) {
	return 100, nil
}
func (m *mockSource) Metadata(ctx context.Context, id core.Identifier) (*core.Metadata, error) {
	return &core.Metadata{Identifier: id}, nil
}
func (m *mockSource) AnnualStatements(ctx context.Context, id core.Identifier) (*core.Statement, error) {
	return &core.Statement{Identifier: id}, nil
}
func (m *mockSource) PriceHistory(ctx context.Context, id core.Identifier, start time.Time) ([]core.PricePoint, error) {
	return nil, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	mock := &mockSource{name: "mock"}
	r.Register(mock)

	s, ok := r.Get("mock")
	if !ok {
		t.Fatal("expected to find registered source")
	}

	if s.Name() != "mock" {
		t.Errorf("expected name 'mock', got '%s'", s.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing source lookup to fail")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockSource{name: "b"})
	r.Register(&mockSource{name: "a"})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(names))
	}
	if names[0] != "a" || names[1] != "b" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Timeout)
	}
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		t.Errorf("expected positive rate settings, got %+v", cfg)
	}
}
