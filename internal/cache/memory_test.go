package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(v) != "v" {
		t.Errorf("expected 'v', got %q", v)
	}

	v[0] = 'x'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "v" {
		t.Error("returned slice aliases the stored value")
	}

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "short", []byte("1"), time.Hour)
	m.Set(ctx, "forever", []byte("2"), 0)

	now = now.Add(2 * time.Hour)

	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Error("expected expired entry to miss")
	}
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Error("expected entry without ttl to survive")
	}
	if m.Len() != 1 {
		t.Errorf("expected expired entry dropped on read, len=%d", m.Len())
	}
}

func TestMemory_Purge(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), time.Minute)
	m.Set(ctx, "b", []byte("2"), time.Minute)
	m.Set(ctx, "c", []byte("3"), time.Hour)

	now = now.Add(10 * time.Minute)
	if n := m.Purge(); n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", m.Len())
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Set(ctx, "k", []byte("v"), 0)
	m.Delete(ctx, "k")
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected deleted key to miss")
	}
}

func TestJSONHelpers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	type payload struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}
	in := payload{Name: "sp500", Items: []string{"AAPL", "MSFT"}}
	if err := SetJSON(ctx, m, "p", in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out payload
	ok, err := GetJSON(ctx, m, "p", &out)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if out.Name != "sp500" || len(out.Items) != 2 {
		t.Errorf("unexpected payload %+v", out)
	}

	m.Set(ctx, "bad", []byte("{"), 0)
	if ok, err := GetJSON(ctx, m, "bad", &out); ok || err == nil {
		t.Error("expected decode error for corrupt entry")
	}

	if ok, err := GetJSON(ctx, m, "none", &out); ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestMemory_Janitor(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Set(ctx, "valuation:OLD", []byte("1"), time.Minute)
	m.Set(ctx, "valuation:NEW", []byte("2"), time.Hour)
	later := time.Now().Add(10 * time.Minute)
	m.now = func() time.Time { return later }

	purged := make(chan int, 1)
	done := make(chan struct{})
	go func() {
		m.Janitor(ctx, 5*time.Millisecond, func(n int) {
			select {
			case purged <- n:
			default:
			}
		})
		close(done)
	}()

	select {
	case n := <-purged:
		if n != 1 {
			t.Errorf("expected 1 purged, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never purged")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", m.Len())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop on cancel")
	}
}
