package catalog

import (
	"errors"
	"testing"
	"time"
)

func TestAddAssignsUniqueIDs(t *testing.T) {
	t.Parallel()
	c := New()
	a := c.Add(ModelInfo{Name: "a"}, nil)
	b := c.Add(ModelInfo{Name: "b"}, nil)
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
	info, ok := c.Get(a)
	if !ok || info.Name != "a" {
		t.Fatalf("Get(%q) = %+v, %v", a, info, ok)
	}
	if info.LoadedAt.IsZero() {
		t.Error("LoadedAt should default to now")
	}
}

func TestListOrderedByLoadTime(t *testing.T) {
	t.Parallel()
	c := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.Add(ModelInfo{Name: "second", LoadedAt: base.Add(time.Minute)}, nil)
	c.Add(ModelInfo{Name: "first", LoadedAt: base}, nil)

	models := c.List()
	if len(models) != 2 {
		t.Fatalf("len(List()) = %d", len(models))
	}
	if models[0].Name != "first" || models[1].Name != "second" {
		t.Errorf("unexpected order: %q, %q", models[0].Name, models[1].Name)
	}
}

func TestRemoveClosesModel(t *testing.T) {
	t.Parallel()
	c := New()
	closed := false
	id := c.Add(ModelInfo{Name: "m"}, func() error {
		closed = true
		return nil
	})

	ok, err := c.Remove(id)
	if !ok || err != nil {
		t.Fatalf("Remove = %v, %v", ok, err)
	}
	if !closed {
		t.Error("close callback was not invoked")
	}
	if _, found := c.Get(id); found {
		t.Error("entry still present after Remove")
	}
	if ok, _ := c.Remove(id); ok {
		t.Error("second Remove should report absence")
	}
}

func TestRemovePropagatesCloseError(t *testing.T) {
	t.Parallel()
	c := New()
	wantErr := errors.New("munmap failed")
	id := c.Add(ModelInfo{Name: "m"}, func() error { return wantErr })

	ok, err := c.Remove(id)
	if !ok {
		t.Fatal("entry should have been present")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Remove error = %v, want %v", err, wantErr)
	}
}
