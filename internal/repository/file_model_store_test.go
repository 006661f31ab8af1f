package repository

import (
	"context"
	"errors"
	"testing"

	"TradeSync/internal/domain/models"
)

func TestFileModelStoreRoundTrip(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Load(ctx, "1.0.0"); !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if err := store.Save(ctx, "1.0.0", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, "1.0.0", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := store.Save(ctx, "alt", []byte(`{}`)); err != nil {
		t.Fatalf("Save alt: %v", err)
	}

	blob, err := store.Load(ctx, "1.0.0")
	if err != nil || string(blob) != `{"v":2}` {
		t.Fatalf("unexpected blob %q err=%v", blob, err)
	}
	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "1.0.0" || names[1] != "alt" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestFileModelStoreRejectsPathNames(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	for _, name := range []string{"", "../escape", `a\b`, ".."} {
		if err := store.Save(context.Background(), name, []byte("x")); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}
