package blob

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("\x89PNG fake image bytes")

	id, err := store.Put(ctx, payload, PutOptions{Filename: "meter.png", ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Failed to put blob: %v", err)
	}
	if id == "" {
		t.Fatal("Expected non-empty blob id")
	}

	obj, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get blob: %v", err)
	}
	if !bytes.Equal(obj.Data, payload) {
		t.Errorf("Expected payload %q, got %q", payload, obj.Data)
	}
	if obj.Filename != "meter.png" || obj.ContentType != "image/png" {
		t.Errorf("Unexpected metadata: filename=%q content_type=%q", obj.Filename, obj.ContentType)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Failed to delete blob: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Errorf("Expected deleting an absent blob to succeed, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	exerciseStore(t, store)
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d objects", store.Len())
	}
}

func TestMemoryStore_DefaultContentType(t *testing.T) {
	store := NewMemory()
	id, _ := store.Put(context.Background(), []byte{1}, PutOptions{})
	obj, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get blob: %v", err)
	}
	if obj.ContentType != defaultContentType {
		t.Errorf("Expected %s, got %s", defaultContentType, obj.ContentType)
	}
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	store := NewSQLite(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}
	exerciseStore(t, store)
}
