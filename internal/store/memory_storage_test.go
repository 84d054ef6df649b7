package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

type cachedValue struct {
	AccountID uint   `json:"accountId"`
	Note      string `json:"note"`
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	storage := NewMemoryStorage()
	cache := New[cachedValue](storage, "test:")

	want := cachedValue{AccountID: 42, Note: "hello"}
	if err := cache.Set(context.Background(), "k1", want, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := cache.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	// values are copies, not shared memory
	got.Note = "mutated"
	again, _ := cache.Get(context.Background(), "k1")
	if again.Note != "hello" {
		t.Fatal("stored value was mutated through a returned copy")
	}
}

func TestMemoryStoragePrefixIsolation(t *testing.T) {
	storage := NewMemoryStorage()
	first := New[cachedValue](storage, "a:")
	second := New[cachedValue](storage, "b:")

	if err := first.Set(context.Background(), "k", cachedValue{AccountID: 1}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := second.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected prefix isolation, got %v", err)
	}
}

func TestMemoryStorageExpiry(t *testing.T) {
	storage := NewMemoryStorage()
	if err := storage.Set(context.Background(), "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	var val string
	if err := storage.Get(context.Background(), "k", &val); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStorageSaveHasNoExpiry(t *testing.T) {
	storage := NewMemoryStorage()
	if err := storage.Save(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	var val string
	if err := storage.Get(context.Background(), "k", &val); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "v" {
		t.Fatalf("got %q, want %q", val, "v")
	}
}

// Delete doubles as the atomic consume for single-use tokens: exactly one
// caller observes success for a given key.
func TestMemoryStorageDeleteIsSingleUse(t *testing.T) {
	storage := NewMemoryStorage()
	if err := storage.Set(context.Background(), "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := storage.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := storage.Delete(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replayed delete, got %v", err)
	}
	if err := storage.Delete(context.Background(), "never-stored"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestMemoryStorageExpire(t *testing.T) {
	storage := NewMemoryStorage()
	if err := storage.Save(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := storage.Expire(context.Background(), "k", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	var val string
	if err := storage.Get(context.Background(), "k", &val); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiring, got %v", err)
	}
}
