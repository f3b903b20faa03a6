package payload

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() {
		if err := cache.Close(); err != nil {
			t.Errorf("close cache: %v", err)
		}
	})
	return cache
}

func TestPutAndGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	data := []byte{0x1f, 0x8b, 0x08, 0x00, 0x01, 0x02}
	if err := cache.Put(ctx, "book-1", 1000, "klauspost", data); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.Get(ctx, "book-1", 1000)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if string(got.Data) != string(data) {
		t.Errorf("data = %v, want %v", got.Data, data)
	}
	if got.Backend != "klauspost" {
		t.Errorf("backend = %q, want klauspost", got.Backend)
	}
}

func TestGetMissReturnsNil(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	got, err := cache.Get(ctx, "absent", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}

func TestVersionedKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "book-1", 1000, "stdlib", []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A newer book version misses on the old key.
	got, err := cache.Get(ctx, "book-1", 2000)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss for new version, got %+v", got)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "book-1", 1000, "stdlib", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Delete(ctx, "book-1", 1000); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cache.Delete(ctx, "book-1", 1000); err != nil {
		t.Errorf("second delete: %v", err)
	}

	got, err := cache.Get(ctx, "book-1", 1000)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected miss after delete")
	}
}

func TestDeleteBookRemovesAllVersions(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	for _, ts := range []int64{100, 200, 300} {
		if err := cache.Put(ctx, "book-1", ts, "stdlib", []byte("v")); err != nil {
			t.Fatalf("put %d: %v", ts, err)
		}
	}
	if err := cache.Put(ctx, "book-2", 100, "stdlib", []byte("keep")); err != nil {
		t.Fatalf("put book-2: %v", err)
	}

	if err := cache.DeleteBook(ctx, "book-1"); err != nil {
		t.Fatalf("delete book: %v", err)
	}

	for _, ts := range []int64{100, 200, 300} {
		got, err := cache.Get(ctx, "book-1", ts)
		if err != nil {
			t.Fatalf("get %d: %v", ts, err)
		}
		if got != nil {
			t.Errorf("version %d survived DeleteBook", ts)
		}
	}

	got, err := cache.Get(ctx, "book-2", 100)
	if err != nil {
		t.Fatalf("get book-2: %v", err)
	}
	if got == nil {
		t.Error("book-2 payload should survive")
	}
}

func TestCanceledContext(t *testing.T) {
	cache := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.Put(ctx, "book-1", 1, "stdlib", []byte("x")); err == nil {
		t.Error("expected error from canceled context")
	}
	if _, err := cache.Get(ctx, "book-1", 1); err == nil {
		t.Error("expected error from canceled context")
	}
}
