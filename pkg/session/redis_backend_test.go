package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	backend := NewRedisBackendFromClient(client, "test:", 0)

	t.Cleanup(func() {
		_ = backend.Close()
	})

	return mr, backend
}

func TestRedisBackend_SaveAndLoadHistory(t *testing.T) {
	_, backend := setupMiniredis(t)
	ctx := context.Background()

	msgs := []Message{UserMessage("hi"), AssistantMessage("hello")}
	if err := backend.SaveHistory(ctx, DefaultHistoryKey, msgs); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := backend.LoadHistory(ctx, DefaultHistoryKey)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}
	if loaded[0] != msgs[0] || loaded[1] != msgs[1] {
		t.Errorf("messages mismatch: got %+v, want %+v", loaded, msgs)
	}
}

func TestRedisBackend_LoadMissingKey(t *testing.T) {
	_, backend := setupMiniredis(t)

	loaded, err := backend.LoadHistory(context.Background(), "absent")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", loaded)
	}
}

func TestRedisBackend_SaveOverwrites(t *testing.T) {
	mr, backend := setupMiniredis(t)
	ctx := context.Background()

	_ = backend.SaveHistory(ctx, "k", []Message{UserMessage("one"), AssistantMessage("two")})
	if err := backend.SaveHistory(ctx, "k", []Message{UserMessage("three")}); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, _ := backend.LoadHistory(ctx, "k")
	if len(loaded) != 1 || loaded[0].Content != "three" {
		t.Errorf("expected overwrite, got %+v", loaded)
	}

	raw, err := mr.Get("test:k")
	if err != nil {
		t.Fatalf("raw get failed: %v", err)
	}
	if raw != `[{"role":"user","content":"three"}]` {
		t.Errorf("unexpected stored layout: %s", raw)
	}
}

func TestRedisBackend_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, "ttl:", time.Hour)
	defer func() { _ = backend.Close() }()

	if err := backend.SaveHistory(context.Background(), "k", []Message{UserMessage("x")}); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}
	if ttl := mr.TTL("ttl:k"); ttl != time.Hour {
		t.Errorf("expected TTL 1h, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	loaded, err := backend.LoadHistory(context.Background(), "k")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected expired history, got %+v", loaded)
	}
}

func TestRedisBackend_CorruptValue(t *testing.T) {
	mr, backend := setupMiniredis(t)
	_ = mr.Set("test:bad", "{not json")

	if _, err := backend.LoadHistory(context.Background(), "bad"); err == nil {
		t.Error("expected unmarshal error")
	}
}

func TestRedisBackend_Closed(t *testing.T) {
	_, backend := setupMiniredis(t)
	_ = backend.Close()
	ctx := context.Background()

	if _, err := backend.LoadHistory(ctx, "k"); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("LoadHistory: expected ErrStorageClosed, got %v", err)
	}
	if err := backend.SaveHistory(ctx, "k", nil); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("SaveHistory: expected ErrStorageClosed, got %v", err)
	}
	if err := backend.Ping(ctx); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("Ping: expected ErrStorageClosed, got %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestRedisBackend_Ping(t *testing.T) {
	mr, backend := setupMiniredis(t)

	if err := backend.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if err := backend.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail after server shutdown")
	}
}

func TestNewRedisBackend_RequiresAddr(t *testing.T) {
	if _, err := NewRedisBackend(RedisConfig{}); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestNewRedisBackend_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	backend, err := NewRedisBackend(RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisBackend failed: %v", err)
	}
	defer func() { _ = backend.Close() }()

	if err := backend.SaveHistory(context.Background(), "k", []Message{UserMessage("x")}); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}
	if !mr.Exists(defaultRedisPrefix + "k") {
		t.Error("expected default prefix to be applied")
	}
}
