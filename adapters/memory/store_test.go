package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fluentvoice/server/domain/repositories"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.Set(ctx, "key", []byte("value"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("Get = %q, want %q", got, "value")
	}

	if err := s.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "key"); !errors.Is(err, repositories.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := NewStore()

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, repositories.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.Set(ctx, "short-lived", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := s.Get(ctx, "short-lived"); !errors.Is(err, repositories.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after TTL, got %v", err)
	}
}

func TestExpireExtendsLifetime(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.Set(ctx, "key", []byte("x"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Expire(ctx, "key", time.Minute); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := s.Get(ctx, "key"); err != nil {
		t.Errorf("key should survive after Expire extension, got %v", err)
	}
}

func TestRightPushAndListRange(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for _, v := range []string{"a", "b", "c"} {
		if err := s.RightPush(ctx, "list", []byte(v), time.Minute); err != nil {
			t.Fatalf("RightPush: %v", err)
		}
	}

	values, err := s.ListRange(ctx, "list")
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(values) != 3 || string(values[0]) != "a" || string(values[2]) != "c" {
		t.Errorf("unexpected list contents: %q", values)
	}

	// A list key is not readable as a plain value.
	if _, err := s.Get(ctx, "list"); !errors.Is(err, repositories.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound for list key via Get, got %v", err)
	}
}

func TestListRangeMissingKey(t *testing.T) {
	s := NewStore()

	values, err := s.ListRange(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected empty range, got %q", values)
	}
}

func TestKeysGlobMatching(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	s.Set(ctx, "audio:chunks:conn-1:0", []byte("x"), 0)
	s.Set(ctx, "audio:chunks:conn-1:1", []byte("x"), 0)
	s.Set(ctx, "audio:chunks:conn-2:0", []byte("x"), 0)
	s.Set(ctx, "audio:session:conn-1", []byte("x"), 0)

	keys, err := s.Keys(ctx, "audio:chunks:conn-1:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 matching keys, got %v", keys)
	}
}
