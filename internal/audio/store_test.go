package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fluentvoice/server/adapters/memory"
)

func newTestStore() *Store {
	return NewStore(memory.NewStore(), time.Minute, zap.NewNop())
}

func TestAppendChunkUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if _, err := s.Create(ctx, "conn-1", "sess-1", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	session, err := s.AppendChunk(ctx, "conn-1", 0, []byte("0123456789"))
	if err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if session.TotalChunksReceived != 1 || session.TotalBytes != 10 {
		t.Errorf("counters = (%d, %d), want (1, 10)",
			session.TotalChunksReceived, session.TotalBytes)
	}

	session, err = s.AppendChunk(ctx, "conn-1", 1, []byte("0123456789"))
	if err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if session.TotalChunksReceived != 2 || session.TotalBytes != 20 {
		t.Errorf("counters = (%d, %d), want (2, 20)",
			session.TotalChunksReceived, session.TotalBytes)
	}
}

func TestAppendChunkWithoutSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.AppendChunk(ctx, "conn-unknown", 0, []byte("data"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConcatenateOrdersBySequenceIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if _, err := s.Create(ctx, "conn-1", "sess-1", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Deliver out of order, with a two-digit index to catch lexicographic
	// sorting of keys.
	chunks := map[int][]byte{
		10: []byte("dd"),
		0:  []byte("aa"),
		2:  []byte("cc"),
		1:  []byte("bb"),
	}
	for _, idx := range []int{10, 0, 2, 1} {
		if _, err := s.AppendChunk(ctx, "conn-1", idx, chunks[idx]); err != nil {
			t.Fatalf("AppendChunk(%d): %v", idx, err)
		}
	}

	buf, err := s.Concatenate(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	if string(buf) != "aabbccdd" {
		t.Errorf("Concatenate = %q, want %q", buf, "aabbccdd")
	}

	session, err := s.Get(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !session.IsComplete {
		t.Error("session should be marked complete after concatenation")
	}
}

func TestConcatenateSkipsUnparseableChunkKeys(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	s := NewStore(mem, time.Minute, zap.NewNop())

	if _, err := s.Create(ctx, "conn-1", "sess-1", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.AppendChunk(ctx, "conn-1", 0, []byte("aa")); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if _, err := s.AppendChunk(ctx, "conn-1", 1, []byte("bb")); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}

	// A key whose trailing segment is not a sequence index has no defined
	// position and must not corrupt the ordering.
	if err := mem.Set(ctx, "audio:chunks:conn-1:garbage", []byte("zz"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	buf, err := s.Concatenate(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	if string(buf) != "aabb" {
		t.Errorf("Concatenate = %q, want %q", buf, "aabb")
	}
}

func TestConcatenateWithoutChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if _, err := s.Create(ctx, "conn-1", "sess-1", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := s.Concatenate(ctx, "conn-1")
	if !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks, got %v", err)
	}
}

func TestCreateDiscardsStaleChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if _, err := s.Create(ctx, "conn-1", "sess-1", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.AppendChunk(ctx, "conn-1", 0, []byte("stale")); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}

	if _, err := s.Create(ctx, "conn-1", "sess-2", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Concatenate(ctx, "conn-1"); !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks after recreate, got %v", err)
	}
}

func TestGetMissingSessionReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	session, err := s.Get(ctx, "conn-unknown")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil session, got %+v", session)
	}
}

func TestClearRemovesSessionAndChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if _, err := s.Create(ctx, "conn-1", "sess-1", "conv-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.AppendChunk(ctx, "conn-1", 0, []byte("data")); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}

	if err := s.Clear(ctx, "conn-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	session, err := s.Get(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session != nil {
		t.Error("session should be gone after Clear")
	}
	if _, err := s.Concatenate(ctx, "conn-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
