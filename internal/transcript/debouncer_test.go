package transcript

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type emitRecorder struct {
	mu       sync.Mutex
	emitted  []string
	received chan struct{}
}

func newEmitRecorder() *emitRecorder {
	return &emitRecorder{received: make(chan struct{}, 16)}
}

func (r *emitRecorder) emit(connectionID, text string) {
	r.mu.Lock()
	r.emitted = append(r.emitted, text)
	r.mu.Unlock()
	r.received <- struct{}{}
}

func (r *emitRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.emitted...)
}

func (r *emitRecorder) waitForEmit(t *testing.T) {
	t.Helper()
	select {
	case <-r.received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emission")
	}
}

func TestDebouncerAccumulatesFragmentsIntoOneUtterance(t *testing.T) {
	rec := newEmitRecorder()
	d := NewDebouncer(30*time.Millisecond, rec.emit, zap.NewNop())

	d.AddFragment("conn-1", "hel")
	d.AddFragment("conn-1", "lo wor")
	d.AddFragment("conn-1", "ld")

	rec.waitForEmit(t)

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 emission, got %d: %v", len(got), got)
	}
	if got[0] != "hello world" {
		t.Errorf("emitted %q, want %q", got[0], "hello world")
	}
}

func TestDebouncerDoesNotRepeatIdenticalUtterance(t *testing.T) {
	rec := newEmitRecorder()
	d := NewDebouncer(20*time.Millisecond, rec.emit, zap.NewNop())

	d.AddFragment("conn-1", "hello")
	rec.waitForEmit(t)

	d.AddFragment("conn-1", "hello")
	time.Sleep(80 * time.Millisecond)

	if got := rec.all(); len(got) != 1 {
		t.Errorf("expected 1 emission, got %d: %v", len(got), got)
	}
}

func TestDebouncerEmitsAgainWhenTextDiffers(t *testing.T) {
	rec := newEmitRecorder()
	d := NewDebouncer(20*time.Millisecond, rec.emit, zap.NewNop())

	d.AddFragment("conn-1", "hello")
	rec.waitForEmit(t)

	d.AddFragment("conn-1", "goodbye")
	rec.waitForEmit(t)

	got := rec.all()
	if len(got) != 2 || got[1] != "goodbye" {
		t.Errorf("unexpected emissions: %v", got)
	}
}

func TestDebouncerClearCancelsPendingTimer(t *testing.T) {
	rec := newEmitRecorder()
	d := NewDebouncer(30*time.Millisecond, rec.emit, zap.NewNop())

	d.AddFragment("conn-1", "never emitted")
	d.Clear("conn-1")

	time.Sleep(100 * time.Millisecond)

	if got := rec.all(); len(got) != 0 {
		t.Errorf("expected no emissions after Clear, got %v", got)
	}
	if d.Pending("conn-1") {
		t.Error("expected no pending state after Clear")
	}
}

func TestDebouncerIsolatesConnections(t *testing.T) {
	rec := newEmitRecorder()
	d := NewDebouncer(20*time.Millisecond, rec.emit, zap.NewNop())

	d.AddFragment("conn-1", "one")
	d.AddFragment("conn-2", "two")

	rec.waitForEmit(t)
	rec.waitForEmit(t)

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 emissions, got %v", got)
	}
}

func TestDebouncerIgnoresEmptyFragments(t *testing.T) {
	rec := newEmitRecorder()
	d := NewDebouncer(20*time.Millisecond, rec.emit, zap.NewNop())

	d.AddFragment("conn-1", "<noise>")
	d.AddFragment("conn-1", "   ")

	time.Sleep(80 * time.Millisecond)

	if got := rec.all(); len(got) != 0 {
		t.Errorf("expected no emissions, got %v", got)
	}
}
