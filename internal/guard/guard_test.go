package guard

import (
	"testing"
	"time"
)

func TestTryEnterFirstCaller(t *testing.T) {
	g := New()

	release, wait, alreadyRunning := g.TryEnter("conn-1")
	if alreadyRunning {
		t.Fatal("first caller should not see an in-flight run")
	}
	if release == nil {
		t.Fatal("first caller must receive a release function")
	}
	if wait != nil {
		t.Error("first caller should not receive a wait channel")
	}
	if !g.Running("conn-1") {
		t.Error("pipeline should be marked running")
	}

	release()
	if g.Running("conn-1") {
		t.Error("pipeline should not be running after release")
	}
}

func TestTryEnterCoalescesSecondCaller(t *testing.T) {
	g := New()

	release, _, _ := g.TryEnter("conn-1")

	_, wait, alreadyRunning := g.TryEnter("conn-1")
	if !alreadyRunning {
		t.Fatal("second caller should observe the in-flight run")
	}
	if wait == nil {
		t.Fatal("second caller must receive a wait channel")
	}

	select {
	case <-wait:
		t.Fatal("wait channel closed before release")
	default:
	}

	release()

	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatal("wait channel did not close after release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New()

	release, _, _ := g.TryEnter("conn-1")
	release()
	release() // second call must be a no-op, not a panic or double-close

	if _, _, alreadyRunning := g.TryEnter("conn-1"); alreadyRunning {
		t.Error("connection should be free after release")
	}
}

func TestGuardIsolatesConnections(t *testing.T) {
	g := New()

	release1, _, _ := g.TryEnter("conn-1")
	defer release1()

	_, _, alreadyRunning := g.TryEnter("conn-2")
	if alreadyRunning {
		t.Error("a run on one connection must not block another")
	}
}
