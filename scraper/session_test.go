package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/use-agent/shopscrape/browser"
)

func newTestSessions(l browser.Launcher, reuse bool) *SessionManager {
	return NewSessionManager(l, reuse, browser.Options{NoSandbox: true}, nil, testPacer(newFakeClock()), discardLogger(), nil)
}

func TestSessionManager_ReuseMatchingSession(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestSessions(l, true)
	ctx := context.Background()

	first, reused, err := m.Acquire(ctx, "", true)
	if err != nil || reused {
		t.Fatalf("first Acquire = %v, %v", reused, err)
	}
	m.Release(true)

	second, reused, err := m.Acquire(ctx, "", true)
	if err != nil || !reused {
		t.Fatalf("second Acquire = %v, %v", reused, err)
	}
	if first != second || len(l.launches) != 1 {
		t.Errorf("expected the same session, launches = %d", len(l.launches))
	}
}

func TestSessionManager_DeadSessionRelaunched(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestSessions(l, true)
	ctx := context.Background()

	if _, _, err := m.Acquire(ctx, "", true); err != nil {
		t.Fatal(err)
	}
	m.Release(true)
	l.sessions[0].pingErr = errors.New("websocket closed")

	s, reused, err := m.Acquire(ctx, "", true)
	if err != nil {
		t.Fatalf("dead session must not surface an error, got %v", err)
	}
	if reused {
		t.Error("dead session reported as reused")
	}
	if len(l.launches) != 2 || s != l.sessions[1] {
		t.Errorf("expected a fresh launch, launches = %d", len(l.launches))
	}
	if !l.sessions[0].closed {
		t.Error("stale session should be closed")
	}
}

func TestSessionManager_FingerprintMismatch(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestSessions(l, true)
	ctx := context.Background()

	_, _, _ = m.Acquire(ctx, "", true)
	m.Release(true)
	_, reused, _ := m.Acquire(ctx, "http://proxy:8080", true)
	if reused {
		t.Error("proxy change must not reuse the session")
	}
	if !l.sessions[0].closed || len(l.launches) != 2 {
		t.Errorf("expected old session closed and a new launch")
	}
	if l.launches[1].Proxy != "http://proxy:8080" || !l.launches[1].NoSandbox {
		t.Errorf("launch options = %+v", l.launches[1])
	}

	m.Release(true)
	_, reused, _ = m.Acquire(ctx, "http://proxy:8080", false)
	if reused || len(l.launches) != 3 {
		t.Error("headless change must not reuse the session")
	}
}

func TestSessionManager_NoReuse(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestSessions(l, false)
	ctx := context.Background()

	for range 3 {
		if _, reused, err := m.Acquire(ctx, "", true); err != nil || reused {
			t.Fatalf("Acquire = %v, %v", reused, err)
		}
		m.Release(true)
	}
	if len(l.launches) != 3 {
		t.Errorf("launches = %d, want 3", len(l.launches))
	}
	for i, s := range l.sessions {
		if !s.closed {
			t.Errorf("session %d left open", i)
		}
	}
}

func TestSessionManager_ReleaseAndClose(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestSessions(l, true)
	ctx := context.Background()

	_, _, _ = m.Acquire(ctx, "", true)
	m.Release(false)
	if !l.sessions[0].closed || m.Current() != nil {
		t.Error("Release(false) should tear the session down")
	}

	_, _, _ = m.Acquire(ctx, "", true)
	m.Close()
	m.Close()
	if !l.sessions[1].closed {
		t.Error("Close should tear the session down")
	}
}

func TestSessionManager_UserAgentFromPool(t *testing.T) {
	l := &fakeLauncher{}
	pool := []string{"ua-a", "ua-b"}
	m := NewSessionManager(l, false, browser.Options{}, pool, testPacer(newFakeClock()), discardLogger(), nil)

	for range 5 {
		_, _, _ = m.Acquire(context.Background(), "", true)
	}
	for _, o := range l.launches {
		if o.UserAgent != "ua-a" && o.UserAgent != "ua-b" {
			t.Errorf("user agent %q not from pool", o.UserAgent)
		}
	}
}

func TestSessionManager_LaunchError(t *testing.T) {
	l := &fakeLauncher{err: errLaunch}
	m := newTestSessions(l, true)
	if _, _, err := m.Acquire(context.Background(), "", true); !errors.Is(err, errLaunch) {
		t.Fatalf("err = %v, want %v", err, errLaunch)
	}
	if m.Current() != nil {
		t.Error("failed launch must not leave a current session")
	}
}
