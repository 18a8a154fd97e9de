package intake

import (
	"testing"
	"time"
)

func TestSessionStore_CreateAcquireDelete(t *testing.T) {
	st := NewSessionStore()
	defer st.Close()

	s, release := st.Create()
	if s.ID == "" {
		t.Fatal("expected generated session id")
	}
	release()

	got, release2, ok := st.Acquire(s.ID)
	if !ok {
		t.Fatal("expected to acquire existing session")
	}
	if got.ID != s.ID {
		t.Errorf("acquired wrong session: %s", got.ID)
	}
	release2()

	st.Delete(s.ID)
	if _, _, ok := st.Acquire(s.ID); ok {
		t.Error("deleted session must not be resolvable")
	}
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d", st.Len())
	}
}

func TestSessionStore_AcquireUnknown(t *testing.T) {
	st := NewSessionStore()
	defer st.Close()

	if _, _, ok := st.Acquire("s_missing"); ok {
		t.Error("unknown id must not resolve")
	}
}

func TestSessionStore_AcquireSerializesSameSession(t *testing.T) {
	st := NewSessionStore()
	defer st.Close()

	s, release := st.Create()

	entered := make(chan struct{})
	go func() {
		_, rel, ok := st.Acquire(s.ID)
		if ok {
			rel()
		}
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("second acquire completed while the session was still held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestSessionStore_TTLSweep(t *testing.T) {
	st := NewSessionStore(WithTTL(30*time.Millisecond), WithSweepInterval(10*time.Millisecond))
	defer st.Close()

	_, release := st.Create()
	release()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.Len() == 0 {
			return // evicted
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("idle session was never evicted")
}

func TestSessionStore_SweepSkipsInFlightSession(t *testing.T) {
	st := NewSessionStore(WithTTL(10*time.Millisecond), WithSweepInterval(5*time.Millisecond))
	defer st.Close()

	_, release := st.Create()
	// Hold the turn well past the TTL; the sweep must not evict it.
	time.Sleep(50 * time.Millisecond)
	if st.Len() != 1 {
		t.Fatal("in-flight session was evicted")
	}
	release()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.Len() == 0 {
			return // evicted once idle
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("released session was never evicted")
}

// Exercises concurrent release and sweep on one session; meaningful under the
// race detector.
func TestSessionStore_SweepConcurrentWithRelease(t *testing.T) {
	st := NewSessionStore(WithTTL(time.Millisecond), WithSweepInterval(time.Millisecond))
	defer st.Close()

	s, release := st.Create()
	release()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, rel, ok := st.Acquire(s.ID)
		if !ok {
			return // swept between turns
		}
		rel()
	}
}

func TestSessionStore_ZeroTTLNeverEvicts(t *testing.T) {
	st := NewSessionStore()
	defer st.Close()

	s, release := st.Create()
	release()
	time.Sleep(50 * time.Millisecond)

	if _, rel, ok := st.Acquire(s.ID); !ok {
		t.Fatal("session evicted despite disabled TTL")
	} else {
		rel()
	}
}
