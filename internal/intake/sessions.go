package intake

import (
	"log/slog"
	"sync"
	"time"

	"github.com/clinichat/clinichat/internal/models"
	"github.com/clinichat/clinichat/internal/util"
)

// Opts holds configuration options for the session store.
type Opts struct {
	// TTL evicts sessions idle longer than this; zero disables the sweep.
	TTL time.Duration
	// SweepInterval overrides how often the sweep runs (defaults to TTL/4).
	SweepInterval time.Duration
}

// Option defines a configuration option for the session store.
type Option func(*Opts)

// WithTTL enables eviction of sessions idle longer than d.
func WithTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.TTL = d
	}
}

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) {
		o.SweepInterval = d
	}
}

type sessionEntry struct {
	mu      sync.Mutex
	session *models.Session
}

// SessionStore holds in-progress intake sessions for the process lifetime.
// Sessions are not persisted; a restart starts every caller over.
//
// The design assumes at most one in-flight request per session id (the
// browser client awaits each response before sending the next). Acquire
// still serializes same-id requests with a per-session lock so that a
// misbehaving caller cannot race cursor and answer mutations. Cross-session
// access needs no coordination.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionStore creates a session store, starting the idle sweep when a
// TTL is configured.
func NewSessionStore(opts ...Option) *SessionStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	st := &SessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      cfg.TTL,
		stop:     make(chan struct{}),
	}
	if cfg.TTL > 0 {
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = cfg.TTL / 4
		}
		go st.sweep(interval)
		slog.Debug("SessionStore: idle sweep enabled", "ttl", cfg.TTL, "interval", interval)
	}
	return st
}

// Create mints a new session and returns it locked, along with its release
// function. The caller must invoke release when the turn is done.
func (st *SessionStore) Create() (*models.Session, func()) {
	now := time.Now()
	s := &models.Session{
		ID:        util.GenerateSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := &sessionEntry{session: s}
	entry.mu.Lock()

	st.mu.Lock()
	st.sessions[s.ID] = entry
	st.mu.Unlock()

	slog.Debug("SessionStore.Create: session created", "sessionID", s.ID)
	return s, func() {
		s.UpdatedAt = time.Now()
		entry.mu.Unlock()
	}
}

// Acquire returns the session for id locked for exclusive use, with a release
// function, or ok=false when the id is unknown (e.g. already completed).
func (st *SessionStore) Acquire(id string) (*models.Session, func(), bool) {
	st.mu.Lock()
	entry, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	entry.mu.Lock()
	// The entry may have been deleted while we waited for its lock.
	st.mu.Lock()
	current, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok || current != entry {
		entry.mu.Unlock()
		return nil, nil, false
	}
	s := entry.session
	return s, func() {
		s.UpdatedAt = time.Now()
		entry.mu.Unlock()
	}, true
}

// Delete removes a session. After Delete the id is no longer resolvable and
// a later turn reusing it starts a brand-new session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		slog.Debug("SessionStore.Delete: session removed", "sessionID", id)
	}
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Close stops the idle sweep, if running.
func (st *SessionStore) Close() {
	st.stopOnce.Do(func() { close(st.stop) })
}

func (st *SessionStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-st.ttl)
			var expired []string
			st.mu.Lock()
			for id, entry := range st.sessions {
				// UpdatedAt is written under the entry lock; an entry whose
				// lock is held has a turn in flight and is never idle.
				if !entry.mu.TryLock() {
					continue
				}
				idle := entry.session.UpdatedAt.Before(cutoff)
				entry.mu.Unlock()
				if idle {
					delete(st.sessions, id)
					expired = append(expired, id)
				}
			}
			st.mu.Unlock()
			if len(expired) > 0 {
				slog.Info("SessionStore.sweep: expired idle sessions", "count", len(expired))
			}
		}
	}
}
