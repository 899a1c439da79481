package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lectern/backend/internal/llm"
	"lectern/backend/internal/model"
)

// Limits bundles the stream session tunables. The defaults live in the
// config package; tests shrink them to keep runs fast.
type Limits struct {
	// FlushInterval is the longest a buffered fragment waits before
	// being flushed to the client.
	FlushInterval time.Duration
	// FlushSize is the buffered character count that forces a flush.
	FlushSize int
	// IdleTimeout terminates a session that receives no fragment for
	// this long, protecting against a backend that stops sending bytes
	// without closing the connection.
	IdleTimeout time.Duration
	// MaxBytes is the hard cap on bytes delivered by one session.
	MaxBytes int
	// MaxAge force-cancels any session still alive after this long, as
	// a guard against consumers that never detach.
	MaxAge time.Duration
}

// Manager owns every in-flight streaming session, keyed by channel id
// for cancellation lookup. A session is present in the map exactly while
// its stream has not reached a terminal state; entries are removed on
// every terminal transition.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	limits   Limits
	wg       sync.WaitGroup
}

func NewManager(limits Limits) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		limits:   limits,
	}
}

// Open accepts an adapter stream and starts driving it. The channel id
// and events channel are returned synchronously; the caller subscribes
// before any fragment can arrive.
func (m *Manager) Open(ctx context.Context, stream llm.Stream) (string, <-chan model.StreamEvent) {
	id := newChannelID()
	sessionCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:        id,
		manager:   m,
		stream:    stream,
		events:    make(chan model.StreamEvent, 32),
		ctx:       sessionCtx,
		cancel:    cancel,
		lastFlush: time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if m.limits.MaxAge > 0 {
		deadline := time.AfterFunc(m.limits.MaxAge, func() {
			if m.Cancel(id) {
				slog.Warn("Force-cancelled session past max age", "channel_id", id, "max_age", m.limits.MaxAge)
			}
		})
		// The deadline timer must not keep firing machinery alive after
		// a normal terminal transition.
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			<-sessionCtx.Done()
			deadline.Stop()
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run()
	}()

	return id, s.events
}

// Cancel aborts the session registered under id. It reports whether a
// live, not-yet-aborted session was found: calling it twice, or with an
// unknown id, returns false rather than an error.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if s.aborted.Swap(true) {
		return false
	}
	s.cancel()
	return true
}

// Live reports the number of sessions that have not reached a terminal
// state.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown aborts every live session and waits for their loops to exit,
// so no orphaned network request survives process teardown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Cancel(id)
	}
	m.wg.Wait()
	if len(ids) > 0 {
		slog.Info("Cancelled in-flight sessions on shutdown", "count", len(ids))
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// newChannelID builds an opaque correlation token: creation timestamp
// for rough ordering plus a uuid fragment for uniqueness.
func newChannelID() string {
	return fmt.Sprintf("stream-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
