package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	app_errors "lectern/backend/internal/errors"
	"lectern/backend/internal/llm"
	"lectern/backend/internal/model"
)

// Session drives one in-flight completion from acceptance to a terminal
// state. Fragments pulled from the adapter stream are buffered and
// flushed to the events channel when either the buffered character count
// or the elapsed time since the last flush crosses its threshold. This
// bounds both event latency and event frequency.
//
// Terminal states: completed, cancelled, errored (adapter failure or
// inactivity timeout) and capped (hard byte limit). Every terminal
// transition removes the session from the manager's map and closes the
// events channel.
type Session struct {
	id      string
	manager *Manager
	stream  llm.Stream
	events  chan model.StreamEvent

	ctx    context.Context
	cancel context.CancelFunc

	// aborted distinguishes user cancellation (silent) from every other
	// ctx cancellation. Swapped exactly once; the swap result makes
	// Cancel idempotent.
	aborted atomic.Bool

	buffer       strings.Builder
	lastFlush    time.Time
	totalEmitted int
}

type pullResult struct {
	fragment string
	err      error
}

// run is the session's event loop. One puller goroutine feeds fragments;
// run multiplexes them against the inactivity timer and cancellation.
func (s *Session) run() {
	defer func() {
		_ = s.stream.Close()
		s.cancel()
		s.manager.remove(s.id)
		close(s.events)
	}()

	pulls := make(chan pullResult, 1)
	go s.pullLoop(pulls)

	idle := time.NewTimer(s.manager.limits.IdleTimeout)
	defer idle.Stop()

	// A sub-threshold buffer must not wait for the next fragment; the
	// ticker bounds its latency to the flush interval.
	flushTick := time.NewTicker(s.manager.limits.FlushInterval)
	defer flushTick.Stop()

	for {
		select {
		case res := <-pulls:
			if s.aborted.Load() {
				// Cancellation is "stop now": buffered content is discarded
				// and no further event of any kind is emitted.
				return
			}
			if res.err != nil {
				if errors.Is(res.err, context.Canceled) {
					// Parent context cancelled: the client went away. Same
					// silence as an explicit cancel.
					return
				}
				s.finish(res.err)
				return
			}
			if !s.accumulate(res.fragment) {
				return
			}
			// The timer only counts silence between fragments.
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.manager.limits.IdleTimeout)

		case <-flushTick.C:
			if s.aborted.Load() {
				return
			}
			if time.Since(s.lastFlush) >= s.manager.limits.FlushInterval {
				s.flush()
			}

		case <-idle.C:
			s.cancel()
			s.flush()
			s.emit(model.StreamEvent{Type: model.EventError, Error: app_errors.ErrStreamTimeout.Error()})
			slog.Warn("Stream session timed out", "channel_id", s.id, "idle_timeout", s.manager.limits.IdleTimeout)
			return

		case <-s.ctx.Done():
			if s.aborted.Load() || errors.Is(s.ctx.Err(), context.Canceled) {
				// Explicit cancel or client disconnect: silent either way.
				// Only a deadline on the parent context is worth reporting.
				return
			}
			s.finish(s.ctx.Err())
			return
		}
	}
}

// pullLoop pulls fragments from the adapter until a terminal error. It
// never outlives the session context.
func (s *Session) pullLoop(pulls chan<- pullResult) {
	for {
		fragment, err := s.stream.Next(s.ctx)
		select {
		case pulls <- pullResult{fragment: fragment, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// accumulate appends one fragment, enforcing the byte cap and the flush
// thresholds. Returns false when the session terminated (capped).
func (s *Session) accumulate(fragment string) bool {
	if fragment == "" {
		return true
	}
	s.buffer.WriteString(fragment)

	if s.totalEmitted+s.buffer.Len() > s.manager.limits.MaxBytes {
		// Deliver what is buffered (at most cap + one fragment), then
		// terminate with an error distinct from adapter failures so the
		// client can explain the truncation.
		s.flush()
		s.emit(model.StreamEvent{Type: model.EventError, Error: app_errors.ErrStreamCapped.Error()})
		slog.Warn("Stream session exceeded size cap", "channel_id", s.id, "max_bytes", s.manager.limits.MaxBytes)
		return false
	}

	if s.buffer.Len() >= s.manager.limits.FlushSize || time.Since(s.lastFlush) >= s.manager.limits.FlushInterval {
		s.flush()
	}
	return true
}

// finish handles normal exhaustion and adapter errors: flush whatever is
// buffered once, then the terminal event.
func (s *Session) finish(err error) {
	s.flush()
	if errors.Is(err, io.EOF) {
		s.emit(model.StreamEvent{Type: model.EventDone})
		return
	}
	s.emit(model.StreamEvent{Type: model.EventError, Error: err.Error()})
}

func (s *Session) flush() {
	if s.buffer.Len() == 0 {
		return
	}
	data := s.buffer.String()
	s.buffer.Reset()
	s.lastFlush = time.Now()
	if s.emit(model.StreamEvent{Type: model.EventChunk, Data: data}) {
		s.totalEmitted += len(data)
	}
}

// emit delivers one event unless the session is being torn down. The
// buffered attempt comes first so terminal events still go out after the
// session context has been cancelled (timeout path).
func (s *Session) emit(ev model.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}
