package channel

import (
	"sync/atomic"
	"time"
)

// Stats are per-channel delivery counters.
//
// queued is written by producers (Put); every other field is written only by
// the channel worker. Readers never block the worker.
type Stats struct {
	queued       atomic.Int64
	sended       atomic.Int64
	errors       atomic.Int64
	lastError    atomic.Pointer[string]
	lastSendedAt atomic.Int64 // unix seconds, 0 = never
	lastErrorAt  atomic.Int64
}

// StatsSnapshot is a point-in-time copy; unset fields are omitted from JSON.
type StatsSnapshot struct {
	Queued       int64  `json:"queued"`
	Sended       int64  `json:"sended"`
	Errors       int64  `json:"errors"`
	LastError    string `json:"last_error,omitempty"`
	LastSendedAt int64  `json:"last_sended_at,omitempty"`
	LastErrorAt  int64  `json:"last_error_at,omitempty"`
}

func (s *Stats) recordQueued()   { s.queued.Add(1) }
func (s *Stats) unrecordQueued() { s.queued.Add(-1) }

func (s *Stats) recordSent(at time.Time) {
	s.lastSendedAt.Store(at.Unix())
	s.sended.Add(1)
}

func (s *Stats) recordError(at time.Time, detail string) {
	s.lastError.Store(&detail)
	s.lastErrorAt.Store(at.Unix())
	s.errors.Add(1)
}

// Snapshot loads the worker counters before queued so a concurrent read never
// shows more outcomes than queued messages.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Sended:       s.sended.Load(),
		Errors:       s.errors.Load(),
		LastSendedAt: s.lastSendedAt.Load(),
		LastErrorAt:  s.lastErrorAt.Load(),
	}
	snap.Queued = s.queued.Load()
	if p := s.lastError.Load(); p != nil {
		snap.LastError = *p
	}
	return snap
}
