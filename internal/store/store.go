// Package store holds the authoritative local mirror of one plan's remote
// document.
package store

import (
	"sync"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// PlanStore owns the local snapshot of a single plan. Remote snapshots flow
// in through ApplyRemote in commit order (the sync channel enforces the
// ordering); local optimistic mutations flow in through AppendMessage and
// ClearTranscript. After Close every mutator is a no-op, so a torn-down
// view can never be written to by a late callback.
type PlanStore struct {
	mu     sync.Mutex
	snap   plan.Snapshot
	lastID int64
	closed bool

	changeSubs     []func(plan.Snapshot)
	transcriptSubs []func([]plan.Message)
}

// NewPlanStore creates an empty store for one plan.
func NewPlanStore() *PlanStore {
	return &PlanStore{}
}

// Snapshot returns a copy of the current local snapshot.
func (s *PlanStore) Snapshot() plan.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// TranscriptLen returns the number of messages in the local transcript.
func (s *PlanStore) TranscriptLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snap.Chat)
}

// OnChange registers a callback invoked with the full snapshot after every
// mutation. Callbacks run outside the store lock, in mutation order.
func (s *PlanStore) OnChange(fn func(plan.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeSubs = append(s.changeSubs, fn)
}

// OnTranscript registers a callback invoked with the transcript after every
// local transcript mutation. Remote applies do not fire it; the transcript
// is flushed one way, local to remote.
func (s *PlanStore) OnTranscript(fn func([]plan.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptSubs = append(s.transcriptSubs, fn)
}

// ApplyRemote merges a remote snapshot into the local mirror using
// mergeRemote and reports whether it was applied. A closed store drops the
// snapshot.
func (s *PlanStore) ApplyRemote(remote plan.Snapshot) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.snap = mergeRemote(s.snap, remote)
	if n := len(s.snap.Chat); n > 0 && s.snap.Chat[n-1].ID > s.lastID {
		s.lastID = s.snap.Chat[n-1].ID
	}
	snap := s.snap.Clone()
	subs := s.changeSubs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

// mergeRemote is the single named merge policy between the optimistic local
// snapshot and an incoming remote snapshot. The remote document is the
// source of truth for title, courses, session binding, and metadata. The
// transcript is different: it is flushed one way (local to remote,
// debounced), so a remote snapshot replaces the local transcript only when
// the remote transcript is present and non-empty. A stale empty remote
// snapshot taken before the first flush must not clobber an in-flight
// optimistic append.
func mergeRemote(local, remote plan.Snapshot) plan.Snapshot {
	merged := remote.Clone()
	if !remote.HasChat || len(remote.Chat) == 0 {
		merged.Chat = local.Chat
		merged.HasChat = local.HasChat
	}
	return merged
}

// AppendMessage appends an optimistic local message and returns it. IDs are
// timestamp-derived and strictly increasing; a burst of appends within one
// millisecond still yields unique increasing ids. Returns false if the
// store is closed.
func (s *PlanStore) AppendMessage(text string, sender plan.Sender) (plan.Message, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return plan.Message{}, false
	}
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	msg := plan.Message{ID: id, Text: text, Sender: sender}
	s.snap.Chat = append(s.snap.Chat, msg)
	s.snap.HasChat = true
	s.notifyLocked()
	return msg, true
}

// ClearTranscript drops the local transcript back to the never-started
// state. Returns false if the store is closed.
func (s *PlanStore) ClearTranscript() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.snap.Chat = nil
	s.snap.HasChat = false
	s.notifyLocked()
	return true
}

// notifyLocked snapshots subscriber lists and state, releases the lock, and
// dispatches. Callers must hold s.mu; it is released on return.
func (s *PlanStore) notifyLocked() {
	snap := s.snap.Clone()
	changeSubs := s.changeSubs
	transcriptSubs := s.transcriptSubs
	s.mu.Unlock()

	for _, fn := range changeSubs {
		fn(snap)
	}
	transcript := make([]plan.Message, len(snap.Chat))
	copy(transcript, snap.Chat)
	for _, fn := range transcriptSubs {
		fn(transcript)
	}
}

// Close freezes the store. Subsequent mutations are dropped; this is what
// makes teardown safe against callbacks that were already in flight.
func (s *PlanStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.changeSubs = nil
	s.transcriptSubs = nil
}
