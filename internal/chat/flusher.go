package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/agent"
	"github.com/daniel-c5656/ai-dvisor/internal/plan"
	"github.com/daniel-c5656/ai-dvisor/internal/store"
)

// defaultFlushTimeout bounds one transcript write.
const defaultFlushTimeout = 10 * time.Second

// TranscriptFlusher persists the transcript to the remote document with a
// trailing-edge debounce: every local transcript mutation restarts the
// timer and only the latest transcript is written. It observes the store
// rather than being called by the orchestrator, so persistence stays
// decoupled from send logic. An emptied transcript is never written here;
// Reset removes the field through its own explicit clear.
type TranscriptFlusher struct {
	docs     agent.DocumentWriter
	user     plan.User
	planID   string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []plan.Message
	timer   *time.Timer
	closed  bool
}

// NewTranscriptFlusher creates a flusher writing through docs.
func NewTranscriptFlusher(docs agent.DocumentWriter, user plan.User, planID string, debounce time.Duration, logger *slog.Logger) *TranscriptFlusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptFlusher{
		docs:     docs,
		user:     user,
		planID:   planID,
		debounce: debounce,
		logger:   logger,
	}
}

// Attach subscribes the flusher to a store's transcript mutations.
func (f *TranscriptFlusher) Attach(st *store.PlanStore) {
	st.OnTranscript(f.observe)
}

func (f *TranscriptFlusher) observe(transcript []plan.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if len(transcript) == 0 {
		// Reset path: drop any pending flush instead of writing an empty
		// list over the cleared field.
		f.pending = nil
		if f.timer != nil {
			f.timer.Stop()
			f.timer = nil
		}
		return
	}
	f.pending = transcript
	if f.timer == nil {
		f.timer = time.AfterFunc(f.debounce, f.flush)
	} else {
		f.timer.Reset(f.debounce)
	}
}

func (f *TranscriptFlusher) flush() {
	f.mu.Lock()
	transcript := f.pending
	f.pending = nil
	f.timer = nil
	closed := f.closed
	f.mu.Unlock()

	if closed || transcript == nil {
		return
	}
	f.write(transcript)
}

func (f *TranscriptFlusher) write(transcript []plan.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
	defer cancel()

	if err := f.docs.Write(ctx, f.user, f.planID, plan.Update{Chat: &transcript}); err != nil {
		// No retry: eventual consistency rides on the next mutation's flush.
		f.logger.Warn("transcript flush failed", "plan_id", f.planID, "error", err)
	}
}

// Close stops the debounce timer and performs one final synchronous flush
// of anything still pending, so navigating away does not lose the tail of
// the conversation.
func (f *TranscriptFlusher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	transcript := f.pending
	f.pending = nil
	f.mu.Unlock()

	if transcript != nil {
		f.write(transcript)
	}
}
