// Package chat coordinates user input, the agent session lifecycle, and
// transcript persistence for one plan view.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/daniel-c5656/ai-dvisor/internal/agent"
	"github.com/daniel-c5656/ai-dvisor/internal/plan"
	"github.com/daniel-c5656/ai-dvisor/internal/store"
)

var (
	// ErrBusy is returned while a previous send is still in flight. The
	// design does not support concurrent asks per plan; the view disables
	// input while Typing() is true, and this guard backs that up.
	ErrBusy = errors.New("a send is already in flight")
	// ErrClosed is returned after the orchestrator has been torn down.
	ErrClosed = errors.New("orchestrator is closed")
)

// fallbackReply is appended to the transcript whenever the agent cannot be
// reached or answers with an error status.
const fallbackReply = "Sorry, the agent is down right now. Please try again in a bit."

// SessionEnsurer yields a live agent session id for the plan.
type SessionEnsurer interface {
	Ensure(ctx context.Context, newEpisode bool, remoteSessionID string) (string, error)
}

// Asker sends one utterance to a bound agent session.
type Asker interface {
	Ask(ctx context.Context, user plan.User, sessionID, message string) (string, error)
}

// Orchestrator is the top-level coordinator for one plan's chat. Agent and
// network failures never escape Send; the worst user-visible outcome is a
// fallback message in the transcript. Transcript persistence is not called
// from here at all: the flusher observes the store, which keeps send logic
// and persistence decoupled.
type Orchestrator struct {
	store    *store.PlanStore
	sessions SessionEnsurer
	agent    Asker
	docs     agent.DocumentWriter
	user     plan.User
	planID   string
	logger   *slog.Logger

	mu     sync.Mutex
	typing bool
	closed bool
}

// NewOrchestrator wires the chat coordinator for one plan.
func NewOrchestrator(st *store.PlanStore, sessions SessionEnsurer, asker Asker, docs agent.DocumentWriter, user plan.User, planID string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		sessions: sessions,
		agent:    asker,
		docs:     docs,
		user:     user,
		planID:   planID,
		logger:   logger,
	}
}

// Typing reports whether an agent reply is pending. The view renders a
// typing indicator and disables input while it is true.
func (o *Orchestrator) Typing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.typing
}

// Send processes one user utterance. Text that trims to empty is a no-op.
// The user message is appended optimistically before any network traffic
// so the user gets instant feedback and the transcript an immutable
// ordering anchor.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.typing {
		o.mu.Unlock()
		return ErrBusy
	}
	o.typing = true
	o.mu.Unlock()

	// The typing flag clears on every exit path, including errors.
	defer o.setTyping(false)

	snap := o.store.Snapshot()
	newEpisode := len(snap.Chat) == 0

	if _, ok := o.store.AppendMessage(text, plan.SenderUser); !ok {
		return ErrClosed
	}

	sessionID, err := o.sessions.Ensure(ctx, newEpisode, snap.SessionID)
	if err != nil {
		o.logger.Warn("failed to bind agent session", "plan_id", o.planID, "error", err)
		o.appendFallback()
		return nil
	}

	reply, err := o.agent.Ask(ctx, o.user, sessionID, text)
	if o.isClosed() {
		// The view is gone; discard the late result.
		return nil
	}
	if err != nil {
		o.logger.Warn("agent ask failed", "plan_id", o.planID, "session_id", sessionID, "error", err)
		o.appendFallback()
		return nil
	}
	if reply != "" {
		o.store.AppendMessage(reply, plan.SenderAgent)
	}
	return nil
}

// Reset clears the chat after user confirmation: the local transcript is
// emptied and the persisted chat_history field is removed entirely, which
// restores the distinguishable "never started" state. Session invalidation
// happens lazily on the next Send. Calling Reset again on an already-empty
// chat changes nothing and performs no network call.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.mu.Unlock()

	snap := o.store.Snapshot()
	if !snap.HasChat && len(snap.Chat) == 0 {
		return nil
	}

	o.store.ClearTranscript()
	if err := o.docs.Write(ctx, o.user, o.planID, plan.Update{ClearChat: true}); err != nil {
		// Non-fatal; the next successful write restores consistency.
		o.logger.Warn("failed to clear persisted transcript", "plan_id", o.planID, "error", err)
	}
	return nil
}

// Close tears the orchestrator down. In-flight ask results arriving after
// Close are discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.typing = false
}

func (o *Orchestrator) setTyping(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.typing = false
		return
	}
	o.typing = v
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) appendFallback() {
	o.store.AppendMessage(fallbackReply, plan.SenderAgent)
}
