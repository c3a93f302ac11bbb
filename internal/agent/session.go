package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// SessionState is the lifecycle state of the agent session bound to a plan.
type SessionState int

const (
	// StateUnbound means no session is bound to the plan.
	StateUnbound SessionState = iota
	// StateBinding means a create request is in flight.
	StateBinding
	// StateBound means a live session id is held and reused for every
	// message of the current episode.
	StateBound
	// StateInvalidating means a previously bound session is being retired
	// before a new one is created.
	StateInvalidating
)

func (s SessionState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateInvalidating:
		return "invalidating"
	default:
		return "unknown"
	}
}

// DocumentWriter persists fields of the plan's remote document. The sync
// channel satisfies it.
type DocumentWriter interface {
	Write(ctx context.Context, user plan.User, planID string, upd plan.Update) error
}

// SessionManager owns the lifecycle of the remote agent session bound to
// one plan. At most one live session id is bound to the plan at any time;
// a session is created once per chat episode and reused for every message
// in it. The creation endpoint does not upsert, so a stale session must be
// deleted before a new one is created.
type SessionManager struct {
	client *Client
	docs   DocumentWriter
	user   plan.User
	planID string
	logger *slog.Logger

	mu        sync.Mutex
	state     SessionState
	sessionID string
}

// NewSessionManager creates a manager for one plan.
func NewSessionManager(client *Client, docs DocumentWriter, user plan.User, planID string, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		client: client,
		docs:   docs,
		user:   user,
		planID: planID,
		logger: logger,
	}
}

// State returns the current lifecycle state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ensure returns a live session id for the plan, binding one if needed.
//
// newEpisode is true when the local transcript was empty at send time: the
// first message of a new episode always invalidates and replaces any prior
// session, so server-side context cannot leak across episodes.
// remoteSessionID is the session id currently on the remote document, or
// empty. Resuming a non-empty episode with no bound state adopts that id
// without any network call.
//
// On create failure the manager returns to Unbound and reports
// ErrAgentUnavailable; the caller surfaces the fallback message and aborts
// the send.
func (m *SessionManager) Ensure(ctx context.Context, newEpisode bool, remoteSessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !newEpisode {
		if m.state == StateBound {
			return m.sessionID, nil
		}
		if remoteSessionID != "" {
			// Mid-episode resume (for example, a reloaded view): the remote
			// document still holds the episode's session.
			m.state = StateBound
			m.sessionID = remoteSessionID
			return m.sessionID, nil
		}
	}

	// Work out which stale session must be retired before creating.
	stale := remoteSessionID
	if m.state == StateBound {
		m.state = StateInvalidating
		if stale == "" {
			stale = m.sessionID
		}
		m.sessionID = ""
	}

	m.state = StateBinding
	if stale != "" {
		if err := m.client.DeleteSession(ctx, m.user, m.planID, stale); err != nil {
			// Best effort: a stale remote session is acceptable garbage.
			m.logger.Warn("failed to delete stale agent session",
				"plan_id", m.planID, "session_id", stale, "error", err)
		}
	}

	sessionID, err := m.client.CreateSession(ctx, m.user, m.planID)
	if err != nil {
		m.state = StateUnbound
		return "", err
	}

	m.state = StateBound
	m.sessionID = sessionID

	if err := m.docs.Write(ctx, m.user, m.planID, plan.Update{SessionID: &sessionID}); err != nil {
		// Non-fatal: the binding is live; the next successful write or the
		// next episode's self-heal restores the persisted id.
		m.logger.Warn("failed to persist session id",
			"plan_id", m.planID, "session_id", sessionID, "error", err)
	}

	m.logger.Info("agent session bound", "plan_id", m.planID, "session_id", sessionID)
	return sessionID, nil
}
