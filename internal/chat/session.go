package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/agent"
	"github.com/daniel-c5656/ai-dvisor/internal/plan"
	"github.com/daniel-c5656/ai-dvisor/internal/remote"
	"github.com/daniel-c5656/ai-dvisor/internal/store"
)

// PlanView bundles everything a rendered plan needs for its lifetime: the
// local mirror, the standing subscription, the agent session, the chat
// orchestrator, and the transcript flusher. Close tears all of it down in
// an order that guarantees no component mutates another after teardown.
type PlanView struct {
	Store        *store.PlanStore
	Channel      *remote.Channel
	Orchestrator *Orchestrator

	flusher     *TranscriptFlusher
	unsubscribe func()
}

// PlanViewConfig configures OpenPlanView.
type PlanViewConfig struct {
	DocServiceURL string
	AgentURL      string
	User          plan.User
	PlanID        string
	FlushDebounce time.Duration
	Logger        *slog.Logger

	// OnGone is invoked when the plan document is deleted remotely while
	// the view is open. The view layer navigates away.
	OnGone func()
}

// OpenPlanView wires and starts a plan view. It returns remote.ErrNotFound
// if the backing document does not exist; the caller should redirect
// instead of retrying.
func OpenPlanView(ctx context.Context, cfg PlanViewConfig) (*PlanView, error) {
	if cfg.FlushDebounce <= 0 {
		cfg.FlushDebounce = 750 * time.Millisecond
	}

	st := store.NewPlanStore()
	channel := remote.NewChannel(cfg.DocServiceURL, st, cfg.Logger)
	if cfg.OnGone != nil {
		channel.OnGone(cfg.OnGone)
	}

	agentClient := agent.NewClient(cfg.AgentURL, nil)
	sessions := agent.NewSessionManager(agentClient, channel, cfg.User, cfg.PlanID, cfg.Logger)
	orch := NewOrchestrator(st, sessions, agentClient, channel, cfg.User, cfg.PlanID, cfg.Logger)

	flusher := NewTranscriptFlusher(channel, cfg.User, cfg.PlanID, cfg.FlushDebounce, cfg.Logger)
	flusher.Attach(st)

	unsubscribe, err := channel.Subscribe(ctx, cfg.User, cfg.PlanID)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &PlanView{
		Store:        st,
		Channel:      channel,
		Orchestrator: orch,
		flusher:      flusher,
		unsubscribe:  unsubscribe,
	}, nil
}

// Close tears the view down. Safe against callbacks already in flight.
func (v *PlanView) Close() {
	// Stop remote deliveries first, then discard in-flight agent results,
	// flush the transcript tail, and finally freeze the store.
	v.unsubscribe()
	v.Orchestrator.Close()
	v.flusher.Close()
	v.Store.Close()
}
