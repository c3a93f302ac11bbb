// Package remote connects the local plan mirror to the plan document
// service: a standing watch subscription pushes committed snapshots into
// the store, and best-effort partial writes flow back.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
	"github.com/daniel-c5656/ai-dvisor/internal/store"
)

// ErrNotFound is returned by Subscribe when the plan document does not
// exist. Callers should navigate away from the plan, not retry.
var ErrNotFound = errors.New("plan document not found")

// statusPlanGone matches the close code the document service sends when
// the watched document is missing or deleted.
const statusPlanGone = 4404

// maxSnapshotBytes bounds a single watch frame.
const maxSnapshotBytes = 1 << 20

// Channel subscribes one PlanStore to its remote plan document and writes
// local changes back. Snapshots are applied strictly in the order the
// service committed them: a single reader goroutine per subscription is
// the ordering guarantee.
type Channel struct {
	baseURL    string
	httpClient *http.Client
	store      *store.PlanStore
	logger     *slog.Logger
	onGone     func()
}

// NewChannel creates a channel for one plan store against the document
// service at baseURL.
func NewChannel(baseURL string, st *store.PlanStore, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      st,
		logger:     logger,
	}
}

// OnGone registers a callback invoked when the document disappears while a
// subscription is live (the plan was deleted remotely). The view layer
// uses it to navigate away.
func (c *Channel) OnGone(fn func()) {
	c.onGone = fn
}

// Subscribe establishes the standing watch for a plan. The first snapshot
// is applied before Subscribe returns; every later committed change is
// applied by a background reader, exactly once per change, in commit
// order. Returns ErrNotFound if the document does not exist. The returned
// cancel function stops the subscription; no callback into the store will
// fire after it returns.
func (c *Channel) Subscribe(ctx context.Context, user plan.User, planID string) (func(), error) {
	q := url.Values{}
	q.Set("user_id", user.ID)
	q.Set("plan_id", planID)
	wsURL := toWebsocketURL(c.baseURL) + "/ws/plan?" + q.Encode()

	subCtx, cancelCtx := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(subCtx, wsURL, nil)
	if err != nil {
		cancelCtx()
		return nil, fmt.Errorf("dial plan watch: %w", err)
	}
	conn.SetReadLimit(maxSnapshotBytes)

	var canceled atomic.Bool
	cancel := func() {
		canceled.Store(true)
		cancelCtx()
		_ = conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	}

	snap, err := c.readSnapshot(subCtx, conn)
	if err != nil {
		cancel()
		if websocket.CloseStatus(err) == statusPlanGone {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read initial snapshot: %w", err)
	}

	healed := c.applySnapshot(subCtx, user, planID, snap, false)

	go c.readLoop(subCtx, conn, user, planID, &canceled, healed)

	return cancel, nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, user plan.User, planID string, canceled *atomic.Bool, healed bool) {
	for {
		snap, err := c.readSnapshot(ctx, conn)
		if err != nil {
			if canceled.Load() || ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == statusPlanGone {
				c.logger.Info("plan document deleted remotely", "plan_id", planID)
				if c.onGone != nil {
					c.onGone()
				}
				return
			}
			c.logger.Warn("plan watch closed", "plan_id", planID, "error", err)
			return
		}
		if canceled.Load() {
			return
		}
		healed = c.applySnapshot(ctx, user, planID, snap, healed)
	}
}

func (c *Channel) readSnapshot(ctx context.Context, conn *websocket.Conn) (plan.Snapshot, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return plan.Snapshot{}, err
	}
	var snap plan.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return plan.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// applySnapshot pushes a decoded snapshot into the store and, the first
// time a snapshot arrives without a courses field, self-heals it to an
// empty list both locally and remotely. The remote side of the heal is
// guarded (initCourses only applies while the field is still absent), so
// it cannot clobber a course list written concurrently. Returns the
// updated healed flag.
func (c *Channel) applySnapshot(ctx context.Context, user plan.User, planID string, snap plan.Snapshot, healed bool) bool {
	needsHeal := !snap.HasCourses
	if needsHeal {
		snap.Courses = []plan.CourseSection{}
		snap.HasCourses = true
	}
	c.store.ApplyRemote(snap)

	if needsHeal && !healed {
		healed = true
		if err := c.Write(ctx, user, planID, plan.Update{InitCourses: true}); err != nil {
			c.logger.Warn("self-heal write failed", "plan_id", planID, "error", err)
		}
	}
	return healed
}

// Write performs one best-effort partial update of the remote document. It
// does not retry; failure is surfaced to the caller.
func (c *Channel) Write(ctx context.Context, user plan.User, planID string, upd plan.Update) error {
	body, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	q := url.Values{}
	q.Set("user_id", user.ID)
	q.Set("plan_id", planID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/plan/update?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("remote write failed: status %d", resp.StatusCode)
	}
	return nil
}

func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
