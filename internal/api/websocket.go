package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/daniel-c5656/ai-dvisor/internal/docstore"
	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// WatchPlan upgrades to a websocket and streams the plan document: the
// current snapshot first, then one frame per committed write, in revision
// order. A missing or deleted document closes the socket with
// StatusPlanGone; a subscriber that saw no snapshot frame before that
// close knows the plan never existed.
func (h *Handler) WatchPlan(w http.ResponseWriter, r *http.Request) {
	userID, planID, ok := planParams(w, r)
	if !ok {
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept watch websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "watch ended"); closeErr != nil {
			h.logger.Debug("failed to close watch websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// CloseRead cancels the returned context when the client disconnects.
	ctx := ws.CloseRead(r.Context())

	// Register before the initial read, under the plan lock, so a write
	// committed between the read and the registration cannot be missed.
	unlock := h.hub.LockPlan(userID, planID)
	watcher := h.hub.Watch(userID, planID)
	snap, rev, err := h.repo.GetPlan(ctx, userID, planID)
	unlock()
	defer watcher.Close()

	if errors.Is(err, docstore.ErrNotFound) {
		_ = ws.Close(StatusPlanGone, "plan does not exist")
		return
	}
	if err != nil {
		h.logger.Error("watch initial read failed", "user_id", userID, "plan_id", planID, "error", err)
		_ = ws.Close(websocket.StatusInternalError, "failed to load plan")
		return
	}

	h.logger.Info("plan watch started", "user_id", userID, "plan_id", planID, "rev", rev)

	if err := writeSnapshot(ctx, ws, snap); err != nil {
		return
	}

	lastRev := rev
	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Done():
			h.logger.Debug("plan watcher dropped", "user_id", userID, "plan_id", planID)
			return
		case frame := <-watcher.Frames:
			if frame.Gone {
				_ = ws.Close(StatusPlanGone, "plan deleted")
				return
			}
			// The initial read may already include revisions that were
			// buffered while holding the plan lock.
			if frame.Rev <= lastRev {
				continue
			}
			lastRev = frame.Rev
			if err := writeSnapshot(ctx, ws, frame.Snapshot); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, ws *websocket.Conn, snap plan.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
