package api

import (
	"log/slog"
	"sync"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// StatusPlanGone is the websocket close code sent when the watched plan
// document does not exist or has been deleted.
const StatusPlanGone = 4404

// frameBuffer is how many committed snapshots a watcher may fall behind
// before it is disconnected. Dropping the watcher preserves the ordered
// delivery guarantee; skipping frames would not.
const frameBuffer = 64

// Frame is one watch notification: the full document as committed, plus
// its revision. Gone marks the document as deleted.
type Frame struct {
	Snapshot plan.Snapshot
	Rev      int64
	Gone     bool
}

// Watcher receives committed document frames for one plan, in revision
// order.
type Watcher struct {
	Frames chan Frame

	hub  *WatchHub
	key  string
	done chan struct{}
	once sync.Once
}

// Done is closed when the watcher has been unregistered, including the
// slow-consumer case where the hub drops it.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close unregisters the watcher. Safe to call more than once.
func (w *Watcher) Close() {
	w.once.Do(func() {
		w.hub.remove(w.key, w)
		close(w.done)
	})
}

// WatchHub fans committed plan documents out to websocket subscribers and
// serializes mutations per plan so frames always leave in revision order.
type WatchHub struct {
	mu       sync.Mutex
	watchers map[string][]*Watcher
	planLock map[string]*sync.Mutex
}

// NewWatchHub creates an empty hub.
func NewWatchHub() *WatchHub {
	return &WatchHub{
		watchers: make(map[string][]*Watcher),
		planLock: make(map[string]*sync.Mutex),
	}
}

func watchKey(userID, planID string) string {
	return userID + ":" + planID
}

// LockPlan acquires the per-plan mutation lock and returns the unlock
// function. Holding it across commit-then-publish is what guarantees
// revision-ordered frames.
func (h *WatchHub) LockPlan(userID, planID string) func() {
	key := watchKey(userID, planID)
	h.mu.Lock()
	lock, ok := h.planLock[key]
	if !ok {
		lock = &sync.Mutex{}
		h.planLock[key] = lock
	}
	h.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Watch registers a new watcher for a plan. The caller must Close it.
func (h *WatchHub) Watch(userID, planID string) *Watcher {
	key := watchKey(userID, planID)
	w := &Watcher{
		Frames: make(chan Frame, frameBuffer),
		hub:    h,
		key:    key,
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.watchers[key] = append(h.watchers[key], w)
	h.mu.Unlock()
	return w
}

func (h *WatchHub) remove(key string, target *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.watchers[key]
	for i, w := range list {
		if w == target {
			h.watchers[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.watchers[key]) == 0 {
		delete(h.watchers, key)
	}
}

// Publish delivers a committed document to every watcher of the plan. A
// watcher whose buffer is full is dropped rather than reordered.
func (h *WatchHub) Publish(userID, planID string, snap plan.Snapshot, rev int64) {
	h.publish(userID, planID, Frame{Snapshot: snap, Rev: rev})
}

// PublishGone tells every watcher the plan document no longer exists.
func (h *WatchHub) PublishGone(userID, planID string) {
	h.publish(userID, planID, Frame{Gone: true})
}

func (h *WatchHub) publish(userID, planID string, frame Frame) {
	key := watchKey(userID, planID)
	h.mu.Lock()
	list := make([]*Watcher, len(h.watchers[key]))
	copy(list, h.watchers[key])
	h.mu.Unlock()

	for _, w := range list {
		select {
		case w.Frames <- frame:
		default:
			slog.Warn("dropping slow plan watcher", "key", key, "rev", frame.Rev)
			w.Close()
		}
	}
}
