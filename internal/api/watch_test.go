package api

import (
	"testing"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

func TestPublishDeliversInRevisionOrder(t *testing.T) {
	t.Parallel()
	hub := NewWatchHub()
	w := hub.Watch("user-1", "plan-1")
	defer w.Close()

	for rev := int64(1); rev <= 3; rev++ {
		hub.Publish("user-1", "plan-1", plan.Snapshot{Title: "t"}, rev)
	}
	for want := int64(1); want <= 3; want++ {
		frame := <-w.Frames
		if frame.Rev != want {
			t.Fatalf("frame rev = %d, want %d", frame.Rev, want)
		}
	}
}

func TestPublishIsScopedToPlan(t *testing.T) {
	t.Parallel()
	hub := NewWatchHub()
	mine := hub.Watch("user-1", "plan-1")
	defer mine.Close()
	other := hub.Watch("user-1", "plan-2")
	defer other.Close()

	hub.Publish("user-1", "plan-1", plan.Snapshot{}, 1)

	select {
	case <-mine.Frames:
	default:
		t.Fatal("watcher did not receive its plan's frame")
	}
	select {
	case frame := <-other.Frames:
		t.Fatalf("watcher received another plan's frame: %+v", frame)
	default:
	}
}

func TestSlowWatcherIsDroppedNotReordered(t *testing.T) {
	t.Parallel()
	hub := NewWatchHub()
	w := hub.Watch("user-1", "plan-1")

	// Never drained: overflow the buffer by one.
	for rev := int64(1); rev <= frameBuffer+1; rev++ {
		hub.Publish("user-1", "plan-1", plan.Snapshot{}, rev)
	}

	select {
	case <-w.Done():
	default:
		t.Fatal("overflowed watcher was not dropped")
	}

	// The frames that did arrive are still a gapless prefix.
	var want int64 = 1
	for {
		select {
		case frame := <-w.Frames:
			if frame.Rev != want {
				t.Fatalf("frame rev = %d, want %d", frame.Rev, want)
			}
			want++
			continue
		default:
		}
		break
	}
	if want != frameBuffer+1 {
		t.Errorf("received %d frames, want %d", want-1, frameBuffer)
	}
}

func TestPublishGoneMarksFrame(t *testing.T) {
	t.Parallel()
	hub := NewWatchHub()
	w := hub.Watch("user-1", "plan-1")
	defer w.Close()

	hub.PublishGone("user-1", "plan-1")
	frame := <-w.Frames
	if !frame.Gone {
		t.Error("frame not marked gone")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	hub := NewWatchHub()
	w := hub.Watch("user-1", "plan-1")
	w.Close()
	w.Close()

	// Publishing after close must not panic or block.
	hub.Publish("user-1", "plan-1", plan.Snapshot{}, 1)
}
