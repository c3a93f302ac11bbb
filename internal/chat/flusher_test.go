package chat

import (
	"testing"
	"time"

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
	"github.com/daniel-c5656/ai-dvisor/internal/store"
)

func chatWrites(w *fakeWriter) []plan.Update {
	var out []plan.Update
	for _, upd := range w.all() {
		if upd.Chat != nil {
			out = append(out, upd)
		}
	}
	return out
}

func TestFlusherCoalescesBurst(t *testing.T) {
	t.Parallel()

	st := store.NewPlanStore()
	writer := &fakeWriter{}
	f := NewTranscriptFlusher(writer, testUser, "plan-1", 40*time.Millisecond, nil)
	f.Attach(st)

	st.AppendMessage("one", plan.SenderUser)
	st.AppendMessage("two", plan.SenderAgent)
	st.AppendMessage("three", plan.SenderUser)

	if got := chatWrites(writer); len(got) != 0 {
		t.Fatalf("flushed before debounce elapsed: %d writes", len(got))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(chatWrites(writer)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	writes := chatWrites(writer)
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want one coalesced flush", len(writes))
	}
	if got := len(*writes[0].Chat); got != 3 {
		t.Errorf("flushed transcript length = %d, want 3", got)
	}
}

func TestFlusherSkipsClearedTranscript(t *testing.T) {
	t.Parallel()

	st := store.NewPlanStore()
	writer := &fakeWriter{}
	f := NewTranscriptFlusher(writer, testUser, "plan-1", 40*time.Millisecond, nil)
	f.Attach(st)

	st.AppendMessage("one", plan.SenderUser)
	st.ClearTranscript()

	time.Sleep(150 * time.Millisecond)
	if got := chatWrites(writer); len(got) != 0 {
		t.Fatalf("cleared transcript still flushed: %+v", got)
	}

	// Close after a clear must not resurrect the dropped pending write.
	f.Close()
	if got := chatWrites(writer); len(got) != 0 {
		t.Fatalf("Close flushed a cleared transcript: %+v", got)
	}
}

func TestFlusherCloseFlushesPending(t *testing.T) {
	t.Parallel()

	st := store.NewPlanStore()
	writer := &fakeWriter{}
	f := NewTranscriptFlusher(writer, testUser, "plan-1", time.Hour, nil)
	f.Attach(st)

	st.AppendMessage("tail", plan.SenderUser)
	f.Close()

	writes := chatWrites(writer)
	if len(writes) != 1 {
		t.Fatalf("writes after Close = %d, want 1", len(writes))
	}
	if (*writes[0].Chat)[0].Text != "tail" {
		t.Errorf("flushed message = %+v", (*writes[0].Chat)[0])
	}

	// Mutations after Close are ignored.
	st.AppendMessage("late", plan.SenderUser)
	time.Sleep(50 * time.Millisecond)
	if got := chatWrites(writer); len(got) != 1 {
		t.Errorf("writes after post-Close mutation = %d, want still 1", len(got))
	}
}
