package conversation

import (
	"fmt"
	"sync"
	"testing"
)

func msg(id, text string) Message {
	return Message{MessageID: id, AuthorID: "u1", AuthorName: "alice", Text: text}
}

func TestRecordAndDrainOrder(t *testing.T) {
	r := NewRegistry()

	if created := r.Record("chan1", msg("m1", "hello")); !created {
		t.Error("expected first Record to create the window")
	}
	if created := r.Record("chan1", msg("m2", "world")); created {
		t.Error("expected second Record to reuse the window")
	}
	r.Record("chan1", msg("m3", "again"))

	msgs := r.Drain("chan1")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].MessageID != want {
			t.Errorf("index %d: expected %q, got %q", i, want, msgs[i].MessageID)
		}
	}
}

func TestDrainRemovesWindow(t *testing.T) {
	r := NewRegistry()
	r.Record("chan1", msg("m1", "hello"))

	if !r.Has("chan1") {
		t.Fatal("expected window to exist before drain")
	}

	r.Drain("chan1")

	if r.Has("chan1") {
		t.Error("expected window to be removed after drain")
	}
	if got := r.Drain("chan1"); len(got) != 0 {
		t.Errorf("expected second drain to be empty, got %d messages", len(got))
	}
}

func TestDrainUnknownChannel(t *testing.T) {
	r := NewRegistry()

	if got := r.Drain("never-seen"); len(got) != 0 {
		t.Errorf("expected empty drain, got %d messages", len(got))
	}
	if r.Active() != 0 {
		t.Errorf("expected 0 active windows, got %d", r.Active())
	}
}

func TestRequeuePrepends(t *testing.T) {
	r := NewRegistry()
	r.Record("chan1", msg("m1", "first"))
	r.Record("chan1", msg("m2", "second"))

	drained := r.Drain("chan1")

	// A newer message arrives while the failed cycle is unwinding.
	r.Record("chan1", msg("m3", "third"))
	r.Requeue("chan1", drained)

	msgs := r.Drain("chan1")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].MessageID != want {
			t.Errorf("index %d: expected %q, got %q", i, want, msgs[i].MessageID)
		}
	}
}

func TestRequeueEmptyIsNoop(t *testing.T) {
	r := NewRegistry()

	r.Requeue("chan1", nil)

	if r.Has("chan1") {
		t.Error("expected no window after empty requeue")
	}
}

func TestActiveCountsWindows(t *testing.T) {
	r := NewRegistry()
	r.Record("a", msg("m1", "x"))
	r.Record("b", msg("m2", "y"))
	r.Record("a", msg("m3", "z"))

	if got := r.Active(); got != 2 {
		t.Errorf("expected 2 active windows, got %d", got)
	}
}

func TestConcurrentRecordAndDrain(t *testing.T) {
	r := NewRegistry()
	goroutines := 50
	perGoroutine := 40

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for m := 0; m < perGoroutine; m++ {
				r.Record("busy", Message{
					MessageID: fmt.Sprintf("g%d-m%d", id, m),
					Text:      "hi",
				})
			}
		}(g)
	}
	wg.Wait()

	msgs := r.Drain("busy")
	if len(msgs) != goroutines*perGoroutine {
		t.Fatalf("expected %d messages, got %d", goroutines*perGoroutine, len(msgs))
	}

	// Per-goroutine order must be preserved even under interleaving.
	lastSeen := make(map[string]int)
	for _, m := range msgs {
		var g, seq int
		fmt.Sscanf(m.MessageID, "g%d-m%d", &g, &seq)
		key := fmt.Sprintf("g%d", g)
		if prev, ok := lastSeen[key]; ok && seq <= prev {
			t.Fatalf("goroutine %d messages out of order: %d after %d", g, seq, prev)
		}
		lastSeen[key] = seq
	}
}
