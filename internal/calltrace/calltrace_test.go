package calltrace

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRecord_AppendOnlyOrder(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		l.Record("c1", Entry{Function: fmt.Sprintf("fn-%d", i), Success: true})
	}

	entries := l.ForConversation("c1")
	if len(entries) != 5 {
		t.Fatalf("len = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Function != fmt.Sprintf("fn-%d", i) {
			t.Errorf("entry %d = %s", i, e.Function)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not assigned")
		}
	}
}

func TestForConversation_ReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Record("c1", Entry{Function: "get_inventory", Success: true})

	got := l.ForConversation("c1")
	got[0].Function = "tampered"

	if l.ForConversation("c1")[0].Function != "get_inventory" {
		t.Error("caller mutation leaked into the trace")
	}
}

func TestForConversation_UnknownIDEmpty(t *testing.T) {
	l := NewLog()
	if got := l.ForConversation("nope"); len(got) != 0 {
		t.Errorf("expected empty trace, got %d", len(got))
	}
}

func TestRecord_ConcurrentConversationsIsolated(t *testing.T) {
	l := NewLog()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", g)
			for i := 0; i < 200; i++ {
				l.Record(id, Entry{
					Function: "get_spare_parts",
					Success:  i%2 == 0,
					Latency:  time.Duration(i) * time.Millisecond,
				})
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		entries := l.ForConversation(fmt.Sprintf("conv-%d", g))
		if len(entries) != 200 {
			t.Errorf("conv-%d len = %d, want 200", g, len(entries))
		}
	}
}

func TestDrop_RemovesTrace(t *testing.T) {
	l := NewLog()
	l.Record("c1", Entry{Function: "get_inventory"})
	l.Drop("c1")
	if got := l.ForConversation("c1"); len(got) != 0 {
		t.Errorf("trace should be gone, got %d entries", len(got))
	}
}
