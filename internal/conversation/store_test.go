package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetOrCreate_MintsIDWhenAbsent(t *testing.T) {
	s := NewStore(Config{})

	info := s.GetOrCreate("", "tech-7")
	if info.ID == "" {
		t.Fatal("expected a minted conversation id")
	}
	if info.UserID != "tech-7" {
		t.Errorf("UserID = %q, want tech-7", info.UserID)
	}
}

func TestGetOrCreate_IdempotentForUnknownID(t *testing.T) {
	s := NewStore(Config{})

	first := s.GetOrCreate("conv-42", "u1")
	second := s.GetOrCreate("conv-42", "ignored")

	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	// The second call must not reset ownership.
	if second.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", second.UserID)
	}
}

func TestAppend_StrictArrivalOrder(t *testing.T) {
	s := NewStore(Config{})
	s.GetOrCreate("c1", "u")

	for i := 0; i < 20; i++ {
		if err := s.Append("c1", NewUserMessage(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := s.Messages("c1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("len = %d, want 20", len(msgs))
	}
	for i, m := range msgs {
		if m.Ordinal != i {
			t.Errorf("ordinal at %d = %d", i, m.Ordinal)
		}
		if m.Text != fmt.Sprintf("msg-%d", i) {
			t.Errorf("message %d out of order: %q", i, m.Text)
		}
	}
}

func TestAppend_BatchIsAtomic(t *testing.T) {
	s := NewStore(Config{})
	s.GetOrCreate("c1", "u")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Append("c1",
					NewUserMessage(fmt.Sprintf("g%d-user", g)),
					NewModelMessage(fmt.Sprintf("g%d-model", g)),
				)
			}
		}(g)
	}
	wg.Wait()

	msgs, err := s.Messages("c1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 8*50*2 {
		t.Fatalf("len = %d, want %d", len(msgs), 8*50*2)
	}
	// Batches may interleave with each other, but within a batch the
	// user message must immediately precede its model message.
	for i := 0; i < len(msgs); i += 2 {
		wantPrefix := msgs[i].Text[:2] // "gN"
		if msgs[i+1].Text[:2] != wantPrefix {
			t.Fatalf("batch torn at %d: %q then %q", i, msgs[i].Text, msgs[i+1].Text)
		}
		if msgs[i].Ordinal+1 != msgs[i+1].Ordinal {
			t.Fatalf("ordinals not consecutive at %d", i)
		}
	}
}

func TestHistory_SlidingWindowDropsOldest(t *testing.T) {
	s := NewStore(Config{})
	for i := 0; i < 10; i++ {
		_ = s.Append("c1", NewUserMessage(fmt.Sprintf("m%d", i)))
	}

	window := s.History("c1", 3)
	if len(window) != 3 {
		t.Fatalf("window len = %d, want 3", len(window))
	}
	want := []string{"m7", "m8", "m9"}
	for i, m := range window {
		if m.Text != want[i] {
			t.Errorf("window[%d] = %q, want %q", i, m.Text, want[i])
		}
	}
}

func TestHistory_UnknownIDIsEmpty(t *testing.T) {
	s := NewStore(Config{})
	if got := s.History("nope", 10); len(got) != 0 {
		t.Errorf("expected empty history, got %d messages", len(got))
	}
}

func TestMessages_UnknownIDIsNotFound(t *testing.T) {
	s := NewStore(Config{})
	_, err := s.Messages("nope")
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestEvictBefore_RemovesOnlyStale(t *testing.T) {
	s := NewStore(Config{})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.GetOrCreate("old", "u")
	clock = clock.Add(2 * time.Hour)
	s.GetOrCreate("fresh", "u")

	evicted := s.EvictBefore(clock.Add(-time.Hour))
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, err := s.Messages("old"); !IsNotFound(err) {
		t.Error("stale conversation should be gone")
	}
	if _, err := s.Messages("fresh"); err != nil {
		t.Errorf("fresh conversation should survive: %v", err)
	}
}

func TestCapacityBound_EvictsLeastRecentlyActive(t *testing.T) {
	s := NewStore(Config{MaxConversations: 2})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.GetOrCreate("a", "u")
	clock = clock.Add(time.Minute)
	s.GetOrCreate("b", "u")
	clock = clock.Add(time.Minute)
	s.GetOrCreate("c", "u")

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if _, err := s.Messages("a"); !IsNotFound(err) {
		t.Error("oldest conversation should have been evicted")
	}
	if _, err := s.Messages("c"); err != nil {
		t.Error("newest conversation must never evict itself")
	}
}

func TestOnEvict_FiredByCapacityBound(t *testing.T) {
	var dropped []string
	s := NewStore(Config{
		MaxConversations: 1,
		OnEvict:          func(id string) { dropped = append(dropped, id) },
	})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.GetOrCreate("a", "u")
	clock = clock.Add(time.Minute)
	s.GetOrCreate("b", "u")

	if len(dropped) != 1 || dropped[0] != "a" {
		t.Fatalf("dropped = %v, want [a]", dropped)
	}
}

func TestOnEvict_FiredByEvictBefore(t *testing.T) {
	var dropped []string
	s := NewStore(Config{OnEvict: func(id string) { dropped = append(dropped, id) }})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.GetOrCreate("old", "u")
	clock = clock.Add(2 * time.Hour)
	s.GetOrCreate("fresh", "u")

	if n := s.EvictBefore(clock.Add(-time.Hour)); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if len(dropped) != 1 || dropped[0] != "old" {
		t.Fatalf("dropped = %v, want [old]", dropped)
	}
}

func TestOnEvict_CallbackMayUseStore(t *testing.T) {
	// The callback runs outside the store's locks, so it may call back in.
	var lens []int
	s := NewStore(Config{MaxConversations: 1})
	s.onEvict = func(id string) { lens = append(lens, s.Len()) }

	s.GetOrCreate("a", "u")
	s.GetOrCreate("b", "u")

	if len(lens) != 1 || lens[0] != 1 {
		t.Fatalf("callback observations = %v, want [1]", lens)
	}
}

func TestConcurrentDistinctConversations(t *testing.T) {
	s := NewStore(Config{})

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", g)
			for i := 0; i < 100; i++ {
				_ = s.Append(id, NewUserMessage(fmt.Sprintf("m%d", i)))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 16; g++ {
		msgs, err := s.Messages(fmt.Sprintf("conv-%d", g))
		if err != nil {
			t.Fatalf("conv-%d: %v", g, err)
		}
		if len(msgs) != 100 {
			t.Errorf("conv-%d len = %d, want 100", g, len(msgs))
		}
		for i, m := range msgs {
			if m.Text != fmt.Sprintf("m%d", i) {
				t.Fatalf("conv-%d reordered at %d: %q", g, i, m.Text)
			}
		}
	}
}
