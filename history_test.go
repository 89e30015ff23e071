package lavaflow

import "testing"

func TestHistoryRecordNewestFirst(t *testing.T) {
	h := NewHistory(10)
	h.Record(makeTrack("a", "A", "x", 0))
	h.Record(makeTrack("b", "B", "x", 0))

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("Len = %d, want 2", len(entries))
	}
	if entries[0].Track.Info.Identifier != "b" || entries[1].Track.Info.Identifier != "a" {
		t.Errorf("entries not newest first: %v", entries)
	}
}

func TestHistoryConsecutiveReplaysCollapse(t *testing.T) {
	h := NewHistory(10)
	h.Record(makeTrack("a", "A", "x", 0))
	h.Record(makeTrack("a", "A", "x", 0))
	entry := h.Record(makeTrack("a", "A", "x", 0))

	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (consecutive plays collapse)", h.Len())
	}
	if entry.ReplayCount != 3 {
		t.Errorf("ReplayCount = %d, want 3", entry.ReplayCount)
	}

	// A different track in between starts a new entry.
	h.Record(makeTrack("b", "B", "x", 0))
	h.Record(makeTrack("a", "A", "x", 0))
	if h.Len() != 3 {
		t.Errorf("Len = %d, want 3 after interleaved play", h.Len())
	}
	if h.Entries()[0].ReplayCount != 1 {
		t.Errorf("non-consecutive replay should reset count, got %d", h.Entries()[0].ReplayCount)
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.Record(makeTrack(id, id, "x", 0))
	}
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	if got := h.RecentIdentifiers(3); !equalStrings(got, []string{"e", "d", "c"}) {
		t.Errorf("RecentIdentifiers = %v, want [e d c]", got)
	}
}

func TestHistoryRecentIdentifiersClamps(t *testing.T) {
	h := NewHistory(10)
	h.Record(makeTrack("a", "A", "x", 0))
	if got := h.RecentIdentifiers(5); len(got) != 1 {
		t.Errorf("RecentIdentifiers(5) = %v, want 1 entry", got)
	}
}

func TestHistoryDefaultLimit(t *testing.T) {
	if NewHistory(0).Limit() != defaultHistoryLimit {
		t.Errorf("Limit() = %d, want %d", NewHistory(0).Limit(), defaultHistoryLimit)
	}
}

func TestHistoryClearAndRestore(t *testing.T) {
	h := NewHistory(2)
	h.Record(makeTrack("a", "A", "x", 0))
	saved := h.Entries()
	h.Clear()
	if h.Len() != 0 {
		t.Fatal("Clear() left entries")
	}
	h.restore(saved)
	if h.Len() != 1 {
		t.Errorf("restore() Len = %d, want 1", h.Len())
	}
}
