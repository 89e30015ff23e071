package lavaflow

import (
	"sync"
	"time"

	"github.com/lavaflow/lavaflow/lavalink"
)

// Playback history defaults.
const (
	defaultHistoryLimit = 25
	smartShuffleWindow  = 5
)

// HistoryEntry is a played track with when it was played and how many
// consecutive times.
type HistoryEntry struct {
	Track       lavalink.Track `json:"track"`
	PlayedAt    int64          `json:"playedAt"` // wall-clock ms
	ReplayCount int            `json:"replayCount"`
}

// History is a bounded newest-first record of played tracks. Consecutive
// plays of the same identifier increment the head entry's replay count
// instead of prepending a duplicate.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	limit   int
}

// NewHistory creates a history bounded to limit entries. A non-positive
// limit uses the default.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit}
}

// Limit returns the maximum number of entries retained.
func (h *History) Limit() int {
	return h.limit
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Record adds a played track. Returns the entry now at the head.
func (h *History) Record(track lavalink.Track) HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UnixMilli()
	if len(h.entries) > 0 && h.entries[0].Track.Info.Identifier == track.Info.Identifier {
		h.entries[0].ReplayCount++
		h.entries[0].PlayedAt = now
		return h.entries[0]
	}

	entry := HistoryEntry{Track: track, PlayedAt: now, ReplayCount: 1}
	h.entries = append([]HistoryEntry{entry}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
	return entry
}

// Entries returns a copy of the history, newest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := make([]HistoryEntry, len(h.entries))
	copy(entries, h.entries)
	return entries
}

// RecentIdentifiers returns the identifiers of the newest n entries.
func (h *History) RecentIdentifiers(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.entries) {
		n = len(h.entries)
	}
	ids := make([]string, 0, n)
	for _, entry := range h.entries[:n] {
		ids = append(ids, entry.Track.Info.Identifier)
	}
	return ids
}

// Clear drops all entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// restore replaces the history contents, trimming to the limit.
func (h *History) restore(entries []HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(entries) > h.limit {
		entries = entries[:h.limit]
	}
	h.entries = make([]HistoryEntry, len(entries))
	copy(h.entries, entries)
}
