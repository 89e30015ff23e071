package lavaflow

import (
	"math/rand/v2"
	"runtime"
	"strings"
	"sync"

	"github.com/lavaflow/lavaflow/lavalink"
)

// shuffleYieldEvery bounds how many swaps a shuffle performs before
// yielding the processor, so huge queues do not starve other players.
const shuffleYieldEvery = 1000

// Queue is the ordered sequence of tracks a player plays through.
// All methods are safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	tracks []lavalink.Track

	// Non-owning back-reference for smart shuffle's history window.
	// Nil for standalone queues; SmartShuffle then degrades to Shuffle.
	player *Player
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// IsEmpty reports whether the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Tracks returns a copy of the queued tracks in order.
func (q *Queue) Tracks() []lavalink.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	tracks := make([]lavalink.Track, len(q.tracks))
	copy(tracks, q.tracks)
	return tracks
}

// Add appends tracks to the tail of the queue.
func (q *Queue) Add(tracks ...lavalink.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, tracks...)
}

// PushFront puts a track at the head of the queue.
func (q *Queue) PushFront(track lavalink.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append([]lavalink.Track{track}, q.tracks...)
}

// InsertAt inserts a track at the given index; index len(queue) appends.
func (q *Queue) InsertAt(index int, track lavalink.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index > len(q.tracks) {
		return newValidationError("index", "%d out of range [0, %d]", index, len(q.tracks))
	}
	q.tracks = append(q.tracks, lavalink.Track{})
	copy(q.tracks[index+1:], q.tracks[index:])
	q.tracks[index] = track
	return nil
}

// RemoveAt removes and returns the track at the given index.
func (q *Queue) RemoveAt(index int) (*lavalink.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.tracks) {
		return nil, newValidationError("index", "%d out of range [0, %d)", index, len(q.tracks))
	}
	track := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	return &track, nil
}

// Move relocates the track at from so it sits at index to.
func (q *Queue) Move(from, to int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if from < 0 || from >= len(q.tracks) {
		return newValidationError("from", "%d out of range [0, %d)", from, len(q.tracks))
	}
	if to < 0 || to >= len(q.tracks) {
		return newValidationError("to", "%d out of range [0, %d)", to, len(q.tracks))
	}
	track := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	q.tracks = append(q.tracks, lavalink.Track{})
	copy(q.tracks[to+1:], q.tracks[to:])
	q.tracks[to] = track
	return nil
}

// Swap exchanges the tracks at indexes i and j.
func (q *Queue) Swap(i, j int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.tracks) {
		return newValidationError("i", "%d out of range [0, %d)", i, len(q.tracks))
	}
	if j < 0 || j >= len(q.tracks) {
		return newValidationError("j", "%d out of range [0, %d)", j, len(q.tracks))
	}
	q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	return nil
}

// Next removes and returns the head of the queue, or nil if empty.
func (q *Queue) Next() *lavalink.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil
	}
	track := q.tracks[0]
	q.tracks = q.tracks[1:]
	return &track
}

// Peek returns the head of the queue without removing it, or nil if empty.
func (q *Queue) Peek() *lavalink.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil
	}
	track := q.tracks[0]
	return &track
}

// Clear removes all tracks.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
}

// Search returns the tracks whose title or author contains the query,
// case-insensitively.
func (q *Queue) Search(query string) []lavalink.Track {
	query = strings.ToLower(query)
	return q.Find(func(t lavalink.Track) bool {
		return strings.Contains(strings.ToLower(t.Info.Title), query) ||
			strings.Contains(strings.ToLower(t.Info.Author), query)
	})
}

// Find returns the tracks matching the predicate, in queue order.
func (q *Queue) Find(match func(lavalink.Track) bool) []lavalink.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	var found []lavalink.Track
	for _, t := range q.tracks {
		if match(t) {
			found = append(found, t)
		}
	}
	return found
}

// RemoveFunc removes all tracks matching the predicate and returns how
// many were removed.
func (q *Queue) RemoveFunc(match func(lavalink.Track) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.tracks[:0]
	removed := 0
	for _, t := range q.tracks {
		if match(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	q.tracks = kept
	return removed
}

// BySource returns the tracks from the given source, e.g. "youtube".
func (q *Queue) BySource(source string) []lavalink.Track {
	source = strings.ToLower(source)
	return q.Find(func(t lavalink.Track) bool {
		return strings.ToLower(t.Info.SourceName) == source
	})
}

// ByArtist returns the tracks whose author contains name.
func (q *Queue) ByArtist(name string) []lavalink.Track {
	name = strings.ToLower(name)
	return q.Find(func(t lavalink.Track) bool {
		return strings.Contains(strings.ToLower(t.Info.Author), name)
	})
}

// ByTitle returns the tracks whose title contains name.
func (q *Queue) ByTitle(name string) []lavalink.Track {
	name = strings.ToLower(name)
	return q.Find(func(t lavalink.Track) bool {
		return strings.Contains(strings.ToLower(t.Info.Title), name)
	})
}

// Shuffle randomizes the queue order in place. Queues of length 0 or 1 are
// left unchanged.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	shuffleTracks(q.tracks)
}

// SmartShuffle shuffles the queue but pushes tracks recently played by the
// owning player behind everything else. Both partitions are shuffled
// independently.
func (q *Queue) SmartShuffle() {
	var recent map[string]struct{}
	if q.player != nil {
		recent = make(map[string]struct{})
		for _, id := range q.player.History().RecentIdentifiers(smartShuffleWindow) {
			recent[id] = struct{}{}
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(recent) == 0 {
		shuffleTracks(q.tracks)
		return
	}

	fresh := make([]lavalink.Track, 0, len(q.tracks))
	var replayed []lavalink.Track
	for _, t := range q.tracks {
		if _, ok := recent[t.Info.Identifier]; ok {
			replayed = append(replayed, t)
		} else {
			fresh = append(fresh, t)
		}
	}
	shuffleTracks(fresh)
	shuffleTracks(replayed)
	q.tracks = append(fresh, replayed...)
}

// shuffleTracks is an in-place Fisher-Yates shuffle, yielding periodically
// so very large queues stay cooperative.
func shuffleTracks(tracks []lavalink.Track) {
	if len(tracks) <= 1 {
		return
	}
	for i := len(tracks) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
		if i%shuffleYieldEvery == 0 {
			runtime.Gosched()
		}
	}
}

// QueueStats summarizes the queued tracks.
type QueueStats struct {
	Count           int
	TotalDuration   lavalink.Duration
	AverageDuration lavalink.Duration
	UniqueArtists   int
	UniqueSources   int
}

// Stats computes totals over the queue. Streams contribute no duration.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStats{Count: len(q.tracks)}
	artists := make(map[string]struct{})
	sources := make(map[string]struct{})
	counted := 0
	for _, t := range q.tracks {
		artists[strings.ToLower(t.Info.Author)] = struct{}{}
		sources[strings.ToLower(t.Info.SourceName)] = struct{}{}
		if !t.Info.IsStream {
			stats.TotalDuration += t.Info.Length
			counted++
		}
	}
	stats.UniqueArtists = len(artists)
	stats.UniqueSources = len(sources)
	if counted > 0 {
		stats.AverageDuration = stats.TotalDuration / lavalink.Duration(counted)
	}
	return stats
}

// Snapshot exports the queue contents as plain data.
func (q *Queue) Snapshot() []lavalink.Track {
	return q.Tracks()
}

// restore replaces the queue contents.
func (q *Queue) restore(tracks []lavalink.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = make([]lavalink.Track, len(tracks))
	copy(q.tracks, tracks)
}
