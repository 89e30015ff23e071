package lavaflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
)

// LoopMode controls what happens when a track ends.
type LoopMode int

const (
	LoopNone  LoopMode = iota // no looping
	LoopTrack                 // repeat the current track
	LoopQueue                 // requeue finished tracks at the tail
)

// String returns a human-readable representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

// ParseLoopMode converts a string to a LoopMode. Unknown strings are a
// validation error.
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "none":
		return LoopNone, nil
	case "track":
		return LoopTrack, nil
	case "queue":
		return LoopQueue, nil
	default:
		return LoopNone, newValidationError("loop", "unknown loop mode %q", s)
	}
}

// Player defaults.
const (
	defaultVolume         = 100
	maxVolume             = 1000
	updateBatchDelay      = 25 * time.Millisecond
	taskQueueSize         = 16
	defaultStuckThreshold = 30 * time.Second
	maxRecoveryAttempts   = 3
	recoveryRetryDelay    = 5 * time.Second
	autoResumeGracePeriod = 2 * time.Second
	fadeInStepInterval    = 100 * time.Millisecond
	resolveTimeout        = 10 * time.Second
)

// resumeState is the last known playable state, kept fresh so a node
// reconnect or migration can re-apply it.
type resumeState struct {
	Track     *lavalink.Track   `json:"track,omitempty"`
	Position  lavalink.Duration `json:"position"`
	Volume    int               `json:"volume"`
	Filters   lavalink.Filters  `json:"filters"`
	Paused    bool              `json:"paused"`
	UpdatedAt int64             `json:"updatedAt"` // wall-clock ms, observability only
}

// Player is the per-guild state machine. It owns the queue, the current
// track, the voice binding, filters, and history, and batches outbound
// state mutations to its node.
type Player struct {
	client  *Client
	guildID snowflake.ID
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	connection *Connection
	queue      *Queue
	filters    *Filters
	history    *History

	mu             sync.Mutex
	node           *Node
	textChannelID  snowflake.ID
	voiceChannelID snowflake.ID
	selfDeaf       bool
	selfMute       bool

	current    *lavalink.Track
	position   lavalink.Duration
	positionAt time.Time
	ping       int
	volume     int
	loop       LoopMode
	autoplay   bool
	paused     bool
	playing    bool
	connected  bool
	destroyed  bool

	sponsorBlock lavalink.SponsorBlockCategories

	// update batching
	flushMu        sync.Mutex
	pending        lavalink.PlayerUpdate
	flushScheduled bool
	flushTimer     *time.Timer

	// stuck detection and voice recovery
	lastPositionMove time.Time
	recoveryAttempts int

	// tasks serializes deferred playback work (queue advancement,
	// autoplay resolution) off the node's read pump.
	tasks chan func()

	resume resumeState
}

func newPlayer(client *Client, node *Node, guildID snowflake.ID, voiceChannelID, textChannelID snowflake.ID) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		client:         client,
		guildID:        guildID,
		logger:         client.logger.With("guild_id", guildID),
		ctx:            ctx,
		cancel:         cancel,
		node:           node,
		voiceChannelID: voiceChannelID,
		textChannelID:  textChannelID,
		selfDeaf:       true,
		volume:         defaultVolume,
		history:        NewHistory(client.config.HistoryLimit),
		tasks:          make(chan func(), taskQueueSize),
	}
	p.connection = newConnection(p)
	p.queue = &Queue{player: p}
	p.filters = NewFilters(func(payload lavalink.Filters) {
		p.scheduleUpdate(lavalink.PlayerUpdate{Filters: &payload})
		p.refreshResume()
	})
	go p.taskLoop()
	return p
}

// taskLoop runs deferred playback work one item at a time, preserving
// per-player ordering, until the player is destroyed.
func (p *Player) taskLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			task()
		}
	}
}

// runTask hands work to the task loop. Blocking resolution must never run
// on a node's read pump, where it would stall every guild on that socket.
func (p *Player) runTask(task func()) {
	select {
	case p.tasks <- task:
	case <-p.ctx.Done():
	}
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() snowflake.ID { return p.guildID }

// Node returns the audio node this player is bound to.
func (p *Player) Node() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

// Connection returns the player's voice binding.
func (p *Player) Connection() *Connection { return p.connection }

// Queue returns the player's track queue.
func (p *Player) Queue() *Queue { return p.queue }

// Filters returns the player's filter manager.
func (p *Player) Filters() *Filters { return p.filters }

// History returns the player's playback history.
func (p *Player) History() *History { return p.history }

// Current returns a copy of the current track, or nil when idle.
func (p *Player) Current() *lavalink.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	track := *p.current
	return &track
}

// Position returns the last reported playback position.
func (p *Player) Position() lavalink.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Volume returns the player volume in [0, 1000].
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Loop returns the loop mode.
func (p *Player) Loop() LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// Autoplay reports whether the autoplay resolver runs on queue end.
func (p *Player) Autoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// SetAutoplay toggles the autoplay resolver.
func (p *Player) SetAutoplay(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoplay = enabled
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Playing reports whether a track is actively producing audio.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Connected reports the node-side voice connection flag.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// TextChannelID returns the bound text channel.
func (p *Player) TextChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

// VoiceChannelID returns the target voice channel.
func (p *Player) VoiceChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannelID
}

// Destroyed reports whether the player has been torn down.
func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Play dequeues the next track and starts it. A player with an empty
// queue is left unchanged. Unresolved tracks are resolved through the
// bound node first; if preloading is enabled the following track is
// resolved opportunistically in the background.
func (p *Player) Play(ctx context.Context) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	if p.connection.State() != ConnectionStateConnected {
		return ErrNotConnected
	}

	track := p.queue.Next()
	if track == nil {
		return nil
	}

	if !track.Resolved() {
		resolved, err := p.resolveTrack(ctx, *track)
		if err != nil {
			p.logger.Warn("failed to resolve queued track",
				"identifier", track.Info.Identifier, "error", err)
			p.client.emitTrackError(p, *track, err)
			// Same path as a load failure: advance rather than wedge.
			return p.Play(ctx)
		}
		track = resolved
	}

	fadeIn := p.client.config.FadeIn
	p.mu.Lock()
	p.current = track
	p.position = 0
	p.positionAt = time.Now()
	p.lastPositionMove = time.Now()
	p.playing = true
	p.paused = false
	volume := p.volume
	p.mu.Unlock()

	paused := false
	update := lavalink.PlayerUpdate{
		Track:    &lavalink.PlayerUpdateTrack{Encoded: &track.Encoded},
		Position: ptr(lavalink.Duration(0)),
		Paused:   &paused,
	}
	if fadeIn > 0 {
		zero := 0
		update.Volume = &zero
	} else {
		update.Volume = &volume
	}
	p.scheduleUpdate(update)
	p.refreshResume()

	if fadeIn > 0 {
		go p.fadeInVolume(volume, fadeIn)
	}
	if p.client.config.Preload {
		go p.preloadNext()
	}
	return nil
}

// fadeInVolume ramps the wire volume from 0 to target in bounded steps.
// The player-visible volume is the target throughout.
func (p *Player) fadeInVolume(target int, duration time.Duration) {
	steps := int(duration / fadeInStepInterval)
	if steps < 1 {
		steps = 1
	}
	for step := 1; step <= steps; step++ {
		select {
		case <-time.After(fadeInStepInterval):
		case <-p.ctx.Done():
			return
		}
		volume := target * step / steps
		p.scheduleUpdate(lavalink.PlayerUpdate{Volume: &volume})
	}
}

// preloadNext resolves the queue head in the background so the next Play
// does not block on the node. The track does not become current.
func (p *Player) preloadNext() {
	next := p.queue.Peek()
	if next == nil || next.Resolved() {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, resolveTimeout)
	defer cancel()
	resolved, err := p.resolveTrack(ctx, *next)
	if err != nil {
		p.logger.Debug("preload resolve failed", "identifier", next.Info.Identifier, "error", err)
		return
	}

	// Replace the head only if it is still the same unresolved track.
	p.queue.mu.Lock()
	if len(p.queue.tracks) > 0 &&
		p.queue.tracks[0].Info.Identifier == next.Info.Identifier &&
		!p.queue.tracks[0].Resolved() {
		p.queue.tracks[0] = *resolved
	}
	p.queue.mu.Unlock()
}

// resolveTrack loads an unresolved track's encoded blob via the node.
func (p *Player) resolveTrack(ctx context.Context, track lavalink.Track) (*lavalink.Track, error) {
	identifier := track.Info.Identifier
	if track.Info.URI != nil && *track.Info.URI != "" {
		identifier = *track.Info.URI
	}
	result, err := p.client.Resolve(ctx, ResolveOptions{Query: identifier, Node: p.Node()})
	if err != nil {
		return nil, err
	}
	if len(result.Tracks) == 0 {
		return nil, &ContractError{Op: "loadtracks", Err: fmt.Errorf("no tracks for %q", identifier)}
	}
	resolved := result.Tracks[0]
	return &resolved, nil
}

// Pause sets or clears the paused flag.
func (p *Player) Pause(paused bool) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	p.mu.Lock()
	p.paused = paused
	if paused {
		p.playing = false
	} else {
		p.playing = p.current != nil
	}
	p.mu.Unlock()

	p.scheduleUpdate(lavalink.PlayerUpdate{Paused: &paused})
	p.refreshResume()
	return nil
}

// TogglePause flips the paused flag and returns the new value.
func (p *Player) TogglePause() (bool, error) {
	paused := !p.Paused()
	return paused, p.Pause(paused)
}

// Seek moves playback to position. The position must lie within the
// current track.
func (p *Player) Seek(position lavalink.Duration) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	if position < 0 {
		return newValidationError("position", "%d is negative", position)
	}

	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return newValidationError("position", "no track is playing")
	}
	if current.Info.Length > 0 && position > current.Info.Length {
		return newValidationError("position", "%d beyond track length %d", position, current.Info.Length)
	}

	p.mu.Lock()
	p.position = position
	p.positionAt = time.Now()
	p.lastPositionMove = time.Now()
	p.mu.Unlock()

	p.scheduleUpdate(lavalink.PlayerUpdate{Position: &position})
	p.refreshResume()
	return nil
}

// SetVolume sets the player volume. Valid range is [0, 1000]; out of range
// is a validation error, not a clamp.
func (p *Player) SetVolume(volume int) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	if volume < 0 || volume > maxVolume {
		return newValidationError("volume", "%d out of range [0, %d]", volume, maxVolume)
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()

	p.scheduleUpdate(lavalink.PlayerUpdate{Volume: &volume})
	p.refreshResume()
	return nil
}

// SetLoop sets the loop mode; it takes effect on the next track end.
func (p *Player) SetLoop(mode LoopMode) error {
	if mode < LoopNone || mode > LoopQueue {
		return newValidationError("loop", "unknown loop mode %d", mode)
	}
	p.mu.Lock()
	p.loop = mode
	p.mu.Unlock()
	return nil
}

// Stop clears the current track without touching the queue.
func (p *Player) Stop() error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	p.mu.Lock()
	p.current = nil
	p.playing = false
	p.position = 0
	p.mu.Unlock()

	p.scheduleUpdate(lavalink.PlayerUpdate{
		Track: &lavalink.PlayerUpdateTrack{Encoded: nil},
	})
	p.refreshResume()
	return nil
}

// Skip stops the current track and starts the next queued one, if any.
func (p *Player) Skip(ctx context.Context) error {
	if p.queue.IsEmpty() {
		return p.Stop()
	}
	return p.Play(ctx)
}

// SetSponsorBlockCategories pushes the SponsorBlock category list to the
// node for this player.
func (p *Player) SetSponsorBlockCategories(ctx context.Context, categories lavalink.SponsorBlockCategories) error {
	node := p.Node()
	if node == nil || !node.Connected() {
		return ErrNodeNotReady
	}
	if err := node.Rest().PutSponsorBlockCategories(ctx, node.SessionID(), p.guildID, categories); err != nil {
		return err
	}
	p.mu.Lock()
	p.sponsorBlock = categories
	p.mu.Unlock()
	return nil
}

// SponsorBlockCategories returns the configured category list.
func (p *Player) SponsorBlockCategories() lavalink.SponsorBlockCategories {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sponsorBlock
}

// Destroy tears the player down: optionally leaves the voice channel,
// cancels pending work, removes the node-side player, and deregisters
// from the client. Idempotent.
func (p *Player) Destroy(disconnect bool) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	p.playing = false
	node := p.node
	if p.flushTimer != nil {
		p.flushTimer.Stop()
	}
	p.mu.Unlock()

	p.cancel()
	p.connection.destroy()

	if disconnect {
		if err := p.client.sendVoiceUpdate(p.guildID, nil, false, false); err != nil {
			p.logger.Warn("failed to send voice leave", "error", err)
		}
	}

	if node != nil && node.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
		defer cancel()
		if err := node.Rest().DestroyPlayer(ctx, node.SessionID(), p.guildID); err != nil {
			p.logger.Warn("failed to destroy node-side player", "error", err)
		}
	}

	p.client.removePlayer(p.guildID)
	p.logger.Info("player destroyed")
	return nil
}

// Restart re-applies the full last known state to the bound node. Used
// after node reconnects, migration, and voice recovery.
func (p *Player) Restart() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	current := p.current
	position := p.position
	volume := p.volume
	paused := p.paused
	p.mu.Unlock()

	if current == nil {
		return nil
	}

	filters := p.filters.Current()
	update := lavalink.PlayerUpdate{
		Track:    &lavalink.PlayerUpdateTrack{Encoded: &current.Encoded},
		Position: &position,
		Volume:   &volume,
		Paused:   &paused,
		Filters:  &filters,
	}
	if voice := p.connection.VoiceState(); voice.Complete() {
		update.Voice = &voice
	}
	return p.pushUpdate(update)
}

// scheduleUpdate merges a mutation into the pending batch; the latest
// value per field wins. A flush runs after the batch delay.
func (p *Player) scheduleUpdate(update lavalink.PlayerUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.pending.Merge(update)
	if !p.flushScheduled {
		p.flushScheduled = true
		p.flushTimer = time.AfterFunc(updateBatchDelay, p.flushBatch)
	}
}

// flushBatch drains the pending batch to the node. At most one flush is
// in flight per player; a failed push against a down node re-queues the
// batch so it flushes when the node returns.
func (p *Player) flushBatch() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	update := p.pending
	p.pending = lavalink.PlayerUpdate{}
	p.flushScheduled = false
	destroyed := p.destroyed
	p.mu.Unlock()

	if destroyed || update.IsEmpty() {
		return
	}

	err := p.pushUpdate(update)
	if err == nil {
		return
	}
	if err == ErrNodeNotReady {
		// Keep the batch; newer values still win over it.
		p.mu.Lock()
		merged := update
		merged.Merge(p.pending)
		p.pending = merged
		p.mu.Unlock()
		p.logger.Debug("node unavailable, holding player update")
		return
	}
	p.logger.Error("failed to flush player update", "error", err)
	p.client.emitPlayerError(p, err)
}

// flushNow drains any held batch immediately, e.g. after a node returns.
func (p *Player) flushNow() {
	p.flushBatch()
}

// pushUpdate performs a synchronous player PATCH against the bound node.
func (p *Player) pushUpdate(update lavalink.PlayerUpdate) error {
	node := p.Node()
	if node == nil || !node.Connected() {
		return ErrNodeNotReady
	}
	_, err := node.Rest().UpdatePlayer(p.ctx, node.SessionID(), p.guildID, update)
	return err
}

// refreshResume records the last known playable state.
func (p *Player) refreshResume() {
	filters := p.filters.Current()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resume = resumeState{
		Track:     p.current,
		Position:  p.position,
		Volume:    p.volume,
		Filters:   filters,
		Paused:    p.paused,
		UpdatedAt: time.Now().UnixMilli(),
	}
}

// --- node event handling -------------------------------------------------

// handlePlayerUpdate applies a node state tick and checks for stuck
// playback.
func (p *Player) handlePlayerUpdate(state lavalink.PlayerState) {
	now := time.Now()
	var stuck bool

	p.mu.Lock()
	moved := state.Position != p.position
	p.position = state.Position
	p.positionAt = now
	p.ping = state.Ping
	p.connected = state.Connected

	if moved {
		p.lastPositionMove = now
		// The node does not flag playing explicitly; an advancing
		// position is the only reliable signal.
		if p.current != nil && !p.paused {
			p.playing = true
		}
	} else if p.playing && !p.paused && p.current != nil {
		if !p.lastPositionMove.IsZero() && now.Sub(p.lastPositionMove) >= p.client.config.StuckThreshold {
			stuck = true
			p.lastPositionMove = now
		}
	}
	p.mu.Unlock()

	if stuck {
		p.logger.Warn("playback appears stuck", "position", state.Position)
		go p.recoverVoice()
	}
}

func (p *Player) handleTrackStart(event lavalink.TrackStartEvent) {
	p.mu.Lock()
	track := event.Track
	p.current = &track
	p.playing = true
	p.recoveryAttempts = 0
	p.mu.Unlock()
	p.client.emitTrackStart(p, event.Track)
}

// handleTrackEnd records history and advances playback per loop mode,
// queue contents, and the autoplay resolver.
func (p *Player) handleTrackEnd(event lavalink.TrackEndEvent) {
	p.mu.Lock()
	current := p.current
	loop := p.loop
	autoplay := p.autoplay
	connected := p.connection.State() == ConnectionStateConnected
	p.current = nil
	p.playing = false
	p.mu.Unlock()

	ended := event.Track
	if current != nil {
		ended = *current
	}
	p.history.Record(ended)
	p.client.emitTrackEnd(p, ended, event.Reason)

	if event.Reason == lavalink.TrackEndReasonReplaced {
		// A replacement means a new track is already starting.
		return
	}
	if !connected {
		p.client.emitQueueEnd(p)
		return
	}

	// Advancement can block on track resolution for seconds; it runs on
	// the player's task loop so one slow guild never stalls the event
	// stream for the others on the same socket.
	p.runTask(func() {
		p.advanceAfterEnd(ended, event.Reason, loop, autoplay)
	})
}

// advanceAfterEnd applies the loop mode and starts whatever plays next:
// the requeued track, the queue head, or an autoplay suggestion.
func (p *Player) advanceAfterEnd(ended lavalink.Track, reason lavalink.TrackEndReason, loop LoopMode, autoplay bool) {
	stopped := reason == lavalink.TrackEndReasonStopped
	switch {
	case loop == LoopTrack && !stopped:
		p.queue.PushFront(ended)
	case loop == LoopQueue && !stopped:
		p.queue.Add(ended)
	}

	if !p.queue.IsEmpty() {
		ctx, cancel := context.WithTimeout(p.ctx, resolveTimeout)
		defer cancel()
		if err := p.Play(ctx); err != nil {
			p.logger.Error("failed to start next track", "error", err)
			p.client.emitPlayerError(p, err)
		}
		return
	}

	if autoplay {
		p.runAutoplay(ended)
		return
	}
	p.client.emitQueueEnd(p)
}

// runAutoplay asks the injected resolver for a follow-up track and plays
// it. Empty results and errors end the queue.
func (p *Player) runAutoplay(previous lavalink.Track) {
	resolver := p.client.config.Autoplay
	if resolver == nil {
		p.client.emitQueueEnd(p)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, resolveTimeout)
	defer cancel()

	identifier, err := resolver.NextFor(ctx, previous.Info)
	if err != nil || identifier == "" {
		if err != nil {
			p.logger.Warn("autoplay resolver failed", "error", err)
		}
		p.client.emitQueueEnd(p)
		return
	}

	result, err := p.client.Resolve(ctx, ResolveOptions{Query: identifier, Node: p.Node()})
	if err != nil || len(result.Tracks) == 0 {
		p.client.emitQueueEnd(p)
		return
	}

	p.queue.Add(result.Tracks[0])
	if err := p.Play(ctx); err != nil {
		p.logger.Error("failed to start autoplay track", "error", err)
		p.client.emitPlayerError(p, err)
	}
}

func (p *Player) handleTrackException(event lavalink.TrackExceptionEvent) {
	p.logger.Warn("track exception",
		"identifier", event.Track.Info.Identifier,
		"severity", event.Exception.Severity,
		"message", event.Exception.Message)
	p.client.emitTrackError(p, event.Track, event.Exception)
}

func (p *Player) handleTrackStuck(event lavalink.TrackStuckEvent) {
	p.logger.Warn("track stuck",
		"identifier", event.Track.Info.Identifier,
		"threshold", event.ThresholdMs)
	p.client.emitTrackStuck(p, event.Track, event.ThresholdMs)
	go p.recoverVoice()
}

func (p *Player) handleWebSocketClosed(event lavalink.WebSocketClosedEvent) {
	p.logger.Warn("voice websocket closed",
		"code", event.Code, "reason", event.Reason, "by_remote", event.ByRemote)
	p.client.emitSocketClosed(p, event)

	if !p.client.config.AutoResume {
		return
	}
	p.mu.Lock()
	hasTrack := p.current != nil
	p.mu.Unlock()
	if !hasTrack {
		return
	}

	time.AfterFunc(autoResumeGracePeriod, func() {
		if p.Destroyed() {
			return
		}
		if err := p.Restart(); err != nil {
			p.logger.Warn("auto-resume restart failed", "error", err)
		}
	})
}

// recoverVoice re-runs the voice handshake and restarts playback. Bounded
// attempts; the counter resets on any successful track start.
func (p *Player) recoverVoice() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.recoveryAttempts++
	attempts := p.recoveryAttempts
	voiceChannelID := p.voiceChannelID
	selfMute := p.selfMute
	selfDeaf := p.selfDeaf
	p.mu.Unlock()

	if attempts > maxRecoveryAttempts {
		p.logger.Error("voice recovery attempts exhausted")
		p.client.emitConnectionError(p, ErrVoiceTimeout)
		return
	}
	p.logger.Info("attempting voice recovery", "attempt", attempts)

	p.connection.reset()
	if err := p.client.sendVoiceUpdate(p.guildID, &voiceChannelID, selfMute, selfDeaf); err != nil {
		p.logger.Warn("voice recovery join failed", "error", err)
		p.scheduleRecoveryRetry()
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, voiceReadyWait)
	err := p.connection.AwaitConnected(ctx)
	cancel()
	if err != nil {
		// The wait is advisory; the gateway may still be delivering
		// updates. Retry rather than give up outright.
		p.scheduleRecoveryRetry()
		return
	}

	if err := p.Restart(); err != nil {
		p.logger.Warn("voice recovery restart failed", "error", err)
		p.scheduleRecoveryRetry()
	}
}

func (p *Player) scheduleRecoveryRetry() {
	time.AfterFunc(recoveryRetryDelay, func() {
		if !p.Destroyed() {
			p.recoverVoice()
		}
	})
}

// onVoiceDisconnect handles the gateway reporting the bot left the voice
// channel.
func (p *Player) onVoiceDisconnect() {
	if err := p.Destroy(false); err != nil {
		p.logger.Warn("failed to destroy player on voice disconnect", "error", err)
	}
}

// onChannelMove updates the bound channel after a gateway-reported move.
func (p *Player) onChannelMove(from, to snowflake.ID) {
	p.mu.Lock()
	p.voiceChannelID = to
	p.mu.Unlock()
	p.client.emitPlayerMove(p, from, to)
}

// setNode rebinds the player to a different node. Events from the old
// node are fenced off by the dispatch-time node identity check.
func (p *Player) setNode(node *Node) {
	p.mu.Lock()
	p.node = node
	p.mu.Unlock()
}

func ptr[T any](v T) *T { return &v }
