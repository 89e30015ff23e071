package lavaflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
)

// ConnectionState describes the voice binding of a player.
type ConnectionState int

const (
	ConnectionStateDisconnected ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateDestroyed
)

// String returns a human-readable representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDestroyed:
		return "destroyed"
	default:
		return "disconnected"
	}
}

// Voice binding defaults.
const (
	voiceFlushDelay       = 50 * time.Millisecond
	voiceFlushRetries     = 3
	voiceFlushBackoffBase = 200 * time.Millisecond
	voiceFlushBackoffMax  = 2 * time.Second
	voiceReadyWait        = time.Second
)

// VoiceStateUpdate is the gateway message carrying the bot's voice session.
type VoiceStateUpdate struct {
	GuildID   snowflake.ID
	UserID    snowflake.ID
	ChannelID *snowflake.ID
	SessionID string
	SelfDeaf  bool
	SelfMute  bool
}

// VoiceServerUpdate is the gateway message carrying the voice endpoint and
// token.
type VoiceServerUpdate struct {
	GuildID  snowflake.ID
	Endpoint string
	Token    string
}

// Connection collates gateway voice updates into a complete binding for
// one player and batches voice pushes to the bound node. It does not own
// the player; the player owns it.
type Connection struct {
	player *Player
	logger *slog.Logger

	mu        sync.Mutex
	state     ConnectionState
	voice     lavalink.VoiceState
	channelID *snowflake.ID
	selfDeaf  bool
	selfMute  bool
	region    string
	ready     chan struct{}

	flushTimer   *time.Timer
	flushPending bool
}

func newConnection(player *Player) *Connection {
	return &Connection{
		player: player,
		logger: player.logger,
		ready:  make(chan struct{}),
	}
}

// State returns the current binding state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ChannelID returns the bound voice channel, or nil when not connected.
func (c *Connection) ChannelID() *snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Region returns the advisory voice region extracted from the endpoint.
func (c *Connection) Region() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

// VoiceState returns the collated credential tuple.
func (c *Connection) VoiceState() lavalink.VoiceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// AwaitConnected blocks until the binding completes, the context expires,
// or the connection is destroyed.
func (c *Connection) AwaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	state := c.state
	c.mu.Unlock()

	if state == ConnectionStateConnected {
		return nil
	}
	if state == ConnectionStateDestroyed {
		return ErrPlayerDestroyed
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ErrVoiceTimeout
	}
}

// HandleVoiceServerUpdate feeds a gateway voice-server update into the
// binding.
func (c *Connection) HandleVoiceServerUpdate(update VoiceServerUpdate) {
	c.mu.Lock()
	if c.state == ConnectionStateDestroyed {
		c.mu.Unlock()
		return
	}
	c.voice.Endpoint = update.Endpoint
	c.voice.Token = update.Token
	c.region = regionFromEndpoint(update.Endpoint)
	c.advanceLocked()
	c.mu.Unlock()
}

// HandleVoiceStateUpdate feeds a gateway voice-state update for the bot
// user into the binding. A nil channel id is a disconnect and destroys the
// player.
func (c *Connection) HandleVoiceStateUpdate(update VoiceStateUpdate) {
	c.mu.Lock()
	if c.state == ConnectionStateDestroyed {
		c.mu.Unlock()
		return
	}

	if update.ChannelID == nil {
		c.state = ConnectionStateDisconnected
		c.channelID = nil
		c.voice = lavalink.VoiceState{}
		c.mu.Unlock()
		c.logger.Info("voice channel disconnect, destroying player")
		c.player.onVoiceDisconnect()
		return
	}

	moved := c.state == ConnectionStateConnected &&
		c.channelID != nil && *c.channelID != *update.ChannelID
	var oldChannel snowflake.ID
	if moved {
		oldChannel = *c.channelID
	}

	channelID := *update.ChannelID
	c.channelID = &channelID
	c.voice.SessionID = update.SessionID
	c.selfDeaf = update.SelfDeaf
	c.selfMute = update.SelfMute
	c.advanceLocked()
	c.mu.Unlock()

	if moved {
		c.logger.Info("voice channel move", "from", oldChannel, "to", channelID)
		c.player.onChannelMove(oldChannel, channelID)
	}
}

// advanceLocked moves the state machine forward once credentials
// accumulate. Must be called with the lock held.
func (c *Connection) advanceLocked() {
	switch {
	case c.voice.Complete() && c.channelID != nil:
		if c.state != ConnectionStateConnected {
			c.state = ConnectionStateConnected
			close(c.ready)
			c.logger.Info("voice binding complete",
				"region", c.region, "channel_id", *c.channelID)
		}
		// Every complete tuple is pushed, not just the first one. Voice
		// server failover and session rotation re-issue credentials
		// while already Connected; the node needs the fresh token. A
		// channel move lands here too, no re-handshake happens.
		c.scheduleFlushLocked()
	case c.state == ConnectionStateDisconnected:
		c.state = ConnectionStateConnecting
	}
}

// ScheduleFlush queues a batched voice+volume push to the bound node.
func (c *Connection) ScheduleFlush() {
	c.mu.Lock()
	c.scheduleFlushLocked()
	c.mu.Unlock()
}

func (c *Connection) scheduleFlushLocked() {
	if c.state != ConnectionStateConnected || c.flushPending {
		return
	}
	c.flushPending = true
	c.flushTimer = time.AfterFunc(voiceFlushDelay, c.flush)
}

// flush pushes the latest voice block and volume in one update, retrying
// transient failures. On exhaustion the state stays Connected and the
// error is surfaced; recovery is the player's concern.
func (c *Connection) flush() {
	c.mu.Lock()
	c.flushPending = false
	if c.state != ConnectionStateConnected {
		c.mu.Unlock()
		return
	}
	voice := c.voice
	c.mu.Unlock()

	volume := c.player.Volume()
	update := lavalink.PlayerUpdate{Voice: &voice, Volume: &volume}

	var lastErr error
	for attempt := 0; attempt < voiceFlushRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, voiceFlushBackoffBase, voiceFlushBackoffMax, 0)
			select {
			case <-time.After(delay):
			case <-c.player.ctx.Done():
				return
			}
		}
		lastErr = c.player.pushUpdate(update)
		if lastErr == nil {
			c.logger.Debug("voice binding pushed", "endpoint", voice.Endpoint)
			return
		}
	}

	c.logger.Error("failed to push voice binding", "error", lastErr)
	c.player.client.emitConnectionError(c.player, lastErr)
}

// destroy terminates the binding. Idempotent.
func (c *Connection) destroy() {
	c.mu.Lock()
	if c.state == ConnectionStateDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = ConnectionStateDestroyed
	if c.flushTimer != nil {
		c.flushTimer.Stop()
	}
	c.mu.Unlock()
}

// reset returns the binding to Disconnected so a fresh handshake can run,
// e.g. during voice recovery.
func (c *Connection) reset() {
	c.mu.Lock()
	if c.state == ConnectionStateDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = ConnectionStateDisconnected
	c.voice = lavalink.VoiceState{}
	c.ready = make(chan struct{})
	c.mu.Unlock()
}

// regionFromEndpoint extracts the leading alphabetic run of the endpoint
// hostname ("us-east42.example:443" -> "us-east"), falling back to the
// first dot segment, then to "unknown". Advisory only.
func regionFromEndpoint(endpoint string) string {
	host := endpoint
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return "unknown"
	}

	end := 0
	for end < len(host) {
		ch := host[end]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '-' {
			end++
			continue
		}
		break
	}
	region := strings.Trim(host[:end], "-")
	if region != "" {
		return strings.ToLower(region)
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		return strings.ToLower(host[:i])
	}
	return "unknown"
}
