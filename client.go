// Package lavaflow orchestrates audio playback across a pool of remote
// audio nodes: it owns one player state machine per guild, binds voice
// credentials between the chat gateway and the chosen node, and migrates
// sessions between nodes on degradation.
package lavaflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
	"golang.org/x/sync/errgroup"
)

// clientName identifies this client to audio nodes.
const clientName = "lavaflow/1.0.0"

// VoiceUpdateFunc sends a gateway voice-channel join (op 4) for the bot.
// A nil channelID leaves the voice channel.
type VoiceUpdateFunc func(guildID snowflake.ID, channelID *snowflake.ID, selfMute, selfDeaf bool) error

// AutoplayResolver derives a follow-up identifier for a finished track.
// Returning an empty identifier means no suggestion.
type AutoplayResolver interface {
	NextFor(ctx context.Context, info lavalink.TrackInfo) (string, error)
}

// Events are the observable callbacks of the client. All fields are
// optional; nil callbacks are skipped. Callbacks run on internal
// goroutines and must not block.
type Events struct {
	NodeReady        func(node *Node, resumed bool)
	NodeDisconnected func(node *Node, err error)
	NodeError        func(node *Node, err error)
	NodeStats        func(node *Node, stats lavalink.Stats)

	PlayerCreate    func(player *Player)
	PlayerDestroy   func(player *Player)
	PlayerMove      func(player *Player, from, to snowflake.ID)
	PlayerError     func(player *Player, err error)
	ConnectionError func(player *Player, err error)

	TrackStart func(player *Player, track lavalink.Track)
	TrackEnd   func(player *Player, track lavalink.Track, reason lavalink.TrackEndReason)
	TrackError func(player *Player, track lavalink.Track, err error)
	TrackStuck func(player *Player, track lavalink.Track, threshold lavalink.Duration)

	SocketClosed func(player *Player, event lavalink.WebSocketClosedEvent)
	QueueEnd     func(player *Player)
}

// Config configures a Client.
type Config struct {
	// UserID is the bot's user id, required for the node handshake and
	// for filtering gateway voice updates.
	UserID snowflake.ID
	// SendVoiceUpdate is the host-provided gateway send callback.
	SendVoiceUpdate VoiceUpdateFunc
	Logger          *slog.Logger
	Events          Events

	// HistoryLimit bounds per-player history; 0 uses the default.
	HistoryLimit int
	// Preload resolves the next queued track in the background.
	Preload bool
	// FadeIn ramps volume from zero over this duration on each play.
	FadeIn time.Duration
	// AutoResume restarts playback after voice websocket closes.
	AutoResume bool
	// StuckThreshold is how long an unmoving position counts as stuck.
	StuckThreshold time.Duration
	// MigrationThreshold scales how much worse a node must score before
	// rebalancing migrates its players.
	MigrationThreshold float64
	// RebalanceInterval is how often the pool rebalances.
	RebalanceInterval time.Duration
	// Autoplay derives follow-up tracks when the queue runs out.
	Autoplay AutoplayResolver
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = defaultStuckThreshold
	}
	if c.MigrationThreshold <= 0 {
		c.MigrationThreshold = defaultMigrationThreshold
	}
	if c.RebalanceInterval <= 0 {
		c.RebalanceInterval = defaultRebalanceInterval
	}
}

// Client is the orchestrator: it owns the node pool and the per-guild
// players, and routes gateway voice packets to them.
type Client struct {
	config Config
	logger *slog.Logger
	userID snowflake.ID
	pool   *Pool

	playersMu sync.RWMutex
	players   map[snowflake.ID]*Player
}

// New creates a Client. UserID and SendVoiceUpdate are required.
func New(config Config) (*Client, error) {
	if config.UserID == 0 {
		return nil, newValidationError("config", "UserID is required")
	}
	if config.SendVoiceUpdate == nil {
		return nil, newValidationError("config", "SendVoiceUpdate is required")
	}
	config.setDefaults()

	c := &Client{
		config:  config,
		logger:  config.Logger,
		userID:  config.UserID,
		players: make(map[snowflake.ID]*Player),
	}
	c.pool = newPool(c)
	c.pool.startRebalancer(config.RebalanceInterval)
	return c, nil
}

// Pool returns the node pool.
func (c *Client) Pool() *Pool { return c.pool }

// UserID returns the bot user id.
func (c *Client) UserID() snowflake.ID { return c.userID }

// AddNode registers a node and connects its event stream. Connection
// failures are returned but the node stays registered and keeps
// reconnecting in the background.
func (c *Client) AddNode(ctx context.Context, config NodeConfig) (*Node, error) {
	node, err := c.pool.Add(config)
	if err != nil {
		return nil, err
	}
	if err := node.Connect(ctx); err != nil {
		return node, err
	}
	return node, nil
}

// AddNodes registers and connects several nodes concurrently.
func (c *Client) AddNodes(ctx context.Context, configs ...NodeConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, config := range configs {
		g.Go(func() error {
			_, err := c.AddNode(gctx, config)
			return err
		})
	}
	return g.Wait()
}

// RemoveNode destroys a node and drops it from the pool.
func (c *Client) RemoveNode(name string) {
	c.pool.Remove(name)
}

// BestNode returns the healthiest connected node, or nil.
func (c *Client) BestNode() *Node {
	return c.pool.Best()
}

// Player returns the player for guildID, or nil.
func (c *Client) Player(guildID snowflake.ID) *Player {
	c.playersMu.RLock()
	defer c.playersMu.RUnlock()
	return c.players[guildID]
}

// Players returns all live players.
func (c *Client) Players() []*Player {
	c.playersMu.RLock()
	defer c.playersMu.RUnlock()
	players := make([]*Player, 0, len(c.players))
	for _, player := range c.players {
		players = append(players, player)
	}
	return players
}

// CreateConnectionOptions parameterize CreateConnection.
type CreateConnectionOptions struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	// Region biases node selection; empty means least-used.
	Region string
	// Node pins the player to a specific node, skipping selection.
	Node     *Node
	SelfDeaf bool
	SelfMute bool
}

// CreateConnection returns the existing player for the guild or creates
// one on the best available node, then issues the gateway voice join.
func (c *Client) CreateConnection(ctx context.Context, opts CreateConnectionOptions) (*Player, error) {
	if opts.GuildID == 0 {
		return nil, newValidationError("guildID", "must not be zero")
	}
	if opts.VoiceChannelID == 0 {
		return nil, newValidationError("voiceChannelID", "must not be zero")
	}

	if existing := c.Player(opts.GuildID); existing != nil {
		return existing, nil
	}

	node := opts.Node
	if node == nil {
		nodes := c.pool.ForRegion(opts.Region)
		if len(nodes) == 0 {
			return nil, ErrNoNodes
		}
		node = nodes[0]
	}

	player := newPlayer(c, node, opts.GuildID, opts.VoiceChannelID, opts.TextChannelID)
	// Deafened by default; explicit options override.
	if opts.SelfDeaf || opts.SelfMute {
		player.selfDeaf = opts.SelfDeaf
		player.selfMute = opts.SelfMute
	}

	c.playersMu.Lock()
	if existing, ok := c.players[opts.GuildID]; ok {
		c.playersMu.Unlock()
		player.cancel()
		return existing, nil
	}
	c.players[opts.GuildID] = player
	c.playersMu.Unlock()

	c.logger.Info("created player",
		"guild_id", opts.GuildID, "node", node.Name(), "region", opts.Region)
	c.emitPlayerCreate(player)

	if err := c.sendVoiceUpdate(opts.GuildID, &opts.VoiceChannelID, player.selfMute, player.selfDeaf); err != nil {
		return player, fmt.Errorf("failed to send voice join: %w", err)
	}
	return player, nil
}

// removePlayer drops a player from the registry. Called from
// Player.Destroy.
func (c *Client) removePlayer(guildID snowflake.ID) {
	c.playersMu.Lock()
	player, ok := c.players[guildID]
	delete(c.players, guildID)
	c.playersMu.Unlock()
	if ok {
		c.emitPlayerDestroy(player)
	}
}

// sendVoiceUpdate forwards a voice join/leave to the host gateway.
func (c *Client) sendVoiceUpdate(guildID snowflake.ID, channelID *snowflake.ID, selfMute, selfDeaf bool) error {
	return c.config.SendVoiceUpdate(guildID, channelID, selfMute, selfDeaf)
}

// OnVoiceStateUpdate routes a gateway voice-state update. Updates for
// users other than the bot are dropped without any state change.
func (c *Client) OnVoiceStateUpdate(update VoiceStateUpdate) {
	if update.UserID != c.userID {
		return
	}
	player := c.Player(update.GuildID)
	if player == nil {
		return
	}
	player.connection.HandleVoiceStateUpdate(update)
}

// OnVoiceServerUpdate routes a gateway voice-server update.
func (c *Client) OnVoiceServerUpdate(update VoiceServerUpdate) {
	player := c.Player(update.GuildID)
	if player == nil {
		return
	}
	player.connection.HandleVoiceServerUpdate(update)
}

// RouteGatewayPacket routes a raw gateway dispatch by type. Unknown types
// are ignored.
func (c *Client) RouteGatewayPacket(packetType string, data json.RawMessage) error {
	switch packetType {
	case "VOICE_STATE_UPDATE":
		var payload struct {
			GuildID   snowflake.ID  `json:"guild_id"`
			UserID    snowflake.ID  `json:"user_id"`
			ChannelID *snowflake.ID `json:"channel_id"`
			SessionID string        `json:"session_id"`
			SelfDeaf  bool          `json:"self_deaf"`
			SelfMute  bool          `json:"self_mute"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("failed to decode voice state update: %w", err)
		}
		c.OnVoiceStateUpdate(VoiceStateUpdate{
			GuildID:   payload.GuildID,
			UserID:    payload.UserID,
			ChannelID: payload.ChannelID,
			SessionID: payload.SessionID,
			SelfDeaf:  payload.SelfDeaf,
			SelfMute:  payload.SelfMute,
		})
	case "VOICE_SERVER_UPDATE":
		var payload struct {
			GuildID  snowflake.ID `json:"guild_id"`
			Endpoint string       `json:"endpoint"`
			Token    string       `json:"token"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("failed to decode voice server update: %w", err)
		}
		c.OnVoiceServerUpdate(VoiceServerUpdate{
			GuildID:  payload.GuildID,
			Endpoint: payload.Endpoint,
			Token:    payload.Token,
		})
	}
	return nil
}

// SearchResult is the typed outcome of a Resolve call.
type SearchResult struct {
	LoadType lavalink.LoadType
	Tracks   []lavalink.Track
	Playlist *lavalink.Playlist
}

// ResolveOptions parameterize Resolve.
type ResolveOptions struct {
	// Query is a URL, a search text, or a raw platform identifier.
	Query string
	// Source selects the search prefix for non-URL queries, e.g.
	// "ytsearch". Empty defaults to YouTube search.
	Source string
	// Node selects which node performs the load; nil uses the best.
	Node *Node
}

// Fallback track-page prefixes tried when a raw platform id loads empty.
var resolveFallbacks = []string{
	"https://open.spotify.com/track/",
	"https://www.youtube.com/watch?v=",
}

// defaultSearchSource prefixes non-URL queries.
const defaultSearchSource = "ytsearch"

// Resolve loads tracks for a query. URLs pass through unchanged;
// other queries get a source-scoped search prefix. An empty result for a
// non-URL query falls back through platform track-page URLs.
func (c *Client) Resolve(ctx context.Context, opts ResolveOptions) (*SearchResult, error) {
	if opts.Query == "" {
		return nil, newValidationError("query", "must not be empty")
	}
	node := opts.Node
	if node == nil || !node.Connected() {
		node = c.BestNode()
	}
	if node == nil {
		return nil, ErrNoNodes
	}

	isURL := strings.Contains(opts.Query, "://")
	identifier := opts.Query
	if !isURL {
		source := opts.Source
		if source == "" {
			source = defaultSearchSource
		}
		identifier = source + ":" + opts.Query
	}

	result, err := c.loadTracks(ctx, node, identifier)
	if err != nil {
		return nil, err
	}
	if result.LoadType == lavalink.LoadTypeEmpty && !isURL && !strings.ContainsAny(opts.Query, " \t") {
		for _, prefix := range resolveFallbacks {
			fallback, err := c.loadTracks(ctx, node, prefix+opts.Query)
			if err != nil {
				continue
			}
			if fallback.LoadType != lavalink.LoadTypeEmpty {
				return fallback, nil
			}
		}
	}
	return result, nil
}

func (c *Client) loadTracks(ctx context.Context, node *Node, identifier string) (*SearchResult, error) {
	raw, err := node.Rest().LoadTracks(ctx, identifier)
	if err != nil {
		return nil, err
	}
	decoded, err := raw.Decode()
	if err != nil {
		var exception lavalink.Exception
		if ok := asException(err, &exception); ok {
			return nil, &ContractError{Op: "loadtracks", Err: exception}
		}
		return nil, err
	}

	result := &SearchResult{LoadType: raw.LoadType}
	switch data := decoded.(type) {
	case lavalink.Track:
		result.Tracks = []lavalink.Track{data}
	case lavalink.Playlist:
		playlist := data
		result.Playlist = &playlist
		result.Tracks = data.Tracks
	case []lavalink.Track:
		result.Tracks = data
	}
	return result, nil
}

func asException(err error, target *lavalink.Exception) bool {
	exception, ok := err.(lavalink.Exception)
	if ok {
		*target = exception
	}
	return ok
}

// Shutdown destroys all players (leaving their voice channels) and tears
// down every node.
func (c *Client) Shutdown() {
	for _, player := range c.Players() {
		if err := player.Destroy(true); err != nil {
			c.logger.Warn("failed to destroy player during shutdown",
				"guild_id", player.GuildID(), "error", err)
		}
	}
	c.pool.shutdown()
	c.logger.Info("client shut down")
}

// --- node callbacks ------------------------------------------------------

// onNodeReady reconciles players bound to the node: held batches flush,
// and playing players have their last known state re-pushed.
func (c *Client) onNodeReady(node *Node, resumedSameSession bool) {
	c.emitNodeReady(node, resumedSameSession)

	for _, player := range c.Players() {
		if player.Node() != node {
			continue
		}
		go func(p *Player) {
			if p.Current() != nil {
				if err := p.Restart(); err != nil {
					c.logger.Warn("failed to restart player after node ready",
						"guild_id", p.GuildID(), "error", err)
				}
			}
			p.flushNow()
		}(player)
	}
}

func (c *Client) onNodeDisconnected(node *Node, err error) {
	c.emitNodeDisconnected(node, err)
}

func (c *Client) onNodeStats(node *Node, stats lavalink.Stats) {
	c.emitNodeStats(node, stats)
}

// dispatchPlayerUpdate routes a state tick to its player. Ticks for
// unknown guilds, or from a node the player is no longer bound to, are
// dropped.
func (c *Client) dispatchPlayerUpdate(node *Node, msg lavalink.PlayerUpdateMessage) {
	player := c.Player(msg.GuildID)
	if player == nil {
		c.logger.Debug("dropping player update for unknown guild", "guild_id", msg.GuildID)
		return
	}
	if player.Node() != node {
		return
	}
	player.handlePlayerUpdate(msg.State)
}

// dispatchEvent routes a per-guild node event to its player.
func (c *Client) dispatchEvent(node *Node, event lavalink.Event) {
	player := c.Player(event.EventGuildID())
	if player == nil {
		c.logger.Debug("dropping event for unknown guild",
			"guild_id", event.EventGuildID())
		return
	}
	if player.Node() != node {
		// Migration fence: the old node's events no longer apply.
		return
	}

	switch e := event.(type) {
	case lavalink.TrackStartEvent:
		player.handleTrackStart(e)
	case lavalink.TrackEndEvent:
		player.handleTrackEnd(e)
	case lavalink.TrackExceptionEvent:
		player.handleTrackException(e)
	case lavalink.TrackStuckEvent:
		player.handleTrackStuck(e)
	case lavalink.WebSocketClosedEvent:
		player.handleWebSocketClosed(e)
	case lavalink.UnknownEvent:
		c.logger.Debug("unhandled node event", "type", e.Type, "guild_id", e.GuildID)
	}
}

// --- event emission ------------------------------------------------------

func (c *Client) emitNodeReady(node *Node, resumed bool) {
	if f := c.config.Events.NodeReady; f != nil {
		f(node, resumed)
	}
}

func (c *Client) emitNodeDisconnected(node *Node, err error) {
	if f := c.config.Events.NodeDisconnected; f != nil {
		f(node, err)
	}
}

func (c *Client) emitNodeError(node *Node, err error) {
	if f := c.config.Events.NodeError; f != nil {
		f(node, err)
	}
}

func (c *Client) emitNodeStats(node *Node, stats lavalink.Stats) {
	if f := c.config.Events.NodeStats; f != nil {
		f(node, stats)
	}
}

func (c *Client) emitPlayerCreate(player *Player) {
	if f := c.config.Events.PlayerCreate; f != nil {
		f(player)
	}
}

func (c *Client) emitPlayerDestroy(player *Player) {
	if f := c.config.Events.PlayerDestroy; f != nil {
		f(player)
	}
}

func (c *Client) emitPlayerMove(player *Player, from, to snowflake.ID) {
	if f := c.config.Events.PlayerMove; f != nil {
		f(player, from, to)
	}
}

func (c *Client) emitPlayerError(player *Player, err error) {
	if f := c.config.Events.PlayerError; f != nil {
		f(player, err)
	}
}

func (c *Client) emitConnectionError(player *Player, err error) {
	if f := c.config.Events.ConnectionError; f != nil {
		f(player, err)
	}
}

func (c *Client) emitTrackStart(player *Player, track lavalink.Track) {
	if f := c.config.Events.TrackStart; f != nil {
		f(player, track)
	}
}

func (c *Client) emitTrackEnd(player *Player, track lavalink.Track, reason lavalink.TrackEndReason) {
	if f := c.config.Events.TrackEnd; f != nil {
		f(player, track, reason)
	}
}

func (c *Client) emitTrackError(player *Player, track lavalink.Track, err error) {
	if f := c.config.Events.TrackError; f != nil {
		f(player, track, err)
	}
}

func (c *Client) emitTrackStuck(player *Player, track lavalink.Track, threshold lavalink.Duration) {
	if f := c.config.Events.TrackStuck; f != nil {
		f(player, track, threshold)
	}
}

func (c *Client) emitSocketClosed(player *Player, event lavalink.WebSocketClosedEvent) {
	if f := c.config.Events.SocketClosed; f != nil {
		f(player, event)
	}
}

func (c *Client) emitQueueEnd(player *Player) {
	if f := c.config.Events.QueueEnd; f != nil {
		f(player)
	}
}
