package lavaflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lavaflow/lavaflow/lavalink"
)

// NodeState describes the lifecycle of a node connection. Open means the
// transport is established; Ready means the node has sent its session
// identity.
type NodeState int

const (
	NodeStateDisconnected NodeState = iota
	NodeStateConnecting
	NodeStateOpen
	NodeStateReady
)

// String returns a human-readable representation of the node state.
func (s NodeState) String() string {
	switch s {
	case NodeStateConnecting:
		return "connecting"
	case NodeStateOpen:
		return "open"
	case NodeStateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Node connection defaults.
const (
	defaultReconnectTries   = 10
	defaultReconnectTimeout = time.Second
	reconnectBackoffMax     = 30 * time.Second
	reconnectBackoffJitter  = 250 * time.Millisecond
	defaultSessionTimeout   = 60 // seconds, node-side resume window
	infoFetchTimeout        = 5 * time.Second
	pingInterval            = 30 * time.Second
	pingWindowSize          = 10
)

// NodeConfig configures one audio node connection.
type NodeConfig struct {
	Name     string   `env:"NAME"`
	Address  string   `env:"ADDRESS"` // host:port
	Password string   `env:"PASSWORD"`
	Secure   bool     `env:"SECURE"`
	Regions  []string `env:"REGIONS"` // advertised voice regions, e.g. "us-east"

	ReconnectTries   int           `env:"RECONNECT_TRIES"`
	ReconnectTimeout time.Duration `env:"RECONNECT_TIMEOUT"` // backoff base
	SessionTimeout   int           `env:"SESSION_TIMEOUT"`   // seconds
}

func (c *NodeConfig) setDefaults() {
	if c.ReconnectTries == 0 {
		c.ReconnectTries = defaultReconnectTries
	}
	if c.ReconnectTimeout == 0 {
		c.ReconnectTimeout = defaultReconnectTimeout
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = defaultSessionTimeout
	}
}

func (c NodeConfig) restURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.Address
}

func (c NodeConfig) wsURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.Address + apiVersionPrefix + "/websocket"
}

// Node is one live connection to an audio node: event stream in, REST out.
type Node struct {
	config NodeConfig
	client *Client
	rest   *RestClient
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	conn              *websocket.Conn
	state             NodeState
	sessionID         string
	info              *lavalink.Info
	stats             *lavalink.Stats
	statsAt           time.Time
	pings             []time.Duration
	lastPingAt        time.Time
	reconnectAttempts int
	destroyed         bool
}

func newNode(client *Client, config NodeConfig) *Node {
	config.setDefaults()
	logger := client.logger.With("node", config.Name)
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		config: config,
		client: client,
		rest:   NewRestClient(config.restURL(), config.Password, logger),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name returns the configured node name.
func (n *Node) Name() string { return n.config.Name }

// Config returns the node configuration.
func (n *Node) Config() NodeConfig { return n.config }

// Rest returns the node's REST transport.
func (n *Node) Rest() *RestClient { return n.rest }

// State returns the current connection state.
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Connected reports whether the node has an identified session.
func (n *Node) Connected() bool {
	return n.State() == NodeStateReady
}

// SessionID returns the node session id, or empty before Ready.
func (n *Node) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

// Stats returns the last stats snapshot and its freshness timestamp.
func (n *Node) Stats() (*lavalink.Stats, time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats, n.statsAt
}

// Info returns the node's version information, if fetched.
func (n *Node) Info() *lavalink.Info {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.info
}

// Ping returns the average of the rolling ping window.
func (n *Node) Ping() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pings) == 0 {
		return 0
	}
	var total time.Duration
	for _, p := range n.pings {
		total += p
	}
	return total / time.Duration(len(n.pings))
}

// HasRegion reports whether the node advertises the given voice region.
func (n *Node) HasRegion(region string) bool {
	region = strings.ToLower(region)
	for _, r := range n.config.Regions {
		if strings.ToLower(r) == region {
			return true
		}
	}
	return false
}

// Connect dials the node's event stream and waits for the transport to be
// established. The ready message arrives asynchronously on the read pump.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return ErrNodeDestroyed
	}
	if n.state != NodeStateDisconnected {
		n.mu.Unlock()
		return fmt.Errorf("node %s is already %s", n.config.Name, n.state)
	}
	n.state = NodeStateConnecting
	sessionID := n.sessionID
	n.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", n.config.Password)
	header.Set("User-Id", n.client.userID.String())
	header.Set("Client-Name", clientName)
	if sessionID != "" {
		header.Set("Session-Id", sessionID)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, n.config.wsURL(), header)
	if err != nil {
		n.mu.Lock()
		n.state = NodeStateDisconnected
		n.mu.Unlock()
		return fmt.Errorf("failed to dial node %s: %w", n.config.Name, err)
	}

	n.mu.Lock()
	n.conn = conn
	n.state = NodeStateOpen
	n.mu.Unlock()

	conn.SetPongHandler(n.onPong)

	go n.readLoop(conn)
	go n.pingLoop(conn)
	go n.fetchInfo()

	n.logger.Info("node transport established", "address", n.config.Address)
	return nil
}

// Destroy tears down the connection and cancels all per-node work.
func (n *Node) Destroy() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	conn := n.conn
	n.conn = nil
	n.state = NodeStateDisconnected
	n.mu.Unlock()

	n.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	n.logger.Info("node destroyed")
}

// readLoop drains the event stream until the connection closes.
// Fragmented frames are reassembled by ReadMessage before parsing.
func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.onClose(conn, err)
			return
		}
		msg, err := lavalink.UnmarshalMessage(data)
		if err != nil {
			// Protocol errors are logged and dropped; the stream survives.
			n.logger.Warn("failed to decode node message", "error", err)
			continue
		}
		n.handleMessage(msg)
	}
}

func (n *Node) handleMessage(msg lavalink.Message) {
	switch data := msg.Data.(type) {
	case lavalink.ReadyMessage:
		n.onReady(data)
	case lavalink.Stats:
		n.mu.Lock()
		n.stats = &data
		n.statsAt = time.Now()
		n.mu.Unlock()
		n.client.onNodeStats(n, data)
	case lavalink.PlayerUpdateMessage:
		n.recordPing(time.Duration(data.State.Ping) * time.Millisecond)
		n.client.dispatchPlayerUpdate(n, data)
	case lavalink.Event:
		n.client.dispatchEvent(n, data)
	}
}

func (n *Node) onReady(ready lavalink.ReadyMessage) {
	n.mu.Lock()
	previousSession := n.sessionID
	n.sessionID = ready.SessionID
	n.state = NodeStateReady
	n.reconnectAttempts = 0
	n.mu.Unlock()

	n.logger.Info("node ready", "session_id", ready.SessionID, "resumed", ready.Resumed)

	resumedSameSession := ready.Resumed && previousSession == ready.SessionID
	if !resumedSameSession {
		// A fresh session needs its resume window configured. The PATCH
		// runs off the read pump so a slow node never delays the first
		// event dispatch.
		go n.configureResume(ready.SessionID)
	}
	n.client.onNodeReady(n, resumedSameSession)
}

// configureResume asks the node to hold the session across short
// disconnects. Skipped for nodes that do not advertise a resumable API
// version; failure is non-fatal.
func (n *Node) configureResume(sessionID string) {
	if info := n.Info(); info != nil && info.Version.Major > 0 && info.Version.Major < 4 {
		n.logger.Debug("node does not support session resuming",
			"version", info.Version.Semver)
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.rest.requestTimeout)
	defer cancel()
	resuming := true
	timeout := n.config.SessionTimeout
	if _, err := n.rest.UpdateSession(ctx, sessionID, lavalink.SessionUpdate{
		Resuming: &resuming,
		Timeout:  &timeout,
	}); err != nil {
		n.logger.Warn("failed to configure session resuming", "error", err)
	}
}

func (n *Node) onClose(conn *websocket.Conn, err error) {
	n.mu.Lock()
	// A stale read loop from a previous connection must not disturb the
	// current one.
	if n.conn != conn {
		n.mu.Unlock()
		return
	}
	n.conn = nil
	n.state = NodeStateDisconnected
	destroyed := n.destroyed
	n.reconnectAttempts++
	attempts := n.reconnectAttempts
	n.mu.Unlock()

	_ = conn.Close()
	if destroyed {
		return
	}

	n.logger.Warn("node connection closed", "error", err, "attempt", attempts)
	n.client.onNodeDisconnected(n, err)

	go n.reconnectLoop(attempts)
}

// reconnectLoop keeps dialing with exponential backoff until success,
// exhaustion of the configured tries, or destroy.
func (n *Node) reconnectLoop(attempts int) {
	for {
		if attempts > n.config.ReconnectTries {
			n.logger.Error("node reconnect attempts exhausted", "tries", n.config.ReconnectTries)
			n.client.emitNodeError(n, fmt.Errorf("reconnect attempts exhausted after %d tries", n.config.ReconnectTries))
			return
		}

		delay := backoffDelay(attempts-1, n.config.ReconnectTimeout, reconnectBackoffMax, reconnectBackoffJitter)
		n.logger.Info("scheduling node reconnect", "delay", delay, "attempt", attempts)
		select {
		case <-time.After(delay):
		case <-n.ctx.Done():
			return
		}

		err := n.Connect(n.ctx)
		if err == nil {
			return
		}
		n.logger.Warn("node reconnect failed", "error", err)

		n.mu.Lock()
		n.reconnectAttempts++
		attempts = n.reconnectAttempts
		destroyed := n.destroyed
		n.mu.Unlock()
		if destroyed {
			return
		}
	}
}

// pingLoop measures socket round-trip time while the connection lives.
func (n *Node) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.mu.Lock()
			current := n.conn
			n.lastPingAt = time.Now()
			n.mu.Unlock()
			if current != conn {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) onPong(string) error {
	n.mu.Lock()
	if !n.lastPingAt.IsZero() {
		n.mu.Unlock()
		n.recordPing(time.Since(n.lastPingAt))
		return nil
	}
	n.mu.Unlock()
	return nil
}

func (n *Node) recordPing(ping time.Duration) {
	if ping < 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pings = append(n.pings, ping)
	if len(n.pings) > pingWindowSize {
		n.pings = n.pings[len(n.pings)-pingWindowSize:]
	}
}

// fetchInfo grabs node version information. Failure is non-fatal.
func (n *Node) fetchInfo() {
	ctx, cancel := context.WithTimeout(n.ctx, infoFetchTimeout)
	defer cancel()
	info, err := n.rest.GetInfo(ctx)
	if err != nil {
		n.logger.Warn("failed to fetch node info", "error", err)
		return
	}
	n.mu.Lock()
	n.info = info
	n.mu.Unlock()
	n.logger.Debug("fetched node info", "version", info.Version.Semver)
}

// Penalties computes the load penalty from the last stats snapshot:
// playing players, normalized system load, and frame deficit all raise it.
func (n *Node) Penalties() float64 {
	n.mu.Lock()
	stats := n.stats
	n.mu.Unlock()
	if stats == nil {
		return 0
	}

	penalties := float64(stats.PlayingPlayers) + float64(stats.Players)
	if stats.CPU.Cores > 0 {
		penalties += stats.CPU.SystemLoad / float64(stats.CPU.Cores) * 10
	}
	if stats.FrameStats != nil && stats.FrameStats.Deficit > 0 {
		penalties += float64(stats.FrameStats.Deficit) * 2.5
	}
	return penalties
}

// Score computes the composite health score; lower is better. Disconnected
// nodes score maxScore so they never win selection.
func (n *Node) Score() float64 {
	if !n.Connected() {
		return maxScore
	}

	n.mu.Lock()
	stats := n.stats
	n.mu.Unlock()

	score := n.Penalties() * 10
	score += float64(n.Ping().Milliseconds()) * 0.1
	if stats != nil {
		score += stats.CPU.SystemLoad * 100
		if stats.Memory.Allocated > 0 {
			score += float64(stats.Memory.Used) / float64(stats.Memory.Allocated) * 100 * 0.5
		}
		score += float64(stats.Players) * 2
		score += float64(stats.PlayingPlayers) * 5
	}
	return score
}

// maxScore sorts disconnected or unknown nodes last.
const maxScore = 1 << 30
