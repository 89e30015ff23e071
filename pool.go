package lavaflow

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Pool defaults.
const (
	scoreCacheTTL             = 30 * time.Second
	scoreCacheSize            = 64
	defaultRebalanceInterval  = 30 * time.Second
	defaultMigrationThreshold = 1.0
)

// Pool owns the set of node clients, scores them by health, and migrates
// players away from degraded nodes.
type Pool struct {
	client *Client
	logger *slog.Logger

	mu    sync.RWMutex
	nodes map[string]*Node

	scores *ttlCache[string, float64]

	rebalanceStop chan struct{}
	rebalanceOnce sync.Once
}

func newPool(client *Client) *Pool {
	return &Pool{
		client:        client,
		logger:        client.logger,
		nodes:         make(map[string]*Node),
		scores:        newTTLCache[string, float64](scoreCacheTTL, scoreCacheSize),
		rebalanceStop: make(chan struct{}),
	}
}

// Add registers a node and returns it. The node is not yet connected.
func (p *Pool) Add(config NodeConfig) (*Node, error) {
	if config.Name == "" {
		return nil, newValidationError("node", "name must not be empty")
	}
	if config.Address == "" {
		return nil, newValidationError("node", "address must not be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.nodes[config.Name]; exists {
		return nil, newValidationError("node", "duplicate node name %q", config.Name)
	}
	node := newNode(p.client, config)
	p.nodes[config.Name] = node
	return node, nil
}

// Remove destroys a node and drops it from the pool.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	node, ok := p.nodes[name]
	delete(p.nodes, name)
	p.mu.Unlock()
	if ok {
		node.Destroy()
		p.scores.delete(name)
	}
}

// Get returns the node with the given name, or nil.
func (p *Pool) Get(name string) *Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodes[name]
}

// Nodes returns all registered nodes.
func (p *Pool) Nodes() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	nodes := make([]*Node, 0, len(p.nodes))
	for _, node := range p.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// score returns a node's cached health score, computing it on miss.
func (p *Pool) score(node *Node) float64 {
	if cached, ok := p.scores.get(node.Name()); ok {
		return cached
	}
	score := node.Score()
	p.scores.set(node.Name(), score)
	return score
}

// LeastUsed returns the connected nodes sorted ascending by health score.
func (p *Pool) LeastUsed() []*Node {
	var connected []*Node
	for _, node := range p.Nodes() {
		if node.Connected() {
			connected = append(connected, node)
		}
	}
	sort.SliceStable(connected, func(i, j int) bool {
		return p.score(connected[i]) < p.score(connected[j])
	})
	return connected
}

// ForRegion returns connected nodes advertising the given voice region,
// best first. An empty match falls back to LeastUsed.
func (p *Pool) ForRegion(region string) []*Node {
	if region == "" {
		return p.LeastUsed()
	}
	var matched []*Node
	for _, node := range p.LeastUsed() {
		if node.HasRegion(region) {
			matched = append(matched, node)
		}
	}
	if len(matched) == 0 {
		return p.LeastUsed()
	}
	return matched
}

// Best returns the healthiest connected node, or nil if none.
func (p *Pool) Best() *Node {
	nodes := p.LeastUsed()
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Migrate moves a player onto node: rebind, then restart playback there.
// Best effort and idempotent; on failure the player returns to its
// previous node with playback intact.
func (p *Pool) Migrate(player *Player, node *Node) error {
	previous := player.Node()
	if previous == node {
		return nil
	}
	if node == nil || !node.Connected() {
		return ErrNodeNotReady
	}

	player.setNode(node)
	if err := player.Restart(); err != nil {
		player.setNode(previous)
		return err
	}

	p.logger.Info("migrated player",
		"guild_id", player.GuildID(),
		"from", nodeName(previous), "to", node.Name())
	return nil
}

func nodeName(n *Node) string {
	if n == nil {
		return "<none>"
	}
	return n.Name()
}

// Rebalance migrates players whose node scores far worse than the best
// available node.
func (p *Pool) Rebalance() {
	best := p.Best()
	if best == nil {
		return
	}
	bestScore := p.score(best)
	threshold := p.client.config.MigrationThreshold * 100

	for _, player := range p.client.Players() {
		current := player.Node()
		if current == nil {
			continue
		}
		currentScore := float64(maxScore)
		if current.Connected() {
			currentScore = p.score(current)
		}
		if currentScore-bestScore <= threshold {
			continue
		}
		if err := p.Migrate(player, best); err != nil {
			p.logger.Warn("rebalance migration failed",
				"guild_id", player.GuildID(), "error", err)
		}
	}
}

// startRebalancer runs Rebalance periodically until the pool shuts down.
func (p *Pool) startRebalancer(interval time.Duration) {
	if interval <= 0 {
		interval = defaultRebalanceInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Rebalance()
			case <-p.rebalanceStop:
				return
			}
		}
	}()
}

// shutdown stops rebalancing and destroys every node.
func (p *Pool) shutdown() {
	p.rebalanceOnce.Do(func() { close(p.rebalanceStop) })
	for _, node := range p.Nodes() {
		node.Destroy()
	}
}
