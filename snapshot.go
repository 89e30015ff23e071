package lavaflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
)

// PlayerSnapshot is the serializable state of one player, keyed by guild.
// Timestamps are wall-clock milliseconds and informational only; restores
// never shift positions by elapsed time.
type PlayerSnapshot struct {
	GuildID        snowflake.ID `json:"guildId"`
	Node           string       `json:"node,omitempty"`
	VoiceChannelID snowflake.ID `json:"voiceChannelId"`
	TextChannelID  snowflake.ID `json:"textChannelId,omitempty"`

	Current  *lavalink.Track   `json:"current,omitempty"`
	Position lavalink.Duration `json:"position"`
	Volume   int               `json:"volume"`
	Loop     string            `json:"loop"`
	Autoplay bool              `json:"autoplay,omitempty"`
	Paused   bool              `json:"paused,omitempty"`
	SelfDeaf bool              `json:"selfDeaf"`
	SelfMute bool              `json:"selfMute,omitempty"`

	Queue        []lavalink.Track                `json:"queue,omitempty"`
	History      []HistoryEntry                  `json:"history,omitempty"`
	Filters      filtersSnapshot                 `json:"filters"`
	SponsorBlock lavalink.SponsorBlockCategories `json:"sponsorBlock,omitempty"`

	SavedAt int64 `json:"savedAt"`
}

// ToSnapshot captures the player's restorable state.
func (p *Player) ToSnapshot() PlayerSnapshot {
	p.mu.Lock()
	snapshot := PlayerSnapshot{
		GuildID:        p.guildID,
		Node:           nodeNameOrEmpty(p.node),
		VoiceChannelID: p.voiceChannelID,
		TextChannelID:  p.textChannelID,
		Position:       p.position,
		Volume:         p.volume,
		Loop:           p.loop.String(),
		Autoplay:       p.autoplay,
		Paused:         p.paused,
		SelfDeaf:       p.selfDeaf,
		SelfMute:       p.selfMute,
		SponsorBlock:   p.sponsorBlock,
		SavedAt:        time.Now().UnixMilli(),
	}
	if p.current != nil {
		track := *p.current
		snapshot.Current = &track
	}
	p.mu.Unlock()

	snapshot.Queue = p.queue.Snapshot()
	snapshot.History = p.history.Entries()
	snapshot.Filters = p.filters.snapshot()
	return snapshot
}

func nodeNameOrEmpty(n *Node) string {
	if n == nil {
		return ""
	}
	return n.Name()
}

// restoreSnapshot applies a snapshot to a freshly created player. Positions
// beyond the track length clamp to the length.
func (p *Player) restoreSnapshot(s PlayerSnapshot) {
	loop, err := ParseLoopMode(s.Loop)
	if err != nil {
		loop = LoopNone
	}
	position := s.Position
	if s.Current != nil && s.Current.Info.Length > 0 && position > s.Current.Info.Length {
		position = s.Current.Info.Length
	}
	volume := s.Volume
	if volume < 0 || volume > maxVolume {
		volume = defaultVolume
	}

	p.mu.Lock()
	p.current = s.Current
	p.position = position
	p.volume = volume
	p.loop = loop
	p.autoplay = s.Autoplay
	p.paused = s.Paused
	p.selfDeaf = s.SelfDeaf
	p.selfMute = s.SelfMute
	p.sponsorBlock = s.SponsorBlock
	p.mu.Unlock()

	p.queue.restore(s.Queue)
	p.history.restore(s.History)
	p.filters.restore(s.Filters)
	p.refreshResume()
}

// SavePlayersState serializes every live player to path as JSON keyed by
// guild id. The write is atomic: a temp file in the same directory is
// renamed over the target.
func (c *Client) SavePlayersState(path string) error {
	snapshots := make(map[string]PlayerSnapshot)
	for _, player := range c.Players() {
		snapshot := player.ToSnapshot()
		snapshots[snapshot.GuildID.String()] = snapshot
	}

	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal player state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write player state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	c.logger.Info("saved player state", "path", path, "players", len(snapshots))
	return nil
}

// LoadPlayersState recreates players from a state file written by
// SavePlayersState, issuing voice joins and re-pushing playback state.
// A missing file is not an error. Per-player failures are logged and
// skipped.
func (c *Client) LoadPlayersState(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var snapshots map[string]PlayerSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return fmt.Errorf("failed to decode state file: %w", err)
	}

	for _, snapshot := range snapshots {
		if err := c.restorePlayer(ctx, snapshot); err != nil {
			c.logger.Warn("failed to restore player",
				"guild_id", snapshot.GuildID, "error", err)
		}
	}
	return nil
}

func (c *Client) restorePlayer(ctx context.Context, s PlayerSnapshot) error {
	if s.GuildID == 0 || s.VoiceChannelID == 0 {
		return newValidationError("snapshot", "missing guild or voice channel id")
	}
	if existing := c.Player(s.GuildID); existing != nil {
		return nil
	}

	node := c.pool.Get(s.Node)
	if node == nil || !node.Connected() {
		node = c.BestNode()
	}
	if node == nil {
		return ErrNoNodes
	}

	player := newPlayer(c, node, s.GuildID, s.VoiceChannelID, s.TextChannelID)
	player.restoreSnapshot(s)

	c.playersMu.Lock()
	c.players[s.GuildID] = player
	c.playersMu.Unlock()
	c.emitPlayerCreate(player)

	if err := c.sendVoiceUpdate(s.GuildID, &s.VoiceChannelID, s.SelfMute, s.SelfDeaf); err != nil {
		return fmt.Errorf("failed to send voice join: %w", err)
	}

	// Playback resumes once the voice binding completes.
	go func() {
		waitCtx, cancel := context.WithTimeout(player.ctx, 10*time.Second)
		defer cancel()
		if err := player.connection.AwaitConnected(waitCtx); err != nil {
			c.logger.Warn("restored player never connected", "guild_id", s.GuildID)
			return
		}
		if err := player.Restart(); err != nil {
			c.logger.Warn("failed to resume restored player",
				"guild_id", s.GuildID, "error", err)
		}
	}()
	return nil
}
