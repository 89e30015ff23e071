package lavaflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
)

func TestPlayerSnapshotRoundTrip(t *testing.T) {
	player := newTestPlayer(t)

	current := makeTrack("a", "A", "x", 3*lavalink.Minute)
	player.mu.Lock()
	player.current = &current
	player.position = lavalink.Minute
	player.volume = 70
	player.loop = LoopQueue
	player.autoplay = true
	player.mu.Unlock()
	player.Queue().Add(makeTrack("b", "B", "x", 0), makeTrack("c", "C", "y", 0))
	player.History().Record(makeTrack("z", "Z", "x", 0))
	player.Filters().SetNightcore(true)

	snapshot := player.ToSnapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	var decoded PlayerSnapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}

	restored := newTestPlayer(t)
	restored.restoreSnapshot(decoded)

	if current := restored.Current(); current == nil || current.Info.Identifier != "a" {
		t.Fatalf("Current() = %v, want a", current)
	}
	if restored.Position() != lavalink.Minute {
		t.Errorf("Position() = %v, want 1 minute", restored.Position())
	}
	if restored.Volume() != 70 {
		t.Errorf("Volume() = %d, want 70", restored.Volume())
	}
	if restored.Loop() != LoopQueue {
		t.Errorf("Loop() = %s, want queue", restored.Loop())
	}
	if !restored.Autoplay() {
		t.Error("autoplay flag should survive the round trip")
	}
	if got := identifiers(restored.Queue().Tracks()); !equalStrings(got, []string{"b", "c"}) {
		t.Errorf("queue = %v, want [b c]", got)
	}
	if entries := restored.History().Entries(); len(entries) != 1 || entries[0].Track.Info.Identifier != "z" {
		t.Errorf("history = %v, want [z]", entries)
	}
	if restored.Filters().Current().Timescale == nil {
		t.Error("filter state should survive the round trip")
	}
}

func TestRestoreSnapshotSanitizesState(t *testing.T) {
	current := makeTrack("a", "A", "x", lavalink.Minute)
	snapshot := PlayerSnapshot{
		GuildID:        100,
		VoiceChannelID: 200,
		Current:        &current,
		Position:       10 * lavalink.Minute,
		Volume:         9000,
		Loop:           "bogus",
	}

	player := newTestPlayer(t)
	player.restoreSnapshot(snapshot)

	if player.Position() != lavalink.Minute {
		t.Errorf("Position() = %v, want clamped to track length", player.Position())
	}
	if player.Volume() != defaultVolume {
		t.Errorf("Volume() = %d, want default for out-of-range input", player.Volume())
	}
	if player.Loop() != LoopNone {
		t.Errorf("Loop() = %s, want none for unknown input", player.Loop())
	}
}

func TestSaveAndLoadPlayersState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.json")

	client := newTestClient(t)
	addFabricatedNode(t, client, "main", 0)
	player := newTestPlayerOn(t, client, client.Pool().Get("main"))
	player.Queue().Add(makeTrack("b", "B", "x", 0))
	_ = player.SetLoop(LoopTrack)

	if err := client.SavePlayersState(path); err != nil {
		t.Fatalf("SavePlayersState() error = %v", err)
	}

	var onDisk map[string]PlayerSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	saved, ok := onDisk[player.guildID.String()]
	if !ok {
		t.Fatalf("state file keys = %v, want guild %s", mapKeys(onDisk), player.guildID)
	}
	if saved.Node != "main" || saved.Loop != "track" || len(saved.Queue) != 1 {
		t.Errorf("snapshot = %+v", saved)
	}

	// Restore into a fresh client backed by the same node pool layout.
	joins := 0
	restoredClient := newTestClientWith(t, Config{SendVoiceUpdate: func(_ snowflake.ID, channelID *snowflake.ID, _, _ bool) error {
		if channelID != nil {
			joins++
		}
		return nil
	}})
	addFabricatedNode(t, restoredClient, "main", 0)

	if err := restoredClient.LoadPlayersState(context.Background(), path); err != nil {
		t.Fatalf("LoadPlayersState() error = %v", err)
	}
	restored := restoredClient.Player(player.guildID)
	if restored == nil {
		t.Fatal("player should be recreated from the state file")
	}
	if restored.Node() == nil || restored.Node().Name() != "main" {
		t.Error("player should rebind to the saved node")
	}
	if restored.Loop() != LoopTrack || restored.Queue().Len() != 1 {
		t.Errorf("restored state loop=%s queue=%d", restored.Loop(), restored.Queue().Len())
	}
	if joins != 1 {
		t.Errorf("voice joins = %d, want 1", joins)
	}

	// Loading again is a no-op for guilds that already have a player.
	if err := restoredClient.LoadPlayersState(context.Background(), path); err != nil {
		t.Fatalf("second LoadPlayersState() error = %v", err)
	}
	if joins != 1 {
		t.Errorf("voice joins after reload = %d, want 1", joins)
	}
}

func TestLoadPlayersStateMissingFile(t *testing.T) {
	client := newTestClient(t)
	path := filepath.Join(t.TempDir(), "absent.json")
	if err := client.LoadPlayersState(context.Background(), path); err != nil {
		t.Errorf("missing state file should not be an error, got %v", err)
	}
}

func TestLoadPlayersStateSkipsBrokenEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.json")
	state := map[string]PlayerSnapshot{
		// No voice channel, cannot be restored.
		"1": {GuildID: 1, SavedAt: time.Now().UnixMilli()},
		"2": {GuildID: 2, VoiceChannelID: 20, SavedAt: time.Now().UnixMilli()},
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write error = %v", err)
	}

	client := newTestClient(t)
	addFabricatedNode(t, client, "main", 0)
	if err := client.LoadPlayersState(context.Background(), path); err != nil {
		t.Fatalf("LoadPlayersState() error = %v", err)
	}
	if client.Player(1) != nil {
		t.Error("entry without a voice channel must be skipped")
	}
	if client.Player(2) == nil {
		t.Error("valid entry should still be restored")
	}
}

func mapKeys(m map[string]PlayerSnapshot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
