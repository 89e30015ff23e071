package lavaflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without UserID should fail")
	}
	if _, err := New(Config{UserID: testBotUserID}); err == nil {
		t.Error("New() without SendVoiceUpdate should fail")
	}
}

func TestClientDropsForeignVoiceStates(t *testing.T) {
	client := newTestClient(t)
	player := newTestPlayerOn(t, client, nil)

	otherUser := snowflake.ID(555)
	client.OnVoiceStateUpdate(VoiceStateUpdate{
		GuildID:   player.guildID,
		UserID:    otherUser,
		ChannelID: nil, // would destroy the player if it were the bot
		SessionID: "sess",
	})

	if player.Destroyed() {
		t.Error("a non-bot voice update must not touch player state")
	}
	if player.Connection().State() != ConnectionStateDisconnected {
		t.Error("a non-bot voice update must not advance the binding")
	}
}

func TestClientRouteGatewayPacket(t *testing.T) {
	client := newTestClient(t)
	player := newTestPlayerOn(t, client, nil)

	statePayload := []byte(`{"guild_id":"100","user_id":"` + testBotUserID.String() + `","channel_id":"200","session_id":"gw-sess","self_deaf":true}`)
	if err := client.RouteGatewayPacket("VOICE_STATE_UPDATE", statePayload); err != nil {
		t.Fatalf("RouteGatewayPacket(state) error = %v", err)
	}
	serverPayload := []byte(`{"guild_id":"100","endpoint":"us-east1.example.com:443","token":"tok"}`)
	if err := client.RouteGatewayPacket("VOICE_SERVER_UPDATE", serverPayload); err != nil {
		t.Fatalf("RouteGatewayPacket(server) error = %v", err)
	}

	if player.Connection().State() != ConnectionStateConnected {
		t.Errorf("binding state = %s, want connected", player.Connection().State())
	}

	if err := client.RouteGatewayPacket("PRESENCE_UPDATE", []byte(`{}`)); err != nil {
		t.Errorf("unknown packet types should be ignored, got %v", err)
	}
}

func TestClientEventFenceAfterMigration(t *testing.T) {
	client := newTestClient(t)
	boundNode := addFabricatedNode(t, client, "bound", 0)
	staleNode := addFabricatedNode(t, client, "stale", 0)
	player := newTestPlayerOn(t, client, boundNode)

	track := makeTrack("a", "A", "x", 0)
	player.mu.Lock()
	player.current = &track
	player.mu.Unlock()

	// Events from a node the player is no longer bound to are dropped.
	client.dispatchEvent(staleNode, lavalink.TrackEndEvent{
		GuildID: player.guildID, Track: track, Reason: lavalink.TrackEndReasonFinished,
	})
	if player.Current() == nil {
		t.Error("stale node event must not mutate the player")
	}

	client.dispatchEvent(boundNode, lavalink.TrackEndEvent{
		GuildID: player.guildID, Track: track, Reason: lavalink.TrackEndReasonFinished,
	})
	if player.Current() != nil {
		t.Error("bound node event should apply")
	}
}

func TestClientPlayerUpdateFence(t *testing.T) {
	client := newTestClient(t)
	boundNode := addFabricatedNode(t, client, "bound", 0)
	staleNode := addFabricatedNode(t, client, "stale", 0)
	player := newTestPlayerOn(t, client, boundNode)

	client.dispatchPlayerUpdate(staleNode, lavalink.PlayerUpdateMessage{
		GuildID: player.guildID,
		State:   lavalink.PlayerState{Position: 9 * lavalink.Second},
	})
	if player.Position() != 0 {
		t.Error("stale node tick must not move the position")
	}

	client.dispatchPlayerUpdate(boundNode, lavalink.PlayerUpdateMessage{
		GuildID: player.guildID,
		State:   lavalink.PlayerState{Position: 9 * lavalink.Second},
	})
	if player.Position() != 9*lavalink.Second {
		t.Errorf("Position() = %v, want 9s", player.Position())
	}
}

func TestClientCreateConnection(t *testing.T) {
	var joins []snowflake.ID
	client := newTestClientWith(t, Config{SendVoiceUpdate: func(_ snowflake.ID, channelID *snowflake.ID, _, _ bool) error {
		if channelID != nil {
			joins = append(joins, *channelID)
		}
		return nil
	}})

	if _, err := client.CreateConnection(context.Background(), CreateConnectionOptions{
		GuildID: 1, VoiceChannelID: 2,
	}); err != ErrNoNodes {
		t.Errorf("CreateConnection() without nodes = %v, want %v", err, ErrNoNodes)
	}

	addFabricatedNode(t, client, "main", 0)
	player, err := client.CreateConnection(context.Background(), CreateConnectionOptions{
		GuildID: 1, VoiceChannelID: 2, TextChannelID: 3,
	})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	if len(joins) != 1 || joins[0] != snowflake.ID(2) {
		t.Errorf("voice joins = %v, want [2]", joins)
	}
	if client.Player(1) != player {
		t.Error("player should be registered")
	}

	// A second call returns the same player without another join.
	again, err := client.CreateConnection(context.Background(), CreateConnectionOptions{
		GuildID: 1, VoiceChannelID: 99,
	})
	if err != nil || again != player {
		t.Errorf("repeat CreateConnection() = %v, %v, want same player", again, err)
	}
	if len(joins) != 1 {
		t.Errorf("voice joins = %d, want 1", len(joins))
	}
}

// resolveTestClient wires a client to a fake loadtracks endpoint.
func resolveTestClient(t *testing.T, results map[string]lavalink.LoadResult) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := r.URL.Query().Get("identifier")
		result, ok := results[identifier]
		if !ok {
			result = lavalink.LoadResult{LoadType: lavalink.LoadTypeEmpty}
		}
		_ = json.NewEncoder(w).Encode(result)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t)
	node, err := client.Pool().Add(NodeConfig{Name: "resolve", Address: strings.TrimPrefix(server.URL, "http://")})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	node.mu.Lock()
	node.state = NodeStateReady
	node.sessionID = "resolve-session"
	node.mu.Unlock()
	return client
}

func trackResult(identifier string) lavalink.LoadResult {
	data, _ := json.Marshal(lavalink.Track{
		Encoded: "enc-" + identifier,
		Info:    lavalink.TrackInfo{Identifier: identifier, Title: identifier},
	})
	return lavalink.LoadResult{LoadType: lavalink.LoadTypeTrack, Data: data}
}

func TestClientResolveSearch(t *testing.T) {
	searchData, _ := json.Marshal([]lavalink.Track{
		{Encoded: "e1", Info: lavalink.TrackInfo{Identifier: "r1"}},
		{Encoded: "e2", Info: lavalink.TrackInfo{Identifier: "r2"}},
	})
	client := resolveTestClient(t, map[string]lavalink.LoadResult{
		"ytsearch:never gonna": {LoadType: lavalink.LoadTypeSearch, Data: searchData},
	})

	result, err := client.Resolve(context.Background(), ResolveOptions{Query: "never gonna"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.LoadType != lavalink.LoadTypeSearch || len(result.Tracks) != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestClientResolveURLPassesThrough(t *testing.T) {
	url := "https://example.com/watch?v=xyz"
	client := resolveTestClient(t, map[string]lavalink.LoadResult{
		url: trackResult("xyz"),
	})

	result, err := client.Resolve(context.Background(), ResolveOptions{Query: url})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Info.Identifier != "xyz" {
		t.Errorf("result = %+v", result)
	}
}

func TestClientResolveRawIDFallback(t *testing.T) {
	client := resolveTestClient(t, map[string]lavalink.LoadResult{
		"https://open.spotify.com/track/abc123": trackResult("abc123"),
	})

	result, err := client.Resolve(context.Background(), ResolveOptions{Query: "abc123"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Info.Identifier != "abc123" {
		t.Errorf("fallback result = %+v, want spotify track hit", result)
	}
}

func TestClientResolvePlaylist(t *testing.T) {
	playlistData, _ := json.Marshal(lavalink.Playlist{
		Info:   lavalink.PlaylistInfo{Name: "mix", SelectedTrack: -1},
		Tracks: []lavalink.Track{{Encoded: "e1"}, {Encoded: "e2"}},
	})
	url := "https://example.com/playlist/1"
	client := resolveTestClient(t, map[string]lavalink.LoadResult{
		url: {LoadType: lavalink.LoadTypePlaylist, Data: playlistData},
	})

	result, err := client.Resolve(context.Background(), ResolveOptions{Query: url})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Playlist == nil || result.Playlist.Info.Name != "mix" || len(result.Tracks) != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestClientResolveValidation(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Resolve(context.Background(), ResolveOptions{}); err == nil {
		t.Error("empty query should fail")
	}
	if _, err := client.Resolve(context.Background(), ResolveOptions{Query: "x"}); err != ErrNoNodes {
		t.Errorf("Resolve() without nodes = %v, want %v", err, ErrNoNodes)
	}
}
