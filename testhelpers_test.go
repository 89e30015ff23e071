package lavaflow

import (
	"io"
	"log/slog"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

const testBotUserID = snowflake.ID(90000000000000001)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client with a no-op gateway send.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	return newTestClientWith(t, Config{})
}

// newTestClientWith builds a client from config, filling in the required
// fields with test defaults where unset.
func newTestClientWith(t *testing.T, config Config) *Client {
	t.Helper()
	if config.UserID == 0 {
		config.UserID = testBotUserID
	}
	if config.SendVoiceUpdate == nil {
		config.SendVoiceUpdate = func(snowflake.ID, *snowflake.ID, bool, bool) error { return nil }
	}
	if config.Logger == nil {
		config.Logger = discardLogger()
	}
	client, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(client.Shutdown)
	return client
}

// newTestPlayer builds a registered player without a node.
func newTestPlayer(t *testing.T) *Player {
	t.Helper()
	return newTestPlayerOn(t, newTestClient(t), nil)
}

// newTestPlayerOn builds a registered player bound to node.
func newTestPlayerOn(t *testing.T, client *Client, node *Node) *Player {
	t.Helper()
	player := newPlayer(client, node, snowflake.ID(100), snowflake.ID(200), snowflake.ID(300))
	client.playersMu.Lock()
	client.players[player.guildID] = player
	client.playersMu.Unlock()
	return player
}

// connectPlayer completes the player's voice binding without a gateway.
func connectPlayer(p *Player) {
	p.connection.HandleVoiceStateUpdate(VoiceStateUpdate{
		GuildID:   p.guildID,
		UserID:    p.client.userID,
		ChannelID: ptr(p.VoiceChannelID()),
		SessionID: "voice-session",
	})
	p.connection.HandleVoiceServerUpdate(VoiceServerUpdate{
		GuildID:  p.guildID,
		Endpoint: "us-east1.example.com:443",
		Token:    "voice-token",
	})
}
