package lavaflow

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func TestRegionFromEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"us-east42.example.com:443", "us-east"},
		{"rotterdam10021.discord.media:443", "rotterdam"},
		{"EU-West1.example.com:443", "eu-west"},
		{"1234.example.com:443", "1234"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := regionFromEndpoint(tt.endpoint); got != tt.want {
			t.Errorf("regionFromEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestConnectionBindingRequiresAllCredentials(t *testing.T) {
	player := newTestPlayer(t)
	conn := player.Connection()

	conn.HandleVoiceStateUpdate(VoiceStateUpdate{
		GuildID:   player.guildID,
		UserID:    player.client.userID,
		ChannelID: ptr(snowflake.ID(200)),
		SessionID: "sess",
	})
	if conn.State() != ConnectionStateConnecting {
		t.Fatalf("state after voice state only = %s, want connecting", conn.State())
	}

	conn.HandleVoiceServerUpdate(VoiceServerUpdate{
		GuildID:  player.guildID,
		Endpoint: "us-east1.example.com:443",
		Token:    "tok",
	})
	if conn.State() != ConnectionStateConnected {
		t.Fatalf("state after full binding = %s, want connected", conn.State())
	}
	if conn.Region() != "us-east" {
		t.Errorf("Region() = %q, want us-east", conn.Region())
	}
	if !conn.VoiceState().Complete() {
		t.Error("voice state should be complete")
	}
}

func TestConnectionAwaitConnected(t *testing.T) {
	player := newTestPlayer(t)
	conn := player.Connection()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := conn.AwaitConnected(ctx); err != ErrVoiceTimeout {
		t.Errorf("AwaitConnected() on incomplete binding = %v, want %v", err, ErrVoiceTimeout)
	}

	connectPlayer(player)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := conn.AwaitConnected(ctx2); err != nil {
		t.Errorf("AwaitConnected() after binding = %v, want nil", err)
	}
}

func TestConnectionNilChannelDestroysPlayer(t *testing.T) {
	player := newTestPlayer(t)
	connectPlayer(player)

	player.connection.HandleVoiceStateUpdate(VoiceStateUpdate{
		GuildID:   player.guildID,
		UserID:    player.client.userID,
		ChannelID: nil,
		SessionID: "sess",
	})

	if !player.Destroyed() {
		t.Error("voice disconnect should destroy the player")
	}
	if player.client.Player(player.guildID) != nil {
		t.Error("destroyed player should be deregistered")
	}
}

func TestConnectionChannelMove(t *testing.T) {
	client := newTestClientWith(t, Config{})
	var movedFrom, movedTo snowflake.ID
	client.config.Events.PlayerMove = func(_ *Player, from, to snowflake.ID) {
		movedFrom, movedTo = from, to
	}
	player := newTestPlayerOn(t, client, nil)
	connectPlayer(player)

	newChannel := snowflake.ID(999)
	player.connection.HandleVoiceStateUpdate(VoiceStateUpdate{
		GuildID:   player.guildID,
		UserID:    client.userID,
		ChannelID: &newChannel,
		SessionID: "voice-session-2",
	})

	if movedFrom != snowflake.ID(200) {
		t.Errorf("moved from %d, want 200", movedFrom)
	}
	if movedTo != newChannel {
		t.Errorf("moved to %d, want %d", movedTo, newChannel)
	}
	if player.VoiceChannelID() != newChannel {
		t.Errorf("VoiceChannelID() = %d, want %d", player.VoiceChannelID(), newChannel)
	}
	if player.connection.State() != ConnectionStateConnected {
		t.Error("a move must not drop the binding")
	}
}

// waitForFlushDrained blocks until the batched voice push has fired.
func waitForFlushDrained(t *testing.T, conn *Connection) {
	t.Helper()
	waitFor(t, time.Second, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return !conn.flushPending
	})
}

func TestConnectionServerFailoverRepushes(t *testing.T) {
	player := newTestPlayer(t)
	conn := player.Connection()
	connectPlayer(player)
	waitForFlushDrained(t, conn)

	// Discord voice-server failover delivers a fresh endpoint and token
	// while the binding is already Connected.
	conn.HandleVoiceServerUpdate(VoiceServerUpdate{
		GuildID:  player.guildID,
		Endpoint: "eu-west7.example.com:443",
		Token:    "rotated-token",
	})

	conn.mu.Lock()
	pending := conn.flushPending
	token := conn.voice.Token
	conn.mu.Unlock()
	if token != "rotated-token" {
		t.Fatalf("token = %q, want rotated-token", token)
	}
	if !pending {
		t.Error("re-issued voice credentials must schedule a push to the node")
	}
	if conn.Region() != "eu-west" {
		t.Errorf("Region() = %q, want eu-west", conn.Region())
	}
	if conn.State() != ConnectionStateConnected {
		t.Error("a failover must not drop the binding")
	}
}

func TestConnectionSessionRotationRepushes(t *testing.T) {
	player := newTestPlayer(t)
	conn := player.Connection()
	connectPlayer(player)
	waitForFlushDrained(t, conn)

	conn.HandleVoiceStateUpdate(VoiceStateUpdate{
		GuildID:   player.guildID,
		UserID:    player.client.userID,
		ChannelID: ptr(snowflake.ID(200)),
		SessionID: "voice-session-rotated",
	})

	conn.mu.Lock()
	pending := conn.flushPending
	sessionID := conn.voice.SessionID
	conn.mu.Unlock()
	if sessionID != "voice-session-rotated" {
		t.Fatalf("session id = %q, want voice-session-rotated", sessionID)
	}
	if !pending {
		t.Error("a rotated voice session must schedule a push to the node")
	}
}

func TestConnectionDestroyedIgnoresUpdates(t *testing.T) {
	player := newTestPlayer(t)
	conn := player.Connection()
	conn.destroy()

	conn.HandleVoiceServerUpdate(VoiceServerUpdate{
		GuildID:  player.guildID,
		Endpoint: "us-east1.example.com:443",
		Token:    "tok",
	})
	if conn.State() != ConnectionStateDestroyed {
		t.Errorf("state = %s, want destroyed", conn.State())
	}
}
