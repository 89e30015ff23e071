package music

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow"
	"github.com/lavaflow/lavaflow/internal/bot"
	"github.com/lavaflow/lavaflow/lavalink"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	client, err := lavaflow.New(lavaflow.Config{
		UserID: snowflake.ID(90000000000000001),
		SendVoiceUpdate: func(snowflake.ID, *snowflake.ID, bool, bool) error {
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(client.Shutdown)

	m := &Module{}
	if err := m.Init(bot.ModuleDependencies{Lavaflow: client}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return m
}

func commandInteraction(guildID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guildID,
		Data:    discordgo.ApplicationCommandInteractionData{},
	}}
}

func embedDescription(t *testing.T, r *bot.MockResponder) string {
	t.Helper()
	if r.LastResponse == nil || r.LastResponse.Data == nil || len(r.LastResponse.Data.Embeds) == 0 {
		t.Fatal("handler sent no embed response")
	}
	return r.LastResponse.Data.Embeds[0].Description
}

func TestHandlersCoverAllCommands(t *testing.T) {
	m := &Module{}
	handlers := m.CommandHandlers()
	for _, cmd := range m.Commands() {
		if _, ok := handlers[cmd.Name]; !ok {
			t.Errorf("command %q has no handler", cmd.Name)
		}
	}
	if len(handlers) != len(m.Commands()) {
		t.Errorf("handlers = %d, commands = %d", len(handlers), len(m.Commands()))
	}
}

func TestHandlePlayOutsideGuild(t *testing.T) {
	m := newTestModule(t)
	responder := &bot.MockResponder{}

	if err := m.handlePlay(nil, commandInteraction(""), responder); err != nil {
		t.Fatalf("handlePlay() error = %v", err)
	}
	if got := embedDescription(t, responder); !strings.Contains(got, "server") {
		t.Errorf("response = %q, want a guild-only notice", got)
	}
}

func TestHandleSkipWithoutPlayer(t *testing.T) {
	m := newTestModule(t)
	responder := &bot.MockResponder{}

	if err := m.handleSkip(nil, commandInteraction("123"), responder); err != nil {
		t.Fatalf("handleSkip() error = %v", err)
	}
	if got := embedDescription(t, responder); !strings.Contains(got, "playing") {
		t.Errorf("response = %q, want a nothing-playing notice", got)
	}
	if title := responder.LastResponse.Data.Embeds[0].Title; title != "Error" {
		t.Errorf("embed title = %q, want Error", title)
	}
}

func TestHandleDisconnectWithoutPlayer(t *testing.T) {
	m := newTestModule(t)
	responder := &bot.MockResponder{}

	if err := m.handleDisconnect(nil, commandInteraction("123"), responder); err != nil {
		t.Fatalf("handleDisconnect() error = %v", err)
	}
	if got := embedDescription(t, responder); !strings.Contains(got, "playing") {
		t.Errorf("response = %q, want a nothing-playing notice", got)
	}
}

func TestTrackLabel(t *testing.T) {
	withAuthor := lavalink.Track{Info: lavalink.TrackInfo{Title: "Song", Author: "Artist"}}
	if got := trackLabel(withAuthor); got != "Song by Artist" {
		t.Errorf("trackLabel() = %q", got)
	}
	noAuthor := lavalink.Track{Info: lavalink.TrackInfo{Title: "Song"}}
	if got := trackLabel(noAuthor); got != "Song" {
		t.Errorf("trackLabel() = %q", got)
	}
}
