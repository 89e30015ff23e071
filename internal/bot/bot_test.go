package bot

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNewBot(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)
	if b == nil {
		t.Fatal("NewBot() returned nil")
	}
	if b.config != cfg {
		t.Error("config should be stored")
	}
}

func TestBotInitModules(t *testing.T) {
	b := NewBot(&Config{DiscordToken: "test-token"})

	initialized := false
	b.modules = []Module{&initTrackingModule{
		stubModule: stubModule{name: "tracked"},
		called:     &initialized,
	}}

	if err := b.initModules(); err != nil {
		t.Fatalf("initModules() error = %v", err)
	}
	if !initialized {
		t.Error("Init should be called on every module")
	}
}

func TestBotInitModulesPropagatesError(t *testing.T) {
	b := NewBot(&Config{DiscordToken: "test-token"})

	wantErr := errors.New("init failed")
	b.modules = []Module{&stubModule{name: "failing", initErr: wantErr}}

	err := b.initModules()
	if !errors.Is(err, wantErr) {
		t.Errorf("initModules() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestBotBuildHandlerMap(t *testing.T) {
	b := NewBot(&Config{DiscordToken: "test-token"})

	handler := func(*discordgo.Session, *discordgo.InteractionCreate, Responder) error {
		return nil
	}
	b.modules = []Module{
		&stubModule{name: "one", handlers: map[string]InteractionHandler{"play": handler}},
		&stubModule{name: "two", handlers: map[string]InteractionHandler{"ping": handler}},
	}

	b.buildHandlerMap()

	if len(b.handlers) != 2 {
		t.Fatalf("handlers = %d, want 2", len(b.handlers))
	}
	if _, ok := b.handlers["play"]; !ok {
		t.Error("play handler should be registered")
	}
	if _, ok := b.handlers["ping"]; !ok {
		t.Error("ping handler should be registered")
	}
}

func TestBotCollectCommands(t *testing.T) {
	b := NewBot(&Config{DiscordToken: "test-token"})

	b.modules = []Module{
		&stubModule{name: "one", commands: []*discordgo.ApplicationCommand{
			{Name: "play", Description: "Play a track"},
		}},
		&stubModule{name: "two", commands: []*discordgo.ApplicationCommand{
			{Name: "ping", Description: "Ping"},
		}},
	}

	commands := b.collectCommands()
	if len(commands) != 2 {
		t.Fatalf("collectCommands() returned %d commands, want 2", len(commands))
	}
	if commands[0].Name != "play" || commands[1].Name != "ping" {
		t.Errorf("command order = %s, %s", commands[0].Name, commands[1].Name)
	}
}

// initTrackingModule records whether Init ran.
type initTrackingModule struct {
	stubModule
	called *bool
}

func (m *initTrackingModule) Init(deps ModuleDependencies) error {
	*m.called = true
	return m.stubModule.Init(deps)
}
