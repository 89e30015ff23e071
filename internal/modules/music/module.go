// Package music provides the slash-command surface over the audio client.
package music

import (
	"github.com/bwmarrin/discordgo"
	"github.com/lavaflow/lavaflow"
	"github.com/lavaflow/lavaflow/internal/bot"
)

func init() {
	bot.Register(&Module{})
}

// Module wires music playback commands to the audio client.
type Module struct {
	client  *lavaflow.Client
	session *discordgo.Session
}

// Name returns the module identifier.
func (m *Module) Name() string { return "music" }

// Init stores the dependencies and subscribes to playback events.
func (m *Module) Init(deps bot.ModuleDependencies) error {
	m.client = deps.Lavaflow
	m.session = deps.Session
	return nil
}

// Shutdown is a no-op; the bot owns the audio client lifecycle.
func (m *Module) Shutdown() error { return nil }

// EventHandlers returns no gateway handlers; voice routing is wired by the
// bot core.
func (m *Module) EventHandlers() []bot.EventHandler { return nil }

// CommandHandlers maps command names to their handlers.
func (m *Module) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":       m.handlePlay,
		"skip":       m.handleSkip,
		"stop":       m.handleStop,
		"pause":      m.handlePause,
		"volume":     m.handleVolume,
		"seek":       m.handleSeek,
		"loop":       m.handleLoop,
		"shuffle":    m.handleShuffle,
		"queue":      m.handleQueue,
		"nowplaying": m.handleNowPlaying,
		"filter":     m.handleFilter,
		"autoplay":   m.handleAutoplay,
		"disconnect": m.handleDisconnect,
	}
}
