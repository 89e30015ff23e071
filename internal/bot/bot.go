package bot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow"
	"github.com/lavaflow/lavaflow/lavalink"
)

// Bot manages the Discord bot lifecycle, the audio client, and module
// coordination.
type Bot struct {
	config   *Config
	session  *discordgo.Session
	lavaflow *lavaflow.Client
	modules  []Module
	handlers map[string]InteractionHandler
}

// NewBot creates a new Bot instance with the given configuration.
func NewBot(cfg *Config) *Bot {
	return &Bot{
		config:   cfg,
		modules:  make([]Module, 0),
		handlers: make(map[string]InteractionHandler),
	}
}

// LoadModules loads modules from the global registry.
func (b *Bot) LoadModules() {
	b.modules = Modules()
}

// Lavaflow returns the audio client, available after Start.
func (b *Bot) Lavaflow() *lavaflow.Client {
	return b.lavaflow
}

// Start connects to Discord, brings up the audio client, and registers
// commands.
func (b *Bot) Start() error {
	session, err := discordgo.New("Bot " + b.config.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	b.session = session

	// The audio client needs the bot user id, so the gateway opens first.
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.startLavaflow(); err != nil {
		return fmt.Errorf("failed to start audio client: %w", err)
	}

	if err := b.initModules(); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}
	b.buildHandlerMap()
	b.session.AddHandler(b.handleInteraction)
	b.registerEventHandlers()

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	if b.config.StateFile != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.lavaflow.LoadPlayersState(ctx, b.config.StateFile); err != nil {
			slog.Warn("failed to restore player state", "error", err)
		}
	}

	slog.Info("started bot",
		"user_id", b.session.State.User.ID,
		"username", b.session.State.User.Username,
	)

	return nil
}

// startLavaflow creates the audio client, wires gateway voice routing, and
// connects the configured node.
func (b *Bot) startLavaflow() error {
	userID, err := snowflake.Parse(b.session.State.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse bot user id: %w", err)
	}

	client, err := lavaflow.New(lavaflow.Config{
		UserID:          userID,
		SendVoiceUpdate: b.sendVoiceUpdate,
		Logger:          slog.Default(),
		AutoResume:      b.config.AutoResume,
		Preload:         b.config.Preload,
		FadeIn:          b.config.FadeIn,
		Events: lavaflow.Events{
			TrackStart: b.notifyTrackStart,
			QueueEnd:   b.notifyQueueEnd,
		},
	})
	if err != nil {
		return err
	}
	b.lavaflow = client

	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onVoiceServerUpdate)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := client.AddNode(ctx, lavaflow.NodeConfig{
		Name:     b.config.NodeName,
		Address:  b.config.NodeAddress,
		Password: b.config.NodePassword,
		Secure:   b.config.NodeSecure,
		Regions:  b.config.NodeRegions,
	}); err != nil {
		// The node keeps reconnecting in the background.
		slog.Warn("initial node connection failed", "error", err)
	}
	return nil
}

// notifyTrackStart posts a now-playing message to the player's text channel.
func (b *Bot) notifyTrackStart(player *lavaflow.Player, track lavalink.Track) {
	channelID := player.TextChannelID()
	if channelID == 0 {
		return
	}
	label := track.Info.Title
	if track.Info.Author != "" {
		label += " by " + track.Info.Author
	}
	if _, err := b.session.ChannelMessageSend(channelID.String(), "Now playing: "+label); err != nil {
		slog.Warn("failed to send now-playing message", "error", err)
	}
}

// notifyQueueEnd tells the text channel that playback has finished.
func (b *Bot) notifyQueueEnd(player *lavaflow.Player) {
	channelID := player.TextChannelID()
	if channelID == 0 {
		return
	}
	if _, err := b.session.ChannelMessageSend(channelID.String(), "Queue finished."); err != nil {
		slog.Warn("failed to send queue-end message", "error", err)
	}
}

// sendVoiceUpdate forwards voice joins and leaves to the Discord gateway.
func (b *Bot) sendVoiceUpdate(guildID snowflake.ID, channelID *snowflake.ID, selfMute, selfDeaf bool) error {
	channel := ""
	if channelID != nil {
		channel = channelID.String()
	}
	return b.session.ChannelVoiceJoinManual(guildID.String(), channel, selfMute, selfDeaf)
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		return
	}
	userID, err := snowflake.Parse(e.UserID)
	if err != nil {
		return
	}
	update := lavaflow.VoiceStateUpdate{
		GuildID:   guildID,
		UserID:    userID,
		SessionID: e.SessionID,
		SelfDeaf:  e.SelfDeaf,
		SelfMute:  e.SelfMute,
	}
	if e.ChannelID != "" {
		channelID, err := snowflake.Parse(e.ChannelID)
		if err != nil {
			return
		}
		update.ChannelID = &channelID
	}
	b.lavaflow.OnVoiceStateUpdate(update)
}

func (b *Bot) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		return
	}
	b.lavaflow.OnVoiceServerUpdate(lavaflow.VoiceServerUpdate{
		GuildID:  guildID,
		Endpoint: e.Endpoint,
		Token:    e.Token,
	})
}

// Stop gracefully shuts down the bot, persisting player state first.
func (b *Bot) Stop() error {
	if b.lavaflow != nil && b.config.StateFile != "" {
		if err := b.lavaflow.SavePlayersState(b.config.StateFile); err != nil {
			slog.Warn("failed to save player state", "error", err)
		}
	}

	for _, mod := range b.modules {
		if err := mod.Shutdown(); err != nil {
			slog.Warn("failed to shutdown module", "module", mod.Name(), "error", err)
		}
	}

	if b.lavaflow != nil {
		b.lavaflow.Shutdown()
	}

	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// initModules initializes all loaded modules.
func (b *Bot) initModules() error {
	deps := ModuleDependencies{
		Session:  b.session,
		Lavaflow: b.lavaflow,
		Config:   b.config,
	}

	for _, mod := range b.modules {
		if err := mod.Init(deps); err != nil {
			return fmt.Errorf("failed to initialize %s module: %w", mod.Name(), err)
		}
		slog.Debug("initialized module", "module", mod.Name())
	}

	moduleNames := make([]string, len(b.modules))
	for i, mod := range b.modules {
		moduleNames[i] = mod.Name()
	}
	slog.Info("initialized modules", "modules", moduleNames)

	return nil
}

// buildHandlerMap builds the command name to handler mapping.
func (b *Bot) buildHandlerMap() {
	for _, mod := range b.modules {
		maps.Copy(b.handlers, mod.CommandHandlers())
	}
}

// registerEventHandlers registers all module event handlers with the session.
func (b *Bot) registerEventHandlers() {
	for _, mod := range b.modules {
		for _, handler := range mod.EventHandlers() {
			b.session.AddHandler(handler)
		}
	}
}

// collectCommands gathers all commands from loaded modules.
func (b *Bot) collectCommands() []*discordgo.ApplicationCommand {
	var commands []*discordgo.ApplicationCommand
	for _, mod := range b.modules {
		commands = append(commands, mod.Commands()...)
	}
	return commands
}

// registerCommands registers all module commands with Discord.
func (b *Bot) registerCommands() error {
	commands := b.collectCommands()

	for _, cmd := range commands {
		_, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string registers commands globally
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		slog.Debug("registered command", "command", cmd.Name)
	}

	return nil
}

// Embed colors for responses.
const (
	colorYellow = 0xFFFF00
	colorRed    = 0xFF0000
)

// handleInteraction routes incoming interactions to the appropriate handler.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	cmdName := i.ApplicationCommandData().Name
	handler, ok := b.handlers[cmdName]
	if !ok {
		slog.Warn("found no handler for command", "command", cmdName)
		b.respondWithEmbed(s, i, "Unknown Command", "This command is not recognized.", colorYellow)
		return
	}

	responder := NewDiscordResponder(s, i.Interaction)
	if err := handler(s, i, responder); err != nil {
		slog.Error("command handler failed", "command", cmdName, "error", err)
		b.respondWithEmbed(s, i, "Error", "Something went wrong running this command.", colorRed)
	}
}

// respondWithEmbed sends a simple embed response, ignoring failures.
func (b *Bot) respondWithEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, title, description string, color int) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       title,
				Description: description,
				Color:       color,
			}},
		},
	})
}
