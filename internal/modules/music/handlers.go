package music

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow"
	"github.com/lavaflow/lavaflow/internal/bot"
	"github.com/lavaflow/lavaflow/lavalink"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
)

const (
	commandTimeout   = 15 * time.Second
	voiceJoinTimeout = 5 * time.Second
	queuePageSize    = 10
)

// handlePlay handles the /play command: resolve the query, enqueue the
// result, and start playback if idle.
func (m *Module) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "This command only works in a server.")
	}

	var query, source string
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "query":
			query = opt.StringValue()
		case "source":
			source = opt.StringValue()
		}
	}

	player, err := m.ensurePlayer(s, i, guildID)
	if err != nil {
		return respondError(r, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := m.client.Resolve(ctx, lavaflow.ResolveOptions{Query: query, Source: source})
	if err != nil {
		return respondError(r, "Failed to load: "+err.Error())
	}
	if len(result.Tracks) == 0 {
		return respondError(r, "No results for "+query)
	}

	var added string
	if result.Playlist != nil {
		player.Queue().Add(result.Tracks...)
		added = fmt.Sprintf("playlist **%s** (%d tracks)", result.Playlist.Info.Name, len(result.Tracks))
	} else {
		player.Queue().Add(result.Tracks[0])
		added = "**" + trackLabel(result.Tracks[0]) + "**"
	}

	if !player.Playing() {
		joinCtx, joinCancel := context.WithTimeout(ctx, voiceJoinTimeout)
		defer joinCancel()
		if err := player.Connection().AwaitConnected(joinCtx); err != nil {
			return respondError(r, "Could not connect to the voice channel.")
		}
		if err := player.Play(ctx); err != nil {
			return respondError(r, "Failed to start playback: "+err.Error())
		}
	}

	return respondMessage(r, "Queued "+added)
}

// ensurePlayer returns the guild's player, creating one bound to the
// invoking member's voice channel if needed.
func (m *Module) ensurePlayer(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) (*lavaflow.Player, error) {
	if player := m.client.Player(guildID); player != nil {
		return player, nil
	}

	voiceState, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || voiceState.ChannelID == "" {
		return nil, fmt.Errorf("join a voice channel first")
	}
	voiceChannelID, err := snowflake.Parse(voiceState.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("join a voice channel first")
	}
	textChannelID, _ := snowflake.Parse(i.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), voiceJoinTimeout)
	defer cancel()
	return m.client.CreateConnection(ctx, lavaflow.CreateConnectionOptions{
		GuildID:        guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelID:  textChannelID,
		SelfDeaf:       true,
	})
}

// handleSkip handles the /skip command.
func (m *Module) handleSkip(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := player.Skip(ctx); err != nil {
		return respondError(r, "Failed to skip: "+err.Error())
	}
	return respondMessage(r, "Skipped.")
}

// handleStop handles the /stop command: stop playback and drop the queue.
func (m *Module) handleStop(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	player.Queue().Clear()
	if err := player.Stop(); err != nil {
		return respondError(r, "Failed to stop: "+err.Error())
	}
	return respondMessage(r, "Stopped playback and cleared the queue.")
}

// handlePause handles the /pause command.
func (m *Module) handlePause(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	paused, err := player.TogglePause()
	if err != nil {
		return respondError(r, "Failed to toggle pause: "+err.Error())
	}
	if paused {
		return respondMessage(r, "Paused.")
	}
	return respondMessage(r, "Resumed.")
}

// handleVolume handles the /volume command.
func (m *Module) handleVolume(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	level := int(i.ApplicationCommandData().Options[0].IntValue())
	if err := player.SetVolume(level); err != nil {
		return respondError(r, err.Error())
	}
	return respondMessage(r, fmt.Sprintf("Volume set to %d.", level))
}

// handleSeek handles the /seek command.
func (m *Module) handleSeek(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	seconds := i.ApplicationCommandData().Options[0].IntValue()
	position := lavalink.Duration(seconds) * lavalink.Second
	if err := player.Seek(position); err != nil {
		return respondError(r, err.Error())
	}
	return respondMessage(r, "Seeked to "+position.String()+".")
}

// handleLoop handles the /loop command.
func (m *Module) handleLoop(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	mode, err := lavaflow.ParseLoopMode(i.ApplicationCommandData().Options[0].StringValue())
	if err != nil {
		return respondError(r, err.Error())
	}
	if err := player.SetLoop(mode); err != nil {
		return respondError(r, err.Error())
	}
	return respondMessage(r, "Loop mode set to "+mode.String()+".")
}

// handleShuffle handles the /shuffle command.
func (m *Module) handleShuffle(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	smart := false
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "smart" {
			smart = opt.BoolValue()
		}
	}
	if smart {
		player.Queue().SmartShuffle()
	} else {
		player.Queue().Shuffle()
	}
	return respondMessage(r, "Queue shuffled.")
}

// handleQueue handles the /queue command.
func (m *Module) handleQueue(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	tracks := player.Queue().Tracks()
	if len(tracks) == 0 {
		return respondMessage(r, "The queue is empty.")
	}

	var sb strings.Builder
	for n, track := range tracks {
		if n == queuePageSize {
			fmt.Fprintf(&sb, "... and %d more", len(tracks)-queuePageSize)
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n", n+1, trackLabel(track), track.Info.Length)
	}
	stats := player.Queue().Stats()
	fmt.Fprintf(&sb, "\n%d tracks, %s total", stats.Count, stats.TotalDuration)
	return respondMessage(r, sb.String())
}

// handleNowPlaying handles the /nowplaying command.
func (m *Module) handleNowPlaying(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	current := player.Current()
	if current == nil {
		return respondMessage(r, "Nothing is playing.")
	}
	status := "Playing"
	if player.Paused() {
		status = "Paused"
	}
	return respondMessage(r, fmt.Sprintf("%s: %s [%s / %s]",
		status, trackLabel(*current), player.Position(), current.Info.Length))
}

// handleFilter handles the /filter command.
func (m *Module) handleFilter(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	preset := i.ApplicationCommandData().Options[0].StringValue()
	filters := player.Filters()

	switch preset {
	case "clear":
		filters.Clear()
	case "nightcore":
		filters.SetNightcore(true)
	case "vaporwave":
		filters.SetVaporwave(true)
	case "8d":
		filters.Set8D(true)
	default:
		if err := filters.ApplyPreset(preset); err != nil {
			return respondError(r, err.Error())
		}
	}
	return respondMessage(r, "Applied filter: "+preset+".")
}

// handleAutoplay handles the /autoplay command.
func (m *Module) handleAutoplay(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	enabled := i.ApplicationCommandData().Options[0].BoolValue()
	player.SetAutoplay(enabled)
	if enabled {
		return respondMessage(r, "Autoplay enabled.")
	}
	return respondMessage(r, "Autoplay disabled.")
}

// handleDisconnect handles the /disconnect command.
func (m *Module) handleDisconnect(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	player, err := m.guildPlayer(i)
	if err != nil {
		return respondError(r, err.Error())
	}
	if err := player.Destroy(true); err != nil {
		return respondError(r, "Failed to disconnect: "+err.Error())
	}
	return respondMessage(r, "Disconnected.")
}

// guildPlayer returns the live player for the interaction's guild.
func (m *Module) guildPlayer(i *discordgo.InteractionCreate) (*lavaflow.Player, error) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return nil, fmt.Errorf("this command only works in a server")
	}
	player := m.client.Player(guildID)
	if player == nil {
		return nil, fmt.Errorf("nothing is playing in this server")
	}
	return player, nil
}

func trackLabel(track lavalink.Track) string {
	label := track.Info.Title
	if track.Info.Author != "" {
		label += " by " + track.Info.Author
	}
	return label
}

func respondMessage(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Description: message,
				Color:       colorSuccess,
			}},
		},
	})
}

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Error",
				Description: message,
				Color:       colorError,
			}},
		},
	})
}
