package music

import "github.com/bwmarrin/discordgo"

// Commands returns all slash commands for the music module.
func (m *Module) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a track from URL or search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "URL or search term",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "source",
					Description: "Search source for non-URL queries",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "YouTube", Value: "ytsearch"},
						{Name: "YouTube Music", Value: "ytmsearch"},
						{Name: "SoundCloud", Value: "scsearch"},
					},
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current track",
		},
		{
			Name:        "stop",
			Description: "Stop playback and clear the current track",
		},
		{
			Name:        "pause",
			Description: "Toggle pause",
		},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "Volume from 0 to 1000 (100 is normal)",
					Required:    true,
					MinValue:    floatPtr(0),
					MaxValue:    1000,
				},
			},
		},
		{
			Name:        "seek",
			Description: "Seek within the current track",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "seconds",
					Description: "Position in seconds",
					Required:    true,
					MinValue:    floatPtr(0),
				},
			},
		},
		{
			Name:        "loop",
			Description: "Set the loop mode",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Loop mode",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Off", Value: "none"},
						{Name: "Track", Value: "track"},
						{Name: "Queue", Value: "queue"},
					},
				},
			},
		},
		{
			Name:        "shuffle",
			Description: "Shuffle the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "smart",
					Description: "Avoid placing recently played tracks first",
					Required:    false,
				},
			},
		},
		{
			Name:        "queue",
			Description: "Show the current queue",
		},
		{
			Name:        "nowplaying",
			Description: "Show the current track",
		},
		{
			Name:        "filter",
			Description: "Apply a filter preset",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "preset",
					Description: "Filter preset",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Clear", Value: "clear"},
						{Name: "Gaming", Value: "gaming"},
						{Name: "Lofi", Value: "lofi"},
						{Name: "Party", Value: "party"},
						{Name: "Karaoke", Value: "karaoke"},
						{Name: "Soft Karaoke", Value: "karaoke_soft"},
						{Name: "Heavy Bassboost", Value: "bassboost_heavy"},
						{Name: "Nightcore", Value: "nightcore"},
						{Name: "Vaporwave", Value: "vaporwave"},
						{Name: "8D", Value: "8d"},
					},
				},
			},
		},
		{
			Name:        "autoplay",
			Description: "Toggle autoplay when the queue ends",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether autoplay is enabled",
					Required:    true,
				},
			},
		},
		{
			Name:        "disconnect",
			Description: "Disconnect from the voice channel",
		},
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
