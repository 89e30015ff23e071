package bot

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the bot configuration loaded from environment variables.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`

	// Audio node connection.
	NodeName     string   `env:"NODE_NAME" envDefault:"main"`
	NodeAddress  string   `env:"NODE_ADDRESS,notEmpty"` // host:port
	NodePassword string   `env:"NODE_PASSWORD,notEmpty"`
	NodeSecure   bool     `env:"NODE_SECURE"`
	NodeRegions  []string `env:"NODE_REGIONS"`

	// Playback behavior.
	AutoResume bool          `env:"AUTO_RESUME" envDefault:"true"`
	Preload    bool          `env:"PRELOAD" envDefault:"true"`
	FadeIn     time.Duration `env:"FADE_IN"`

	// StateFile persists player state across restarts; empty disables it.
	StateFile string `env:"STATE_FILE" envDefault:"players.json"`
}

// LoadConfig loads configuration from environment variables.
// Returns an error if required fields are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
