package bot

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "test-token-123")
	t.Setenv("NODE_ADDRESS", "localhost:2333")
	t.Setenv("NODE_PASSWORD", "youshallnotpass")
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NODE_REGIONS", "us-east,us-west")
	t.Setenv("FADE_IN", "3s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DiscordToken != "test-token-123" {
		t.Errorf("DiscordToken = %q", cfg.DiscordToken)
	}
	if cfg.NodeAddress != "localhost:2333" || cfg.NodePassword != "youshallnotpass" {
		t.Errorf("node config = %q / %q", cfg.NodeAddress, cfg.NodePassword)
	}
	if len(cfg.NodeRegions) != 2 || cfg.NodeRegions[0] != "us-east" {
		t.Errorf("NodeRegions = %v", cfg.NodeRegions)
	}
	if cfg.FadeIn != 3*time.Second {
		t.Errorf("FadeIn = %v, want 3s", cfg.FadeIn)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.NodeName != "main" {
		t.Errorf("NodeName = %q, want main", cfg.NodeName)
	}
	if !cfg.AutoResume || !cfg.Preload {
		t.Error("AutoResume and Preload should default to true")
	}
	if cfg.StateFile != "players.json" {
		t.Errorf("StateFile = %q, want players.json", cfg.StateFile)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"token", "DISCORD_TOKEN"},
		{"node address", "NODE_ADDRESS"},
		{"node password", "NODE_PASSWORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() without %s should fail", tt.unset)
			}
		})
	}
}
