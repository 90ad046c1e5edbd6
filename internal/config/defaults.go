package config

import "time"

func Defaults() *Config {
	return &Config{
		Discord: DiscordConfig{
			WebhookName: "relaybot",
		},
		Line: LineConfig{
			CallbackPath:     "/callback",
			DefaultAvatarURL: "https://cdn.discordapp.com/embed/avatars/0.png",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Relay: RelayConfig{
			EventTimeout: 60 * time.Second,
			FetchTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
