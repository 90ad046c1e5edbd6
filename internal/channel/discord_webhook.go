package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// DiscordWebhookManager lists and creates channel webhooks. *discordgo.Session
// satisfies it.
type DiscordWebhookManager interface {
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
}

// ProvisionWebhook returns the channel webhook called name, creating it when
// the channel has none.
func ProvisionWebhook(ctx context.Context, mgr DiscordWebhookManager, channelID, name string, logger *slog.Logger) (*discordgo.Webhook, error) {
	hooks, err := mgr.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list discord webhooks: %w", err)
	}
	for _, h := range hooks {
		// Only incoming webhooks carry a token we can execute with.
		if h.Name == name && h.Token != "" {
			logger.Debug("reusing discord webhook", "webhook_id", h.ID, "channel", channelID)
			return h, nil
		}
	}

	h, err := mgr.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create discord webhook: %w", err)
	}
	logger.Info("created discord webhook", "webhook_id", h.ID, "channel", channelID, "name", name)
	return h, nil
}
