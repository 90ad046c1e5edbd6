package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen   = 2000
	discordMaxUsername = 80
)

// DiscordWebhookExecutor posts through a webhook. *discordgo.Session
// satisfies it.
type DiscordWebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSenderConfig configures the Discord webhook sender.
type DiscordSenderConfig struct {
	Executor DiscordWebhookExecutor
	Webhook  *discordgo.Webhook
	Fetcher  MediaFetcher
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// DiscordSender posts canonical messages into a Discord channel through a
// webhook, impersonating the original author's name and avatar.
type DiscordSender struct {
	executor DiscordWebhookExecutor
	webhook  *discordgo.Webhook
	fetcher  MediaFetcher
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// NewDiscordSender creates a Discord sender.
func NewDiscordSender(cfg DiscordSenderConfig) *DiscordSender {
	return &DiscordSender{
		executor: cfg.Executor,
		webhook:  cfg.Webhook,
		fetcher:  cfg.Fetcher,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

func (s *DiscordSender) Name() string { return "discord" }

// Send executes the webhook once for msg. Content longer than Discord's limit
// is split over several executions and the files travel with the last one.
func (s *DiscordSender) Send(ctx context.Context, msg *domain.Message) error {
	start := time.Now()
	defer func() { s.metrics.ObserveSend(s.Name(), time.Since(start)) }()

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	files := make([]*discordgo.File, 0, len(msg.Attachments()))
	for _, att := range msg.Attachments() {
		rc, err := s.openAttachment(ctx, att)
		if err != nil {
			return fmt.Errorf("open attachment %s: %w", att.Filename(), err)
		}
		closers = append(closers, rc)
		files = append(files, &discordgo.File{Name: att.Filename(), Reader: rc})
	}

	author := msg.Author()
	base := discordgo.WebhookParams{
		Username:        truncateRunes(author.Name(), discordMaxUsername),
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if avatar, ok := author.AvatarURI(); ok {
		base.AvatarURL = avatar
	}

	chunks := []string{""}
	if text, ok := msg.Content(); ok {
		chunks = splitMessage(text, discordMaxMsgLen)
	}
	for i, chunk := range chunks {
		params := base
		params.Content = chunk
		if i == len(chunks)-1 {
			params.Files = files
		}
		if _, err := s.executor.WebhookExecute(s.webhook.ID, s.webhook.Token, false, &params, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord webhook execute: %w", err)
		}
	}
	s.logger.Debug("discord webhook sent", "webhook_id", s.webhook.ID, "files", len(files), "parts", len(chunks))
	return nil
}

// openAttachment prefers the attachment's own stream and falls back to
// downloading its URI.
func (s *DiscordSender) openAttachment(ctx context.Context, att *domain.Attachment) (io.ReadCloser, error) {
	if stream := att.Stream(); stream != nil {
		return stream.Open(ctx)
	}
	uri, ok := att.URI()
	if !ok {
		return nil, domain.ErrNoContentSource
	}
	return s.fetcher.Fetch(ctx, uri)
}
