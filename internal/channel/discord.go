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

// DiscordListenerConfig configures the Discord inbound adapter.
type DiscordListenerConfig struct {
	Session   *discordgo.Session
	ChannelID string
	Sender    domain.Sender
	Fetcher   MediaFetcher
	Timeout   time.Duration
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// DiscordListener relays messages posted in one Discord channel to a Sender.
type DiscordListener struct {
	session   *discordgo.Session
	channelID string
	sender    domain.Sender
	fetcher   MediaFetcher
	timeout   time.Duration
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// NewDiscordListener creates a Discord listener.
func NewDiscordListener(cfg DiscordListenerConfig) *DiscordListener {
	return &DiscordListener{
		session:   cfg.Session,
		channelID: cfg.ChannelID,
		sender:    cfg.Sender,
		fetcher:   cfg.Fetcher,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

func (d *DiscordListener) Name() string { return "discord" }

// Start connects to the gateway and relays messages until ctx is done.
func (d *DiscordListener) Start(ctx context.Context) error {
	d.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	remove := d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		d.handle(ctx, selfID, m.Message)
	})
	defer remove()

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	d.logger.Info("discord bot connected", "user", d.session.State.User.Username, "channel", d.channelID)

	// Wait for context cancellation.
	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return d.session.Close()
}

// handle runs one gateway event through filtering, conversion and sending.
// discordgo calls it on its own goroutine per event.
func (d *DiscordListener) handle(ctx context.Context, selfID string, m *discordgo.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Event(d.Name(), metrics.OutcomeFailed)
			d.logger.Error("discord event panicked", "event_id", m.ID, "panic", r)
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	msg, err := d.convert(selfID, m)
	if err != nil {
		d.metrics.Event(d.Name(), metrics.OutcomeRejected)
		d.logger.Error("discord message not relayed", "event_id", m.ID, "channel", m.ChannelID, "err", err)
		return
	}
	if msg == nil {
		d.metrics.Event(d.Name(), metrics.OutcomeIgnored)
		return
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.Event(d.Name(), metrics.OutcomeFailed)
		d.logger.Error("discord message relay failed", "event_id", m.ID, "to", d.sender.Name(), "err", err)
		return
	}
	d.metrics.Event(d.Name(), metrics.OutcomeRelayed)
	d.logger.Info("discord message relayed", "event_id", m.ID, "to", d.sender.Name())
}

// convert returns (nil, nil) for messages that are filtered out silently,
// (nil, err) for messages that should be reported, and (msg, nil) otherwise.
func (d *DiscordListener) convert(selfID string, m *discordgo.Message) (*domain.Message, error) {
	if m.ChannelID != d.channelID {
		return nil, nil
	}
	if m.Author == nil || m.WebhookID != "" || (selfID != "" && m.Author.ID == selfID) {
		return nil, nil
	}
	if m.Author.System || (m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply) {
		return nil, nil
	}
	if m.Flags&discordgo.MessageFlagsEphemeral != 0 {
		return nil, nil
	}

	author, err := discordAuthor(m)
	if err != nil {
		return nil, err
	}

	attachments := make([]*domain.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		att, err := d.discordAttachment(a)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}

	content := m.ContentWithMentionsReplaced()
	msg, err := domain.NewMessage(content, attachments, author)
	if err != nil {
		// Sticker-only and embed-only posts carry neither text nor files.
		return nil, fmt.Errorf("message %s: %w", m.ID, domain.ErrUnsupportedContent)
	}
	return msg, nil
}

func (d *DiscordListener) discordAttachment(a *discordgo.MessageAttachment) (*domain.Attachment, error) {
	src := a.ProxyURL
	if src == "" {
		src = a.URL
	}
	return domain.NewURIStreamAttachment(a.Filename, a.URL, func(ctx context.Context) (io.ReadCloser, error) {
		return d.fetcher.Fetch(ctx, src)
	})
}

// discordAuthor resolves the display name (nickname, global name, username)
// and avatar (guild avatar, user avatar) of the message author.
func discordAuthor(m *discordgo.Message) (*domain.Author, error) {
	name := m.Author.Username
	if m.Author.GlobalName != "" {
		name = m.Author.GlobalName
	}
	avatar := m.Author.AvatarURL("")
	if m.Member != nil {
		if m.Member.Nick != "" {
			name = m.Member.Nick
		}
		if m.Member.Avatar != "" {
			avatar = discordgo.EndpointGuildMemberAvatar(m.GuildID, m.Author.ID, m.Member.Avatar)
		}
	}
	return domain.NewAuthor(name, avatar)
}
