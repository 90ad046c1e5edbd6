package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	lineMaxSenderName   = 20
	lineMaxTextLen      = 5000
	lineMaxPushMessages = 5
)

// LineSenderConfig configures the LINE push sender.
type LineSenderConfig struct {
	Client  LineMessenger
	GroupID string
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// LineSender pushes canonical messages into one LINE group.
type LineSender struct {
	client  LineMessenger
	groupID string
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewLineSender creates a LINE sender.
func NewLineSender(cfg LineSenderConfig) *LineSender {
	return &LineSender{
		client:  cfg.Client,
		groupID: cfg.GroupID,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

func (s *LineSender) Name() string { return "line" }

// Send renders msg as LINE messages and pushes them in order. If any part of
// msg cannot be rendered nothing is pushed.
func (s *LineSender) Send(ctx context.Context, msg *domain.Message) error {
	start := time.Now()
	defer func() { s.metrics.ObserveSend(s.Name(), time.Since(start)) }()

	msgs, err := renderLine(msg)
	if err != nil {
		return err
	}

	for i := 0; i < len(msgs); i += lineMaxPushMessages {
		end := min(i+lineMaxPushMessages, len(msgs))
		if err := s.client.Push(ctx, s.groupID, msgs[i:end], uuid.NewString()); err != nil {
			return fmt.Errorf("line push: %w", err)
		}
	}
	s.logger.Debug("line push sent", "group_id", s.groupID, "messages", len(msgs))
	return nil
}

// renderLine converts msg to LINE message objects: text first, then one image
// per attachment.
func renderLine(msg *domain.Message) ([]messaging_api.MessageInterface, error) {
	author := msg.Author()
	sender := &messaging_api.Sender{Name: truncateRunes(author.Name(), lineMaxSenderName)}
	if icon, ok := author.AvatarURI(); ok && isHTTPS(icon) {
		sender.IconUrl = icon
	}

	var out []messaging_api.MessageInterface
	if text, ok := msg.Content(); ok {
		for _, chunk := range splitMessage(text, lineMaxTextLen) {
			out = append(out, messaging_api.TextMessage{Text: chunk, Sender: sender})
		}
	}

	var errs []error
	for _, att := range msg.Attachments() {
		img, err := renderLineImage(att, sender)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, img)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func renderLineImage(att *domain.Attachment, sender *messaging_api.Sender) (messaging_api.MessageInterface, error) {
	switch att.Extension() {
	case "jpg", "jpeg", "png":
	default:
		return nil, fmt.Errorf("%s: %w", att.Filename(), domain.ErrUnsupportedMedia)
	}

	original, ok := att.URI()
	if !ok || !isHTTPS(original) {
		return nil, fmt.Errorf("%s: %w", att.Filename(), domain.ErrMissingURI)
	}
	preview, ok := att.PreviewURI()
	if !ok || !isHTTPS(preview) {
		preview = original
	}
	return messaging_api.ImageMessage{
		OriginalContentUrl: original,
		PreviewImageUrl:    preview,
		Sender:             sender,
	}, nil
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}
