package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sync"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// LineListenerConfig configures the LINE inbound adapter.
type LineListenerConfig struct {
	Server        *CallbackServer
	Client        LineMessenger
	Blob          LineBlobFetcher
	Sender        domain.Sender
	GroupID       string
	BotUserID     string // looked up on Start when empty
	DefaultAvatar string
	Timeout       time.Duration
	Metrics       *metrics.Recorder
	Logger        *slog.Logger
}

// LineListener relays messages posted in one LINE group to a Sender.
type LineListener struct {
	server        *CallbackServer
	client        LineMessenger
	blob          LineBlobFetcher
	sender        domain.Sender
	groupID       string
	botUserID     string
	defaultAvatar string
	timeout       time.Duration
	metrics       *metrics.Recorder
	logger        *slog.Logger

	inflight sync.WaitGroup
}

// NewLineListener creates a LINE listener.
func NewLineListener(cfg LineListenerConfig) *LineListener {
	return &LineListener{
		server:        cfg.Server,
		client:        cfg.Client,
		blob:          cfg.Blob,
		sender:        cfg.Sender,
		groupID:       cfg.GroupID,
		botUserID:     cfg.BotUserID,
		defaultAvatar: cfg.DefaultAvatar,
		timeout:       cfg.Timeout,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

func (l *LineListener) Name() string { return "line" }

// Start serves LINE callbacks until ctx is done, then waits for events
// already accepted to finish.
func (l *LineListener) Start(ctx context.Context) error {
	if l.botUserID == "" {
		id, err := l.client.BotUserID(ctx)
		if err != nil {
			l.logger.Warn("line bot info unavailable, self-message check disabled", "err", err)
		} else {
			l.botUserID = id
		}
	}

	err := l.server.Start(ctx, l)
	l.Wait()
	return err
}

// Wait blocks until every dispatched event has been processed.
func (l *LineListener) Wait() {
	l.inflight.Wait()
}

// HandleEvents processes the events of one callback sequentially on a
// goroutine detached from the request, so the callback can be acknowledged
// immediately.
func (l *LineListener) HandleEvents(ctx context.Context, events []webhook.EventInterface) {
	ctx = context.WithoutCancel(ctx)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		for _, e := range events {
			l.processEvent(ctx, toLineEvent(e))
		}
	}()
}

// processEvent handles one event in isolation; failures are reported and
// never affect the next event.
func (l *LineListener) processEvent(ctx context.Context, ev lineEvent) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.Event(l.Name(), metrics.OutcomeFailed)
			l.logger.Error("line event panicked", "event_id", ev.id, "panic", r)
		}
	}()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	switch ev.kind {
	case lineEventMessage:
		l.relay(ctx, ev)
	case lineEventJoin:
		l.handleJoin(ctx, ev)
	default:
		l.metrics.Event(l.Name(), metrics.OutcomeIgnored)
		l.logger.Debug("line event ignored", "event_id", ev.id, "type", ev.typ)
	}
}

func (l *LineListener) relay(ctx context.Context, ev lineEvent) {
	msg, err := l.convert(ctx, ev)
	if err != nil {
		outcome := metrics.OutcomeFailed
		if errors.Is(err, domain.ErrUnsupportedContent) || errors.Is(err, domain.ErrUnknownContent) {
			outcome = metrics.OutcomeRejected
		}
		l.metrics.Event(l.Name(), outcome)
		l.logger.Error("line message not relayed", "event_id", ev.id, "group_id", ev.source.groupID, "err", err)
		return
	}
	if msg == nil {
		l.metrics.Event(l.Name(), metrics.OutcomeIgnored)
		return
	}

	if err := l.sender.Send(ctx, msg); err != nil {
		l.metrics.Event(l.Name(), metrics.OutcomeFailed)
		l.logger.Error("line message relay failed", "event_id", ev.id, "to", l.sender.Name(), "err", err)
		return
	}
	l.metrics.Event(l.Name(), metrics.OutcomeRelayed)
	l.logger.Info("line message relayed", "event_id", ev.id, "to", l.sender.Name())
}

// convert returns (nil, nil) for events that are filtered out silently,
// (nil, err) for events that should be reported, and (msg, nil) otherwise.
func (l *LineListener) convert(ctx context.Context, ev lineEvent) (*domain.Message, error) {
	if ev.source.kind != lineSourceGroup || ev.source.groupID != l.groupID {
		return nil, nil
	}
	if l.botUserID != "" && ev.source.userID == l.botUserID {
		return nil, nil
	}

	c := ev.content
	var att *domain.Attachment
	var err error
	switch c.kind {
	case lineContentText:
		author, err := l.author(ctx, ev.source)
		if err != nil {
			return nil, err
		}
		return domain.NewTextMessage(c.text, author)
	case lineContentImage:
		att, err = l.mediaAttachment(c, "jpg")
	case lineContentAudio:
		att, err = l.mediaAttachment(c, "m4a")
	case lineContentVideo:
		att, err = l.mediaAttachment(c, "mp4")
	case lineContentFile:
		name := c.fileName
		if name == "" {
			name = c.id
		}
		att, err = domain.NewStreamAttachment(name, l.blobLoader(c.id))
	case lineContentLocation, lineContentSticker:
		return nil, fmt.Errorf("line %s message %s: %w", c.kind, c.id, domain.ErrUnsupportedContent)
	default:
		return nil, fmt.Errorf("line message %s: %w", c.id, domain.ErrUnknownContent)
	}
	if err != nil {
		return nil, err
	}

	author, err := l.author(ctx, ev.source)
	if err != nil {
		return nil, err
	}
	return domain.NewAttachmentMessage(author, att)
}

// mediaAttachment maps image, audio and video content. Content hosted by LINE
// becomes a lazily downloaded stream named <id>.<ext>; externally hosted
// content is referenced by URL.
func (l *LineListener) mediaAttachment(c lineContent, ext string) (*domain.Attachment, error) {
	switch c.provider.kind {
	case lineProviderLine:
		return domain.NewStreamAttachment(c.id+"."+ext, l.blobLoader(c.id))
	case lineProviderExternal:
		return domain.NewPreviewedAttachment(urlBaseName(c.provider.originalURL, c.id+"."+ext),
			c.provider.originalURL, c.provider.previewURL)
	default:
		return nil, fmt.Errorf("line %s message %s: content provider: %w", c.kind, c.id, domain.ErrUnknownContent)
	}
}

func (l *LineListener) blobLoader(messageID string) domain.Loader {
	return func(ctx context.Context) (rc io.ReadCloser, err error) {
		defer func() { l.metrics.Fetch(err) }()
		return l.blob.MessageContent(ctx, messageID)
	}
}

// author resolves the sender's group profile, falling back to the
// platform-wide profile.
func (l *LineListener) author(ctx context.Context, src lineSource) (*domain.Author, error) {
	if src.userID == "" {
		return nil, errors.New("line event has no user id")
	}
	profile, err := l.client.GroupMemberProfile(ctx, src.groupID, src.userID)
	if err != nil {
		l.logger.Debug("line group profile lookup failed, trying user profile", "group_id", src.groupID, "err", err)
		profile, err = l.client.Profile(ctx, src.userID)
		if err != nil {
			return nil, fmt.Errorf("line profile %s: %w", src.userID, err)
		}
	}

	avatar := profile.PictureURL
	if avatar == "" {
		avatar = l.defaultAvatar
	}
	return domain.NewAuthor(profile.DisplayName, avatar)
}

// handleJoin tells the group its ID, then leaves it whether or not the reply
// went through.
func (l *LineListener) handleJoin(ctx context.Context, ev lineEvent) {
	if ev.source.kind != lineSourceGroup {
		l.logger.Info("line join from non-group source ignored", "event_id", ev.id)
		return
	}
	groupID := ev.source.groupID
	l.logger.Info("joined line group", "group_id", groupID)

	reply := []messaging_api.MessageInterface{
		messaging_api.TextMessage{Text: fmt.Sprintf("This group's ID is %s.", groupID)},
	}
	if err := l.client.Reply(ctx, ev.replyToken, reply); err != nil {
		l.logger.Error("line join reply failed", "group_id", groupID, "err", err)
	}
	if err := l.client.LeaveGroup(ctx, groupID); err != nil {
		l.logger.Error("line leave group failed", "group_id", groupID, "err", err)
	}
}

// urlBaseName returns the last path segment of raw, or fallback.
func urlBaseName(raw, fallback string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return fallback
	}
	return base
}
