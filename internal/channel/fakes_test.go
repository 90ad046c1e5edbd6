package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/require"
)

func testChannelLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testAuthor(t *testing.T, name string) *domain.Author {
	t.Helper()
	a, err := domain.NewAuthor(name, "https://cdn.example.com/"+name+".png")
	require.NoError(t, err)
	return a
}

type pushCall struct {
	to       string
	msgs     []messaging_api.MessageInterface
	retryKey string
}

// fakeLine records every call made through the LINE interfaces.
type fakeLine struct {
	mu sync.Mutex

	pushes  []pushCall
	replies [][]messaging_api.MessageInterface
	left    []string
	blobs   []string

	pushErr         error
	replyErr        error
	groupProfileErr error
	profileErr      error
	groupProfile    LineProfile
	profile         LineProfile
	botUserID       string

	endpoint    LineEndpoint
	endpointErr error
	setCalls    []string
	setErr      error
	queryCalls  int
}

func newFakeLine() *fakeLine {
	return &fakeLine{
		groupProfile: LineProfile{DisplayName: "Hanako", PictureURL: "https://profile.line-scdn.net/hanako"},
		profile:      LineProfile{DisplayName: "hanako-global"},
	}
}

func (f *fakeLine) Push(_ context.Context, to string, msgs []messaging_api.MessageInterface, retryKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushCall{to: to, msgs: msgs, retryKey: retryKey})
	return f.pushErr
}

func (f *fakeLine) Reply(_ context.Context, _ string, msgs []messaging_api.MessageInterface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, msgs)
	return f.replyErr
}

func (f *fakeLine) LeaveGroup(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, groupID)
	return nil
}

func (f *fakeLine) GroupMemberProfile(context.Context, string, string) (LineProfile, error) {
	return f.groupProfile, f.groupProfileErr
}

func (f *fakeLine) Profile(context.Context, string) (LineProfile, error) {
	return f.profile, f.profileErr
}

func (f *fakeLine) BotUserID(context.Context) (string, error) {
	if f.botUserID == "" {
		return "", errors.New("bot info unavailable")
	}
	return f.botUserID, nil
}

func (f *fakeLine) MessageContent(_ context.Context, messageID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs = append(f.blobs, messageID)
	return io.NopCloser(strings.NewReader("blob:" + messageID)), nil
}

func (f *fakeLine) WebhookEndpoint(context.Context) (LineEndpoint, error) {
	f.queryCalls++
	return f.endpoint, f.endpointErr
}

func (f *fakeLine) SetWebhookEndpoint(_ context.Context, url string) error {
	f.setCalls = append(f.setCalls, url)
	return f.setErr
}

// recordingSender captures relayed messages.
type recordingSender struct {
	mu   sync.Mutex
	msgs []*domain.Message
	err  error
}

func (s *recordingSender) Name() string { return "recorder" }

func (s *recordingSender) Send(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) sent() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Message(nil), s.msgs...)
}

type executeCall struct {
	webhookID string
	token     string
	params    discordgo.WebhookParams
	files     map[string]string
}

// fakeDiscord implements the Discord webhook interfaces.
type fakeDiscord struct {
	calls      []executeCall
	executeErr error

	hooks     []*discordgo.Webhook
	created   []string
	createErr error
}

func (f *fakeDiscord) WebhookExecute(webhookID, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	call := executeCall{webhookID: webhookID, token: token, params: *data, files: map[string]string{}}
	for _, file := range data.Files {
		b, err := io.ReadAll(file.Reader)
		if err != nil {
			return nil, err
		}
		call.files[file.Name] = string(b)
	}
	f.calls = append(f.calls, call)
	return &discordgo.Message{}, f.executeErr
}

func (f *fakeDiscord) ChannelWebhooks(string, ...discordgo.RequestOption) ([]*discordgo.Webhook, error) {
	return f.hooks, nil
}

func (f *fakeDiscord) WebhookCreate(channelID, name, _ string, _ ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, name)
	return &discordgo.Webhook{ID: "new-hook", Token: "new-token", ChannelID: channelID, Name: name}, nil
}

// fakeFetcher serves fixed bodies by URL.
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("not found: " + url)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
