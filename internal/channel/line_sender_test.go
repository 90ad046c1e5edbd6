package channel

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"relaybot/internal/domain"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLineSender(client LineMessenger) *LineSender {
	return NewLineSender(LineSenderConfig{
		Client:  client,
		GroupID: "Cdeadbeef",
		Logger:  testChannelLogger(),
	})
}

func TestLineSender_Text(t *testing.T) {
	fake := newFakeLine()
	msg, err := domain.NewTextMessage("hello", testAuthor(t, "alice"))
	require.NoError(t, err)

	require.NoError(t, newTestLineSender(fake).Send(context.Background(), msg))

	require.Len(t, fake.pushes, 1)
	push := fake.pushes[0]
	assert.Equal(t, "Cdeadbeef", push.to)
	assert.NotEmpty(t, push.retryKey)
	require.Len(t, push.msgs, 1)

	text, ok := push.msgs[0].(messaging_api.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)
	assert.Equal(t, "alice", text.Sender.Name)
	assert.Equal(t, "https://cdn.example.com/alice.png", text.Sender.IconUrl)
}

func TestLineSender_TextThenImages(t *testing.T) {
	fake := newFakeLine()
	png, err := domain.NewPreviewedAttachment("a.PNG", "https://cdn.example.com/a.png", "https://cdn.example.com/a_small.png")
	require.NoError(t, err)
	jpg, err := domain.NewURIAttachment("b.jpeg", "https://cdn.example.com/b.jpeg")
	require.NoError(t, err)
	msg, err := domain.NewTextAttachmentMessage("look", testAuthor(t, "bob"), png, jpg)
	require.NoError(t, err)

	require.NoError(t, newTestLineSender(fake).Send(context.Background(), msg))

	require.Len(t, fake.pushes, 1)
	msgs := fake.pushes[0].msgs
	require.Len(t, msgs, 3)
	assert.IsType(t, messaging_api.TextMessage{}, msgs[0])

	first := msgs[1].(messaging_api.ImageMessage)
	assert.Equal(t, "https://cdn.example.com/a.png", first.OriginalContentUrl)
	assert.Equal(t, "https://cdn.example.com/a_small.png", first.PreviewImageUrl)

	second := msgs[2].(messaging_api.ImageMessage)
	assert.Equal(t, "https://cdn.example.com/b.jpeg", second.PreviewImageUrl, "preview falls back to the original")
}

func TestLineSender_UnsupportedMediaSendsNothing(t *testing.T) {
	fake := newFakeLine()
	video, err := domain.NewURIAttachment("clip.mp4", "https://cdn.example.com/clip.mp4")
	require.NoError(t, err)
	msg, err := domain.NewTextAttachmentMessage("watch this", testAuthor(t, "carol"), video)
	require.NoError(t, err)

	err = newTestLineSender(fake).Send(context.Background(), msg)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)
	assert.Empty(t, fake.pushes)
}

func TestLineSender_StreamOnlyImageNeedsURI(t *testing.T) {
	fake := newFakeLine()
	att, err := domain.NewStreamAttachment("abc123.jpg", func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("must not be fetched")
	})
	require.NoError(t, err)
	msg, err := domain.NewAttachmentMessage(testAuthor(t, "dave"), att)
	require.NoError(t, err)

	err = newTestLineSender(fake).Send(context.Background(), msg)
	assert.ErrorIs(t, err, domain.ErrMissingURI)
	assert.Empty(t, fake.pushes)
	assert.False(t, att.Stream().Fetched())
}

func TestLineSender_PlainHTTPRejected(t *testing.T) {
	fake := newFakeLine()
	att, err := domain.NewURIAttachment("a.png", "http://cdn.example.com/a.png")
	require.NoError(t, err)
	msg, err := domain.NewAttachmentMessage(testAuthor(t, "erin"), att)
	require.NoError(t, err)

	assert.ErrorIs(t, newTestLineSender(fake).Send(context.Background(), msg), domain.ErrMissingURI)
	assert.Empty(t, fake.pushes)
}

func TestLineSender_ReportsEveryFailedAttachment(t *testing.T) {
	fake := newFakeLine()
	video, err := domain.NewURIAttachment("clip.mp4", "https://cdn.example.com/clip.mp4")
	require.NoError(t, err)
	plain, err := domain.NewURIAttachment("a.png", "http://cdn.example.com/a.png")
	require.NoError(t, err)
	msg, err := domain.NewAttachmentMessage(testAuthor(t, "frank"), video, plain)
	require.NoError(t, err)

	err = newTestLineSender(fake).Send(context.Background(), msg)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)
	assert.ErrorIs(t, err, domain.ErrMissingURI)
}

func TestLineSender_BatchesOfFive(t *testing.T) {
	fake := newFakeLine()
	var atts []*domain.Attachment
	for _, name := range []string{"1.png", "2.png", "3.png", "4.png", "5.png", "6.png"} {
		att, err := domain.NewURIAttachment(name, "https://cdn.example.com/"+name)
		require.NoError(t, err)
		atts = append(atts, att)
	}
	msg, err := domain.NewTextAttachmentMessage("album", testAuthor(t, "gina"), atts...)
	require.NoError(t, err)

	require.NoError(t, newTestLineSender(fake).Send(context.Background(), msg))

	require.Len(t, fake.pushes, 2)
	assert.Len(t, fake.pushes[0].msgs, 5)
	assert.Len(t, fake.pushes[1].msgs, 2)
	assert.NotEqual(t, fake.pushes[0].retryKey, fake.pushes[1].retryKey)
	last := fake.pushes[1].msgs[1].(messaging_api.ImageMessage)
	assert.Equal(t, "https://cdn.example.com/6.png", last.OriginalContentUrl)
}

func TestLineSender_TruncatesSenderName(t *testing.T) {
	fake := newFakeLine()
	msg, err := domain.NewTextMessage("hi", testAuthor(t, strings.Repeat("n", 30)))
	require.NoError(t, err)

	require.NoError(t, newTestLineSender(fake).Send(context.Background(), msg))
	text := fake.pushes[0].msgs[0].(messaging_api.TextMessage)
	assert.Len(t, text.Sender.Name, 20)
}

func TestLineSender_PushErrorIsReturned(t *testing.T) {
	fake := newFakeLine()
	fake.pushErr = errors.New("rate limited")
	msg, err := domain.NewTextMessage("hello", testAuthor(t, "hank"))
	require.NoError(t, err)

	err = newTestLineSender(fake).Send(context.Background(), msg)
	assert.ErrorContains(t, err, "rate limited")
}
