package domain

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringLoader returns a loader serving s that counts its invocations.
func stringLoader(s string, calls *int) Loader {
	return func(ctx context.Context) (io.ReadCloser, error) {
		*calls++
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

type trackingCloser struct {
	io.Reader
	closed bool
}

func (t *trackingCloser) Close() error {
	t.closed = true
	return nil
}

func TestContent_FetchesOnce(t *testing.T) {
	calls := 0
	c := NewContent(stringLoader("payload", &calls))
	assert.False(t, c.Fetched())

	for i := 0; i < 3; i++ {
		data, err := c.Bytes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	}
	assert.Equal(t, 1, calls)
	assert.True(t, c.Fetched())
}

func TestContent_ReadersAreIndependent(t *testing.T) {
	calls := 0
	c := NewContent(stringLoader("abcdef", &calls))

	r1, err := c.Open(context.Background())
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(r1, buf)
	require.NoError(t, err)

	r2, err := c.Open(context.Background())
	require.NoError(t, err)
	all, err := io.ReadAll(r2)
	require.NoError(t, err)

	assert.Equal(t, "abc", string(buf))
	assert.Equal(t, "abcdef", string(all))
}

func TestContent_ClosesUnderlyingStream(t *testing.T) {
	tc := &trackingCloser{Reader: strings.NewReader("x")}
	c := NewContent(func(ctx context.Context) (io.ReadCloser, error) { return tc, nil })

	_, err := c.Bytes(context.Background())
	require.NoError(t, err)
	assert.True(t, tc.closed)
}

func TestContent_ErrorIsMemoized(t *testing.T) {
	var calls int
	boom := errors.New("boom")
	c := NewContent(func(ctx context.Context) (io.ReadCloser, error) {
		calls++
		return nil, boom
	})

	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = c.Open(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestContent_PanicBecomesError(t *testing.T) {
	c := NewContent(func(ctx context.Context) (io.ReadCloser, error) {
		panic("loader exploded")
	})

	_, err := c.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loader exploded")

	_, err = c.Open(context.Background())
	require.Error(t, err)
}

func TestContent_ConcurrentOpenFetchesOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewContent(func(ctx context.Context) (io.ReadCloser, error) {
		calls.Add(1)
		<-release
		return io.NopCloser(strings.NewReader("shared")), nil
	})

	const readers = 16
	var wg sync.WaitGroup
	results := make([]string, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := c.Bytes(context.Background())
			results[i], errs[i] = string(data), err
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestNewContent_NilLoader(t *testing.T) {
	assert.Nil(t, NewContent(nil))
}

func TestAttachment_StreamAndPreviewAreMemoized(t *testing.T) {
	var full, preview int
	att, err := NewAttachment(AttachmentSource{
		Filename:      "pic.jpg",
		Stream:        stringLoader("full", &full),
		PreviewStream: stringLoader("small", &preview),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := att.Stream().Bytes(context.Background())
		require.NoError(t, err)
		_, err = att.PreviewStream().Bytes(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, preview)
}

func TestAuthor_AvatarStreamIsMemoized(t *testing.T) {
	calls := 0
	a, err := NewStreamAuthor("carol", stringLoader("avatar", &calls))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := a.AvatarStream().Bytes(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}
