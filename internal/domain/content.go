package domain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Loader produces the bytes behind a Content. It is called at most once.
type Loader func(ctx context.Context) (io.ReadCloser, error)

// Content is a lazily fetched, memoized byte source.
//
// The first Open runs the loader, buffers the whole stream and closes it.
// Every Open, including the first, returns an independent reader over the
// buffered bytes. Concurrent Opens wait for the single fetch and observe the
// same result. A failed fetch is memoized as well; the loader is never
// re-entered. The context of the first Open governs the fetch.
type Content struct {
	load Loader

	once    sync.Once
	data    []byte
	err     error
	fetched atomic.Bool
}

// NewContent wraps load. It returns nil for a nil loader so callers can pass
// an optional loader straight through.
func NewContent(load Loader) *Content {
	if load == nil {
		return nil
	}
	return &Content{load: load}
}

// Open returns a fresh reader over the content, fetching it on first use.
func (c *Content) Open(ctx context.Context) (io.ReadCloser, error) {
	c.once.Do(func() {
		c.data, c.err = c.fetch(ctx)
		c.fetched.Store(true)
	})
	if c.err != nil {
		return nil, c.err
	}
	return io.NopCloser(bytes.NewReader(c.data)), nil
}

// Bytes is Open followed by a full read.
func (c *Content) Bytes(ctx context.Context) ([]byte, error) {
	rc, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Fetched reports whether the loader has already run to completion.
func (c *Content) Fetched() bool {
	return c.fetched.Load()
}

func (c *Content) fetch(ctx context.Context) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("load content: panic: %v", r)
		}
	}()

	rc, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	if rc == nil {
		return nil, fmt.Errorf("load content: loader returned no stream")
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return data, nil
}
