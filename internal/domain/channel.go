package domain

import "context"

// Listener is the inbound side of a platform (Discord gateway, LINE webhook).
// Start blocks until ctx is cancelled or the listener fails.
type Listener interface {
	Name() string
	Start(ctx context.Context) error
}

// Sender renders a Message onto one platform.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}
