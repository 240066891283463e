package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
)

// Handler turns one request into one response. A non-nil error means the
// request broke the protocol and the connection is dropped.
type Handler interface {
	Dispatch(ctx context.Context, req protocol.Payload) (protocol.Payload, error)
}

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. Zero picks a free port, see TCP.Addr.
	Port int

	// Reuseport controls setting SO_REUSEPORT. It is forced on when
	// NumListeners is greater than one.
	Reuseport bool

	// NumListeners is the number of listening sockets sharing the port.
	// Defaults to 1.
	NumListeners int

	// MaxConns bounds how many connections are served at once across all
	// listeners. Defaults to 1: the next connection is not accepted until the
	// current one has closed.
	MaxConns int

	// IdleTimeout closes a connection that sends nothing for this long,
	// whether between requests or in the middle of one. Zero waits forever.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing one response. Zero waits forever.
	WriteTimeout time.Duration

	Codec   *protocol.Codec
	Handler Handler

	Log *zap.Logger
}
