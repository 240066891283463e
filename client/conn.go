package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
)

var (
	ErrNotConnected       = errors.New("client: not connected")
	ErrUnexpectedResponse = errors.New("client: unexpected response")
)

// Conn is a single connection to a parcel server. Requests are strictly
// sequential: Do writes one request and reads exactly one response before
// the next request may go out.
type Conn struct {
	codec *protocol.Codec

	mu     sync.Mutex
	conn   net.Conn
	source protocol.ByteSource

	log *zap.Logger
}

func New(codec *protocol.Codec, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	return &Conn{
		codec: codec,
		log:   log,
	}
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("client: connect to %s: %w", addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.source = protocol.NewStreamSource(conn)
	c.mu.Unlock()

	c.log.Debug("Connected", zap.String("addr", conn.RemoteAddr().String()))
	return nil
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	err := c.conn.Close()
	c.conn = nil
	c.source = nil

	return err
}

// RemoteAddr is the server address, or nil when not connected.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	return c.conn.RemoteAddr()
}

// Do sends req and waits for its response. The context deadline, if any,
// bounds both the write and the read.
func (c *Conn) Do(ctx context.Context, req protocol.Payload) (protocol.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return protocol.Payload{}, ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return protocol.Payload{}, err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.Payload{}, err
	}

	// Unblock the socket if the context is cancelled mid request.
	stop := make(chan struct{})
	defer close(stop)

	go func(conn net.Conn) {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}(c.conn)

	if err := c.codec.WriteTo(c.conn, req); err != nil {
		return protocol.Payload{}, contextErr(ctx, err)
	}

	resp, err := c.codec.Decode(c.source)
	if err != nil {
		return protocol.Payload{}, contextErr(ctx, fmt.Errorf("client: read response: %w", err))
	}

	if resp.Command != req.Command {
		return resp, fmt.Errorf("%w: sent %s, received %s", ErrUnexpectedResponse, req.Command, resp.Command)
	}

	if resp.Status == protocol.StatusRequest {
		return resp, fmt.Errorf("%w: status %s", ErrUnexpectedResponse, resp.Status)
	}

	return resp, nil
}

func (c *Conn) Put(ctx context.Context, filename string, data []byte) (protocol.Payload, error) {
	return c.Do(ctx, protocol.PutRequest(filename, data))
}

func (c *Conn) Get(ctx context.Context, filename string) (protocol.Payload, error) {
	return c.Do(ctx, protocol.GetRequest(filename))
}

func (c *Conn) List(ctx context.Context) (protocol.Payload, error) {
	return c.Do(ctx, protocol.ListRequest())
}

// contextErr attributes a failed exchange to the context when the context is
// what ended it.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}

	// The socket deadline can fire just before the context notices its own.
	var netErr net.Error
	if _, ok := ctx.Deadline(); ok && errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}

	return err
}
