package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
)

var ErrNotStarted = errors.New("transport: server has not been started")

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	reuseport    bool
	listeners    []*TCPListener

	// connSlots holds one token per connection that may be served at once
	connSlots chan struct{}

	conn connOptions

	log *zap.Logger
}

// connOptions is what every TCPConn needs from the server.
type connOptions struct {
	codec        *protocol.Codec
	handler      Handler
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners
	if numListeners < 1 {
		numListeners = 1
	}

	maxConns := options.MaxConns
	if maxConns < 1 {
		maxConns = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners: numListeners,
		reuseport:    options.Reuseport || numListeners > 1,
		listeners:    make([]*TCPListener, 0, numListeners),
		connSlots:    make(chan struct{}, maxConns),
		conn: connOptions{
			codec:        options.Codec,
			handler:      options.Handler,
			idleTimeout:  options.IdleTimeout,
			writeTimeout: options.WriteTimeout,
		},
		log: log,
	}
}

// Start binds every listener and then serves them in the background. When
// Start returns without error the server is accepting connections.
func (w *TCP) Start(parentCtx context.Context) error {
	if w.conn.codec == nil || w.conn.handler == nil {
		return errors.New("transport: a codec and a handler are required")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	for i := 0; i < w.numListeners; i++ {
		if err := w.startListener(ctx, w.addr); err != nil {
			return multierr.Append(err, w.Close())
		}
	}

	return nil
}

// Addr is the address of the first listener, useful when Port was zero.
func (w *TCP) Addr() net.Addr {
	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

func (w *TCP) startListener(ctx context.Context, addr string) error {
	// Every listener after the first binds the port the first one got, so a
	// zero port still yields a single shared port.
	if len(w.listeners) > 0 {
		addr = w.listeners[0].Addr().String()
	}

	var (
		listener net.Listener
		err      error
	)

	if w.reuseport {
		listener, err = reuseport.Listen("tcp", addr)
	} else {
		listener, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", addr, err)
	}

	tcpListener := NewTCPListener(
		ctx,
		listener,
		w.connSlots,
		w.conn,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)

	w.listeners = append(w.listeners, tcpListener)

	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		if err := tcpListener.Listen(); err != nil {
			// A listener failing is not fatal for the others, but the port now
			// has fewer sockets accepting on it.
			w.log.Error("Failed to listen", zap.Error(err))
		}
	}()

	return nil
}

// Close immediately closes all listeners and active connections, and waits
// for their goroutines to exit.
func (w *TCP) Close() (err error) {
	if w.cancel == nil {
		return ErrNotStarted
	}

	w.log.Info("Stopping TCP server")
	w.cancel()

	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("Listeners stopped")

	return err
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	log      *zap.Logger

	connSlots chan struct{}
	conn      connOptions

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}
	loopWaiter  sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	connSlots chan struct{},
	conn connOptions,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		connSlots:   connSlots,
		conn:        conn,
		activeConns: make(map[*TCPConn]struct{}),
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting and closes every active connection.
func (t *TCPListener) Close() error {
	t.closeOnce.Do(func() {
		if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.closeErr = err
		}

		t.mu.Lock()
		defer t.mu.Unlock()

		for conn := range t.activeConns {
			t.closeErr = multierr.Append(t.closeErr, conn.Close())
		}
	})

	return t.closeErr
}

// Listen accepts connections until the context is cancelled or the listener
// is closed. A connection is only accepted once a connection slot is free.
func (t *TCPListener) Listen() error {
	go func() {
		<-t.ctx.Done()

		t.log.Info("Closing listener")
		if err := t.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	defer func() {
		t.log.Info("Waiting for connections to finish")
		t.loopWaiter.Wait()
		t.log.Info("Listener stopped")
	}()

	for {
		select {
		case <-t.ctx.Done():
			return nil

		case t.connSlots <- struct{}{}:
		}

		conn, err := t.listener.Accept()
		if err != nil {
			<-t.connSlots

			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return nil
			}

			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn, t.conn, t.log.Named("conn"))
		if !t.addConn(tcpConn) {
			tcpConn.Close()
			<-t.connSlots
			return nil
		}

		t.loopWaiter.Add(1)
		go func() {
			defer t.loopWaiter.Done()
			defer func() { <-t.connSlots }()
			defer t.removeConn(tcpConn)

			tcpConn.Serve()
		}()
	}
}

// addConn registers conn unless the listener is shutting down.
func (t *TCPListener) addConn(conn *TCPConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return false
	}

	t.activeConns[conn] = struct{}{}
	return true
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

// TCPConn serves the requests of one client, strictly one at a time:
// read a request, dispatch it, write the response, repeat until the client
// disconnects or breaks the protocol.
type TCPConn struct {
	ctx context.Context

	conn   net.Conn
	source protocol.ByteSource
	opts   connOptions

	closeOnce sync.Once
	closeErr  error

	log *zap.Logger
}

func NewTCPConn(
	ctx context.Context,
	conn net.Conn,
	opts connOptions,
	log *zap.Logger,
) *TCPConn {
	return &TCPConn{
		ctx:    ctx,
		conn:   conn,
		source: protocol.NewStreamSource(idleReader{conn: conn, timeout: opts.idleTimeout}),
		opts:   opts,
		log:    log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

func (t *TCPConn) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})

	return t.closeErr
}

func (t *TCPConn) Serve() {
	log := t.log

	log.Info("Client connected")

	defer func() {
		if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("Failed to close connection cleanly", zap.Error(err))
		}

		log.Info("Client disconnected")
	}()

	for {
		req, err := t.readRequest()
		if err != nil {
			switch {
			case t.ctx.Err() != nil:
				log.Info("Context cancelled, exiting...")
			case errors.Is(err, protocol.ErrConnectionClosed):
			case isTimeout(err):
				log.Info("Closing idle connection", zap.Duration("idleTimeout", t.opts.idleTimeout))
			default:
				log.Warn("Failed to read client request", zap.Error(err))
			}
			return
		}

		resp, err := t.opts.handler.Dispatch(t.ctx, req)
		if err != nil {
			log.Warn("Rejected client request",
				zap.Stringer("command", req.Command),
				zap.Stringer("status", req.Status),
				zap.Error(err))
			return
		}

		if err := t.writeResponse(resp); err != nil {
			log.Warn("Failed to respond to client",
				zap.Stringer("command", resp.Command),
				zap.Error(err))
			return
		}
	}
}

func (t *TCPConn) readRequest() (protocol.Payload, error) {
	return t.opts.codec.Decode(t.source)
}

func (t *TCPConn) writeResponse(resp protocol.Payload) error {
	var deadline time.Time
	if t.opts.writeTimeout > 0 {
		deadline = time.Now().Add(t.opts.writeTimeout)
	}

	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return t.opts.codec.WriteTo(t.conn, resp)
}

// idleReader pushes the read deadline back before every read, so a
// connection only times out once the client stops sending, not while a large
// request is still arriving.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}

	return r.conn.Read(p)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
