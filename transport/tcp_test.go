package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/server"
	"github.com/luma/parcel/storage"
	"github.com/luma/parcel/transport"
)

var _ = Describe("transport", func() {
	var (
		dir   string
		store *storage.DiskStore
		codec *protocol.Codec
	)

	BeforeEach(func() {
		var err error

		dir, err = os.MkdirTemp("", "parcel-transport-")
		Expect(err).To(Succeed())

		store, err = storage.NewDiskStore(dir)
		Expect(err).To(Succeed())

		codec, err = protocol.NewCodec(protocol.DefaultConfig())
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	start := func(options transport.Options) *transport.TCP {
		options.Host = "127.0.0.1"
		options.Codec = codec
		options.Handler = server.NewDispatcher(server.Options{Store: store})
		options.Log = zap.NewNop()

		tcp := transport.NewTCP(options)
		Expect(tcp.Start(context.Background())).To(Succeed())
		return tcp
	}

	dial := func(tcp *transport.TCP) net.Conn {
		conn, err := net.Dial("tcp", tcp.Addr().String())
		Expect(err).To(Succeed())
		return conn
	}

	exchange := func(conn net.Conn, req protocol.Payload) protocol.Payload {
		Expect(conn.SetDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
		Expect(codec.WriteTo(conn, req)).To(Succeed())

		resp, err := codec.Decode(protocol.NewStreamSource(conn))
		Expect(err).To(Succeed())
		return resp
	}

	Describe("TCP", func() {
		It("listens on the desired port", func() {
			tcp := start(transport.Options{})
			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			Expect(tcp.Addr()).NotTo(BeNil())
			dial(tcp).Close()
		})

		It("refuses to close before it was started", func() {
			tcp := transport.NewTCP(transport.Options{})
			Expect(tcp.Close()).To(MatchError(transport.ErrNotStarted))
		})

		It("refuses to start without a codec and a handler", func() {
			tcp := transport.NewTCP(transport.Options{Host: "127.0.0.1"})
			Expect(tcp.Start(context.Background())).NotTo(Succeed())
		})

		It("serves PUT, GET and LIST over a single connection", func() {
			tcp := start(transport.Options{})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			resp := exchange(conn, protocol.PutRequest("a.txt", []byte("0123456789")))
			Expect(resp.Status).To(Equal(protocol.StatusOK))
			Expect(resp.Command).To(Equal(protocol.CommandPut))
			Expect(resp.FilenameOr("")).To(Equal("a.txt"))

			resp = exchange(conn, protocol.GetRequest("a.txt"))
			Expect(resp.Status).To(Equal(protocol.StatusOK))
			Expect(resp.FileData).To(Equal([]byte("0123456789")))

			resp = exchange(conn, protocol.ListRequest())
			Expect(resp.Status).To(Equal(protocol.StatusOK))
			Expect(resp.DetailsOr("")).To(Equal("a.txt"))
		})

		It("keeps the connection open after an application failure", func() {
			tcp := start(transport.Options{})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			Expect(exchange(conn, protocol.PutRequest("a.txt", []byte("first"))).Status).To(Equal(protocol.StatusOK))

			resp := exchange(conn, protocol.PutRequest("a.txt", []byte("second")))
			Expect(resp.Status).To(Equal(protocol.StatusError))
			Expect(resp.DetailsOr("")).To(Equal("Cannot save 'a.txt' on the server since it already exists"))

			resp = exchange(conn, protocol.GetRequest("b.txt"))
			Expect(resp.Status).To(Equal(protocol.StatusError))
			Expect(resp.DetailsOr("")).To(Equal("Cannot find 'b.txt' on the server"))
		})

		It("keeps serving after a client disconnects mid frame", func() {
			tcp := start(transport.Options{})
			defer tcp.Close()

			conn := dial(tcp)
			_, err := conn.Write([]byte{0, 0, 1})
			Expect(err).To(Succeed())
			conn.Close()

			conn = dial(tcp)
			defer conn.Close()

			resp := exchange(conn, protocol.ListRequest())
			Expect(resp.Status).To(Equal(protocol.StatusError))
			Expect(resp.DetailsOr("")).To(Equal("There are no files stored on the server"))
		})

		It("drops a connection that sends a malformed payload", func() {
			tcp := start(transport.Options{})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			_, err := conn.Write([]byte{0, 0, 0, 3, 0xff, 0xff, 0xff})
			Expect(err).To(Succeed())

			waitForClose(conn)
		})

		It("drops a connection that sends a response instead of a request", func() {
			tcp := start(transport.Options{})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			Expect(codec.WriteTo(conn, protocol.OK(protocol.ListRequest()))).To(Succeed())

			waitForClose(conn)
		})

		It("drops a connection that declares an oversized payload", func() {
			limited, err := protocol.NewCodec(protocol.Config{PrefixWidth: 4, MaxPayloadBytes: 64})
			Expect(err).To(Succeed())
			codec = limited

			tcp := start(transport.Options{})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			_, err = conn.Write([]byte{0, 0, 1, 0})
			Expect(err).To(Succeed())

			waitForClose(conn)
		})

		It("serves one connection at a time by default", func() {
			tcp := start(transport.Options{})
			defer tcp.Close()

			first := dial(tcp)
			Expect(exchange(first, protocol.ListRequest()).Status).To(Equal(protocol.StatusError))

			second := dial(tcp)
			defer second.Close()

			Expect(codec.WriteTo(second, protocol.ListRequest())).To(Succeed())

			Expect(second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))).To(Succeed())
			_, err := codec.Decode(protocol.NewStreamSource(second))
			Expect(isTimeout(err)).To(BeTrue())

			first.Close()

			Expect(second.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			resp, err := codec.Decode(protocol.NewStreamSource(second))
			Expect(err).To(Succeed())
			Expect(resp.Command).To(Equal(protocol.CommandList))
		})

		It("serves connections concurrently when allowed to", func() {
			tcp := start(transport.Options{MaxConns: 2})
			defer tcp.Close()

			first := dial(tcp)
			defer first.Close()
			Expect(exchange(first, protocol.ListRequest()).Command).To(Equal(protocol.CommandList))

			second := dial(tcp)
			defer second.Close()
			Expect(exchange(second, protocol.ListRequest()).Command).To(Equal(protocol.CommandList))
		})

		It("closes idle connections", func() {
			tcp := start(transport.Options{IdleTimeout: 50 * time.Millisecond})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			waitForClose(conn)
		})

		It("keeps a slow request alive while its bytes keep arriving", func() {
			tcp := start(transport.Options{IdleTimeout: 200 * time.Millisecond})
			defer tcp.Close()

			conn := dial(tcp)
			defer conn.Close()

			frame, err := codec.Encode(protocol.PutRequest("slow.bin", bytes.Repeat([]byte("x"), 1024)))
			Expect(err).To(Succeed())

			// Five chunks 100ms apart take longer than the idle timeout overall.
			chunk := len(frame)/5 + 1
			for offset := 0; offset < len(frame); offset += chunk {
				end := offset + chunk
				if end > len(frame) {
					end = len(frame)
				}

				_, err := conn.Write(frame[offset:end])
				Expect(err).To(Succeed())
				time.Sleep(100 * time.Millisecond)
			}

			Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			resp, err := codec.Decode(protocol.NewStreamSource(conn))
			Expect(err).To(Succeed())
			Expect(resp.Status).To(Equal(protocol.StatusOK))
		})

		It("shares the port between several listeners", func() {
			tcp := start(transport.Options{NumListeners: 2, MaxConns: 2})
			defer tcp.Close()

			for i := 0; i < 4; i++ {
				conn := dial(tcp)
				Expect(exchange(conn, protocol.ListRequest()).Command).To(Equal(protocol.CommandList))
				conn.Close()
			}
		})

		It("closes active connections when closed", func() {
			tcp := start(transport.Options{})

			conn := dial(tcp)
			defer conn.Close()
			Expect(exchange(conn, protocol.ListRequest()).Command).To(Equal(protocol.CommandList))

			Expect(tcp.Close()).To(Succeed())
			waitForClose(conn)
		})
	})
})

// waitForClose fails unless the server closes conn within a few seconds.
func waitForClose(conn net.Conn) {
	Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	one := make([]byte, 1)
	for {
		_, err := conn.Read(one)
		if err == nil {
			continue
		}

		if isTimeout(err) {
			Fail("The client was never closed by the server")
		}

		Expect(errors.Is(err, io.EOF) || isReset(err)).To(BeTrue(), "unexpected error %v", err)
		return
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "read"
}
