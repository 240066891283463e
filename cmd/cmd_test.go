package cmd_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/parcel/cmd"
	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/server"
	"github.com/luma/parcel/storage"
	"github.com/luma/parcel/transport"
)

var _ = Describe("ParsePort", func() {
	It("accepts ports from 1 to 65535", func() {
		Expect(cmd.ParsePort("1")).To(Equal(1))
		Expect(cmd.ParsePort("7363")).To(Equal(7363))
		Expect(cmd.ParsePort("65535")).To(Equal(65535))
	})

	It("rejects anything else", func() {
		for _, port := range []string{"0", "65536", "-1", "http", ""} {
			_, err := cmd.ParsePort(port)
			Expect(err).NotTo(Succeed(), port)
		}
	})
})

var _ = Describe("parcel", func() {
	var out *bytes.Buffer

	execute := func(args ...string) error {
		cmd.RootCmd.SetArgs(args)
		cmd.RootCmd.SetOut(out)
		cmd.RootCmd.SetErr(out)
		return cmd.RootCmd.Execute()
	}

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	It("prints its version", func() {
		Expect(execute("version")).To(Succeed())
		Expect(out.String()).To(HavePrefix("parcel "))
	})

	It("generates man pages", func() {
		dir, err := os.MkdirTemp("", "parcel-man-")
		Expect(err).To(Succeed())
		defer os.RemoveAll(dir)

		Expect(execute("gen", "man", "--dir", dir)).To(Succeed())
		Expect(filepath.Join(dir, "parcel-serve.1")).To(BeARegularFile())
		Expect(filepath.Join(dir, "parcel-client.1")).To(BeARegularFile())
	})

	Describe("client", func() {
		It("rejects an invalid port", func() {
			Expect(execute("client", "localhost", "70000", "list")).NotTo(Succeed())
		})

		It("rejects an unknown command before connecting", func() {
			Expect(execute("client", "localhost", "1", "delete", "a.txt")).To(MatchError(ContainSubstring("unknown command")))
		})

		It("requires a filename for put and get", func() {
			Expect(execute("client", "localhost", "1", "get")).NotTo(Succeed())
		})

		It("prints a failure report when it cannot reach the server", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(Succeed())
			addr := listener.Addr().String()
			Expect(listener.Close()).To(Succeed())

			host, port, err := net.SplitHostPort(addr)
			Expect(err).To(Succeed())

			Expect(execute("client", host, port, "get", "a.txt")).NotTo(Succeed())
			Expect(out.String()).To(HavePrefix(addr + "\tGET\ta.txt\tFAILURE: "))
		})

		It("prints a failure report when the server drops the connection", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(Succeed())
			defer listener.Close()

			codec, err := protocol.NewCodec(protocol.DefaultConfig())
			Expect(err).To(Succeed())

			go func() {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				defer conn.Close()

				codec.Decode(protocol.NewStreamSource(conn))
			}()

			host, port, err := net.SplitHostPort(listener.Addr().String())
			Expect(err).To(Succeed())

			Expect(execute("client", host, port, "list")).To(MatchError(protocol.ErrConnectionClosed))
			Expect(out.String()).To(HavePrefix(listener.Addr().String() + "\tLIST\tFAILURE: "))
		})

		It("lists the files on a server", func() {
			store := storage.NewInmemoryStore()
			Expect(store.Save(context.Background(), "a.txt", []byte("a"))).To(Succeed())

			codec, err := protocol.NewCodec(protocol.DefaultConfig())
			Expect(err).To(Succeed())

			tcp := transport.NewTCP(transport.Options{
				Host:    "127.0.0.1",
				Codec:   codec,
				Handler: server.NewDispatcher(server.Options{Store: store}),
				Log:     zap.NewNop(),
			})
			Expect(tcp.Start(context.Background())).To(Succeed())
			defer tcp.Close()

			addr := tcp.Addr().String()
			host, port, err := net.SplitHostPort(addr)
			Expect(err).To(Succeed())

			Expect(execute("client", host, port, "LIST")).To(Succeed())
			Expect(out.String()).To(Equal("Files on the server:\na.txt\n" + addr + "\tLIST\tSUCCESS\n"))
		})
	})
})
