package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ByteSource reads an exact number of bytes from a transport, blocking until
// they have all arrived. If the peer closes the transport first ReadExact
// fails with ErrConnectionClosed; it never returns a short buffer.
type ByteSource interface {
	ReadExact(n uint64) ([]byte, error)
}

// ByteSourceFunc adapts a function to a ByteSource.
type ByteSourceFunc func(n uint64) ([]byte, error)

func (f ByteSourceFunc) ReadExact(n uint64) ([]byte, error) {
	return f(n)
}

// readChunk bounds how much is allocated ahead of the data actually received,
// so a hostile length prefix cannot force a huge allocation on its own.
const readChunk = 64 * 1024

type streamSource struct {
	r io.Reader
}

// NewStreamSource returns a ByteSource over a stream such as a net.Conn.
// Reads may return any number of bytes; ReadExact keeps reading until it has
// n of them.
func NewStreamSource(r io.Reader) ByteSource {
	return &streamSource{r: r}
}

func (s *streamSource) ReadExact(n uint64) ([]byte, error) {
	if n <= readChunk {
		buf := make([]byte, n)
		if _, err := io.ReadFull(s.r, buf); err != nil {
			return nil, closedErr(err)
		}

		return buf, nil
	}

	var buf bytes.Buffer
	buf.Grow(readChunk)

	for remaining := n; remaining > 0; {
		chunk := remaining
		if chunk > readChunk {
			chunk = readChunk
		}

		read, err := io.CopyN(&buf, s.r, int64(chunk))
		remaining -= uint64(read)

		if err != nil {
			return nil, closedErr(err)
		}
	}

	return buf.Bytes(), nil
}

// closedErr maps a short read caused by the peer closing the stream to
// ErrConnectionClosed. Other errors, such as deadlines, are kept as is.
func closedErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	return err
}
