package protocol

import (
	"fmt"
	"io"
)

// Encode validates p and frames it.
func (c *Codec) Encode(p Payload) ([]byte, error) {
	r := p.Record()

	// Size is checked from EncodedLen, so validation does not serialize.
	if err := c.Validate(r); err != nil {
		return nil, err
	}

	if _, err := FromRecord(r); err != nil {
		return nil, err
	}

	body, err := Marshal(r)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, c.width, c.width+len(body))
	PutPrefix(frame, uint64(len(body)))

	return append(frame, body...), nil
}

// WriteTo encodes p and writes the whole frame to w.
func (c *Codec) WriteTo(w io.Writer, p Payload) error {
	frame, err := c.Encode(p)
	if err != nil {
		return err
	}

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}

	return nil
}

// PutPrefix writes n big-endian into all of prefix.
func PutPrefix(prefix []byte, n uint64) {
	for i := len(prefix) - 1; i >= 0; i-- {
		prefix[i] = byte(n)
		n >>= 8
	}
}

// ReadPrefix interprets prefix as an unsigned big-endian integer.
func ReadPrefix(prefix []byte) uint64 {
	var n uint64
	for _, b := range prefix {
		n = n<<8 | uint64(b)
	}

	return n
}
