package protocol

import (
	"fmt"
	"math"
)

const (
	MinPrefixWidth = 1
	MaxPrefixWidth = 8

	// DefaultPrefixWidth allows payloads of up to 4 GiB - 1.
	DefaultPrefixWidth = 4
)

// Config fixes the framing parameters. Both ends of a connection must agree on
// PrefixWidth.
type Config struct {
	// PrefixWidth is the number of bytes in the big-endian length prefix.
	PrefixWidth int

	// MaxPayloadBytes further bounds the serialized payload length. Zero means
	// the bound is whatever the prefix can represent.
	MaxPayloadBytes uint64
}

func DefaultConfig() Config {
	return Config{PrefixWidth: DefaultPrefixWidth}
}

// MaxPayloadSize returns 2^(8*width) - 1, the largest length a prefix of width
// bytes can describe.
func MaxPayloadSize(width int) (uint64, error) {
	if width < MinPrefixWidth || width > MaxPrefixWidth {
		return 0, fmt.Errorf("%w: got %d", ErrPrefixWidth, width)
	}

	if width == MaxPrefixWidth {
		return math.MaxUint64, nil
	}

	return uint64(1)<<(8*uint(width)) - 1, nil
}

// Codec frames payloads as a fixed-width length prefix followed by the
// serialized record. A Codec holds no per-connection state and is safe for
// concurrent use.
type Codec struct {
	width int
	limit uint64
}

func NewCodec(config Config) (*Codec, error) {
	limit, err := MaxPayloadSize(config.PrefixWidth)
	if err != nil {
		return nil, err
	}

	if config.MaxPayloadBytes > 0 && config.MaxPayloadBytes < limit {
		limit = config.MaxPayloadBytes
	}

	return &Codec{width: config.PrefixWidth, limit: limit}, nil
}

func (c *Codec) PrefixWidth() int {
	return c.width
}

// Limit is the largest serialized payload this codec encodes or accepts.
func (c *Codec) Limit() uint64 {
	return c.limit
}

// Validate checks a record against the payload invariants using this codec's
// size limit.
func (c *Codec) Validate(r Record) error {
	return Validate(r, c.limit)
}
