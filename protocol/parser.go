package protocol

// Decode reads one framed payload from src and validates it.
//
// The length prefix is checked against the codec limit before the body is
// read, so an oversized frame fails with a SizeError without being consumed.
// Errors from src, ErrConnectionClosed in particular, are propagated so
// callers can tell a disconnect apart from a protocol violation.
func (c *Codec) Decode(src ByteSource) (Payload, error) {
	prefix, err := src.ReadExact(uint64(c.width))
	if err != nil {
		return Payload{}, err
	}

	size := ReadPrefix(prefix)
	if size > c.limit {
		return Payload{}, &SizeError{Size: size, Max: c.limit}
	}

	body, err := src.ReadExact(size)
	if err != nil {
		return Payload{}, err
	}

	r, err := Unmarshal(body)
	if err != nil {
		return Payload{}, err
	}

	if err := c.Validate(r); err != nil {
		return Payload{}, err
	}

	return FromRecord(r)
}
