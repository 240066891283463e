package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Kind tags the type of a record value on the wire.
type Kind uint8

const (
	KindNull   Kind = 0
	KindString Kind = 1
	KindBytes  Kind = 2
	KindInt    Kind = 3
	KindBool   Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	recordHeaderLen = 2
	fieldKeyLenLen  = 1
	fieldValueHdr   = 1 + 4

	maxFields    = math.MaxUint16
	maxKeyLen    = math.MaxUint8
	maxValueLen  = math.MaxUint32
	intValueLen  = 8
	boolValueLen = 1
)

// Value is a single tagged record value.
type Value struct {
	Kind  Kind
	Str   string
	Bytes []byte
	Int   int64
	Bool  bool
}

func Null() Value { return Value{Kind: KindNull} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func OptString(s *string) Value {
	if s == nil {
		return Null()
	}
	return String(*s)
}

func OptBytes(b []byte) Value {
	if b == nil {
		return Null()
	}
	return Bytes(b)
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

func (v Value) valueLen() uint64 {
	switch v.Kind {
	case KindString:
		return uint64(len(v.Str))
	case KindBytes:
		return uint64(len(v.Bytes))
	case KindInt:
		return intValueLen
	case KindBool:
		return boolValueLen
	default:
		return 0
	}
}

// Field is one keyed value of a record.
type Field struct {
	Key   string
	Value Value
}

// Record is the generic, ordered wire form of a payload.
//
// Layout, all integers big-endian:
//
//	count:u16 { keyLen:u8 key kind:u8 valueLen:u32 value }*
type Record []Field

// Get returns the first value stored under key.
func (r Record) Get(key string) (Value, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}

	return Value{}, false
}

// EncodedLen is the exact length Marshal would produce for r.
func EncodedLen(r Record) uint64 {
	n := uint64(recordHeaderLen)
	for _, f := range r {
		n += fieldKeyLenLen + uint64(len(f.Key)) + fieldValueHdr + f.Value.valueLen()
	}

	return n
}

// Marshal serializes r. It fails only if r cannot be represented, such as a
// key longer than 255 bytes or a value longer than 4 GiB.
func Marshal(r Record) ([]byte, error) {
	if len(r) > maxFields {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformed, len(r))
	}

	buf := make([]byte, recordHeaderLen, EncodedLen(r))
	binary.BigEndian.PutUint16(buf, uint16(len(r)))

	for _, f := range r {
		if len(f.Key) > maxKeyLen {
			return nil, fmt.Errorf("%w: key %.16q... is too long", ErrMalformed, f.Key)
		}

		vlen := f.Value.valueLen()
		if vlen > maxValueLen {
			return nil, &SizeError{Size: vlen, Max: maxValueLen}
		}

		buf = append(buf, byte(len(f.Key)))
		buf = append(buf, f.Key...)
		buf = append(buf, byte(f.Value.Kind))

		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(vlen))
		buf = append(buf, l[:]...)

		switch f.Value.Kind {
		case KindNull:
		case KindString:
			buf = append(buf, f.Value.Str...)
		case KindBytes:
			buf = append(buf, f.Value.Bytes...)
		case KindInt:
			var i [intValueLen]byte
			binary.BigEndian.PutUint64(i[:], uint64(f.Value.Int))
			buf = append(buf, i[:]...)
		case KindBool:
			if f.Value.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		default:
			return nil, fmt.Errorf("%w: field %q has %s", ErrMalformed, f.Key, f.Value.Kind)
		}
	}

	return buf, nil
}

// Unmarshal parses a serialized record. Byte values are copied out of data.
func Unmarshal(data []byte) (Record, error) {
	if len(data) < recordHeaderLen {
		return nil, fmt.Errorf("%w: short record header", ErrMalformed)
	}

	count := int(binary.BigEndian.Uint16(data))
	data = data[recordHeaderLen:]
	r := make(Record, 0, count)

	for i := 0; i < count; i++ {
		if len(data) < fieldKeyLenLen {
			return nil, fmt.Errorf("%w: short field header", ErrMalformed)
		}

		klen := int(data[0])
		data = data[fieldKeyLenLen:]
		if len(data) < klen+fieldValueHdr {
			return nil, fmt.Errorf("%w: short field header", ErrMalformed)
		}

		key := string(data[:klen])
		kind := Kind(data[klen])
		vlen := uint64(binary.BigEndian.Uint32(data[klen+1 : klen+fieldValueHdr]))
		data = data[klen+fieldValueHdr:]

		if uint64(len(data)) < vlen {
			return nil, fmt.Errorf("%w: short value for %q", ErrMalformed, key)
		}

		raw := data[:vlen]
		data = data[vlen:]

		v, err := decodeValue(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		r = append(r, Field{Key: key, Value: v})
	}

	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data))
	}

	return r, nil
}

func decodeValue(kind Kind, raw []byte) (Value, error) {
	switch kind {
	case KindNull:
		if len(raw) != 0 {
			return Value{}, fmt.Errorf("%w: null value with %d bytes", ErrMalformed, len(raw))
		}
		return Null(), nil

	case KindString:
		if !utf8.Valid(raw) {
			return Value{}, fmt.Errorf("%w: string is not valid UTF-8", ErrMalformed)
		}
		return String(string(raw)), nil

	case KindBytes:
		b := make([]byte, len(raw))
		copy(b, raw)
		return Bytes(b), nil

	case KindInt:
		if len(raw) != intValueLen {
			return Value{}, fmt.Errorf("%w: int value with %d bytes", ErrMalformed, len(raw))
		}
		return Int(int64(binary.BigEndian.Uint64(raw))), nil

	case KindBool:
		if len(raw) != boolValueLen || raw[0] > 1 {
			return Value{}, fmt.Errorf("%w: invalid bool value", ErrMalformed)
		}
		return Bool(raw[0] == 1), nil

	default:
		return Value{}, fmt.Errorf("%w: unknown %s", ErrMalformed, kind)
	}
}
