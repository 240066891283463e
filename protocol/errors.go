package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStructural       = errors.New("protocol: payload has missing or unexpected keys")
	ErrFieldType        = errors.New("protocol: payload field has the wrong type")
	ErrSize             = errors.New("protocol: payload too large")
	ErrCommand          = errors.New("protocol: unrecognised command")
	ErrStatus           = errors.New("protocol: unrecognised status")
	ErrConnectionClosed = errors.New("protocol: connection closed")
	ErrPrefixWidth      = errors.New("protocol: prefix width must be between 1 and 8 bytes")
	ErrMalformed        = errors.New("protocol: malformed record")
)

// StructuralError is returned when a record does not carry exactly the
// canonical payload keys, or when a required key is null.
type StructuralError struct {
	Missing    []string
	Unexpected []string
	Duplicate  []string
	Null       []string
}

func (e *StructuralError) Error() string {
	parts := make([]string, 0, 4)

	if len(e.Missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(e.Missing, ", "))
	}

	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected keys: "+strings.Join(e.Unexpected, ", "))
	}

	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate keys: "+strings.Join(e.Duplicate, ", "))
	}

	if len(e.Null) > 0 {
		parts = append(parts, "null required keys: "+strings.Join(e.Null, ", "))
	}

	return fmt.Sprintf("%s (%s)", ErrStructural.Error(), strings.Join(parts, "; "))
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// FieldTypeError names the field whose value kind is not allowed.
type FieldTypeError struct {
	Field string
	Got   Kind
	Want  []Kind
}

func (e *FieldTypeError) Error() string {
	want := make([]string, len(e.Want))
	for i, k := range e.Want {
		want[i] = k.String()
	}

	return fmt.Sprintf("%s: %s is %s, want %s",
		ErrFieldType.Error(), e.Field, e.Got, strings.Join(want, " or "))
}

func (e *FieldTypeError) Is(target error) bool {
	return target == ErrFieldType
}

type SizeError struct {
	Size uint64
	Max  uint64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %d bytes exceeds the maximum of %d bytes",
		ErrSize.Error(), e.Size, e.Max)
}

func (e *SizeError) Is(target error) bool {
	return target == ErrSize
}
