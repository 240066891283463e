package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrExists      = errors.New("storage: file already exists")
	ErrNotFound    = errors.New("storage: file not found")
	ErrInvalidName = errors.New("storage: invalid file name")
	ErrClosed      = errors.New("storage: store closed")
)

// Store holds named files. Save never overwrites: saving a name that is
// already stored fails with ErrExists, atomically with respect to concurrent
// Saves of the same name.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)

	// List returns the stored names in the store's enumeration order.
	List(ctx context.Context) ([]string, error)

	Close() error
}

// ValidateName accepts plain file names only: no directories, no "." or "..".
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"), filepath.Base(name) != name:
		return fmt.Errorf("%w: %q is not a base name", ErrInvalidName, name)
	}

	return nil
}
