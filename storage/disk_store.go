package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps each file as a regular file in a single directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}

	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Dir() string {
	return d.dir
}

// Save creates name exclusively, so a concurrent Save of the same name
// observes ErrExists rather than overwriting.
func (d *DiskStore) Save(ctx context.Context, name string, data []byte) (err error) {
	if err := ValidateName(name); err != nil {
		return err
	}

	path := filepath.Join(d.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
		return err
	}

	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}

		// Don't leave a partial file behind for the next Save to trip over
		if err != nil {
			os.Remove(path)
		}
	}()

	_, err = f.Write(data)
	return err
}

func (d *DiskStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	path := filepath.Join(d.dir, name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return os.ReadFile(path)
}

// List returns the regular files in the directory, sorted by name.
func (d *DiskStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

func (d *DiskStore) Close() error {
	return nil
}

var _ Store = (*DiskStore)(nil)
