package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// InmemoryStore keeps files in a single JSON document mapping each name to
// its base64 encoded contents. Names enumerate in the order they were saved.
type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte("{}"),
		stop:   make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryStore) Save(ctx context.Context, name string, data []byte) (err error) {
	if err := ValidateName(name); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrClosed
	}

	path := escapePath(name)
	if gjson.GetBytes(i.values, path).Exists() {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}

	i.values, err = sjson.SetBytes(i.values, path, base64.StdEncoding.EncodeToString(data))
	return err
}

func (i *InmemoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, escapePath(name))
	if !result.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return base64.StdEncoding.DecodeString(result.String())
}

func (i *InmemoryStore) List(ctx context.Context) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	names := make([]string, 0)
	gjson.ParseBytes(i.values).ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})

	return names, nil
}

// Restore replaces the store contents with a document produced by Backup.
func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return fmt.Errorf("storage: restore: not a JSON object")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)
	return nil
}

// Backup returns the store contents as a JSON document.
func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return append([]byte(nil), i.values...), nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

// escapePath turns a file name into a gjson/sjson path naming a single top
// level key, so dots and wildcards in names are not treated as path syntax.
func escapePath(name string) string {
	var b strings.Builder
	b.Grow(len(name) * 2)

	for _, r := range name {
		if !isPathSafe(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}

func isPathSafe(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r > 0x7f
}

var _ Store = (*InmemoryStore)(nil)
