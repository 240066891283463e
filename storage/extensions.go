package storage

import (
	"path/filepath"
	"strings"
)

// Extensions is a case insensitive set of file extensions. A nil set allows
// every name.
type Extensions map[string]struct{}

// NewExtensions accepts entries with or without the leading dot. It returns
// nil when exts is empty.
func NewExtensions(exts []string) Extensions {
	var set Extensions

	for _, ext := range exts {
		ext = normalizeExtension(ext)
		if ext == "" {
			continue
		}

		if set == nil {
			set = make(Extensions, len(exts))
		}
		set[ext] = struct{}{}
	}

	return set
}

func (e Extensions) Allows(name string) bool {
	if e == nil {
		return true
	}

	_, ok := e[normalizeExtension(filepath.Ext(name))]
	return ok
}

// DisplayExtension names the extension of name for messages.
func DisplayExtension(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}

	return "extensionless"
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}
