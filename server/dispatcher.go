package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/storage"
)

type Options struct {
	Store storage.Store

	// AllowEmptyPut accepts PUT requests carrying zero bytes of file data.
	AllowEmptyPut bool

	// AllowedExtensions restricts PUT to names with one of these extensions,
	// compared case insensitively. Empty allows any name.
	AllowedExtensions []string

	Log *zap.Logger
}

// Dispatcher maps requests to the PUT, GET and LIST handlers. It holds no
// state between requests; everything it touches lives in the store.
type Dispatcher struct {
	store      storage.Store
	allowEmpty bool
	extensions storage.Extensions
	log        *zap.Logger
}

func NewDispatcher(options Options) *Dispatcher {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Dispatcher{
		store:      options.Store,
		allowEmpty: options.AllowEmptyPut,
		extensions: storage.NewExtensions(options.AllowedExtensions),
		log:        log,
	}
}

// Dispatch handles one validated request and returns exactly one response.
//
// Application failures (missing file, duplicate file, empty store) come back
// as an ERROR response with a nil error. A non-nil error means the peer broke
// the protocol and the connection should be dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Payload) (protocol.Payload, error) {
	if req.Status != protocol.StatusRequest {
		return protocol.Payload{}, fmt.Errorf("%w: requests must have status %s, got %s",
			protocol.ErrStatus, protocol.StatusRequest, req.Status)
	}

	switch req.Command {
	case protocol.CommandPut:
		return d.handlePut(ctx, req), nil

	case protocol.CommandGet:
		return d.handleGet(ctx, req), nil

	case protocol.CommandList:
		return d.handleList(ctx, req), nil

	default:
		return protocol.Payload{}, fmt.Errorf("%w: %s", protocol.ErrCommand, req.Command)
	}
}

func (d *Dispatcher) handlePut(ctx context.Context, req protocol.Payload) protocol.Payload {
	name, ok := requestName(req)
	if !ok {
		return d.fail(req, "A file name is required")
	}

	if !d.extensions.Allows(name) {
		return d.fail(req, fmt.Sprintf("Cannot save '%s' on the server because %s files are not accepted",
			name, storage.DisplayExtension(name)))
	}

	if len(req.FileData) == 0 && !d.allowEmpty {
		return d.fail(req, fmt.Sprintf("Cannot save '%s' on the server because it is empty", name))
	}

	err := d.store.Save(ctx, name, req.FileData)
	switch {
	case err == nil:
		d.log.Info("Saved file", zap.String("filename", name), zap.Int("bytes", len(req.FileData)))
		return protocol.OK(req)

	case errors.Is(err, storage.ErrExists):
		return d.fail(req, fmt.Sprintf("Cannot save '%s' on the server since it already exists", name))

	case errors.Is(err, storage.ErrInvalidName):
		return d.fail(req, fmt.Sprintf("Cannot save '%s' on the server because it is not a valid file name", name))

	default:
		d.log.Error("Failed to save file", zap.String("filename", name), zap.Error(err))
		return d.fail(req, fmt.Sprintf("Cannot save '%s' on the server", name))
	}
}

func (d *Dispatcher) handleGet(ctx context.Context, req protocol.Payload) protocol.Payload {
	name, ok := requestName(req)
	if !ok {
		return d.fail(req, "A file name is required")
	}

	data, err := d.store.Load(ctx, name)
	switch {
	case err == nil:
		d.log.Info("Sent file", zap.String("filename", name), zap.Int("bytes", len(data)))
		if data == nil {
			data = []byte{}
		}
		return protocol.OK(req, protocol.WithFileData(data))

	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidName):
		return d.fail(req, fmt.Sprintf("Cannot find '%s' on the server", name))

	default:
		d.log.Error("Failed to load file", zap.String("filename", name), zap.Error(err))
		return d.fail(req, fmt.Sprintf("Cannot read '%s' on the server", name))
	}
}

func (d *Dispatcher) handleList(ctx context.Context, req protocol.Payload) protocol.Payload {
	names, err := d.store.List(ctx)
	if err != nil {
		d.log.Error("Failed to list files", zap.Error(err))
		return d.fail(req, "Cannot list the files stored on the server")
	}

	if len(names) == 0 {
		return d.fail(req, "There are no files stored on the server")
	}

	return protocol.OK(req, protocol.WithDetails(strings.Join(names, "\n")))
}

func (d *Dispatcher) fail(req protocol.Payload, message string) protocol.Payload {
	d.log.Info("Request failed",
		zap.Stringer("command", req.Command),
		zap.String("filename", req.FilenameOr("")),
		zap.String("details", message))

	return protocol.Error(req, message)
}

// requestName reduces the requested filename to its base name.
func requestName(req protocol.Payload) (string, bool) {
	if req.Filename == nil {
		return "", false
	}

	name := filepath.Base(filepath.FromSlash(strings.ReplaceAll(*req.Filename, `\`, "/")))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", false
	}

	return name, true
}
