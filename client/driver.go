package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/storage"
)

var ErrUnknownVerb = errors.New("client: unknown command")

// ParseVerb turns a command line verb into a command, ignoring case.
func ParseVerb(s string) (protocol.Command, error) {
	cmd, ok := protocol.ParseCommandFold(s)
	if !ok {
		return 0, fmt.Errorf("%w %q, expected one of put, get or list", ErrUnknownVerb, s)
	}

	return cmd, nil
}

// Report is the outcome of one command, printed as a single line.
type Report struct {
	Host     string
	Command  protocol.Command
	Filename string
	Success  bool
	Message  string
}

func (r Report) String() string {
	parts := []string{r.Host, r.Command.String()}
	if r.Filename != "" {
		parts = append(parts, r.Filename)
	}

	if r.Success {
		parts = append(parts, "SUCCESS")
	} else {
		parts = append(parts, "FAILURE")
	}

	line := strings.Join(parts, "\t")
	if !r.Success && r.Message != "" {
		line += ": " + strings.TrimSuffix(r.Message, ".") + "."
	}

	return line
}

type DriverOptions struct {
	Conn *Conn

	// Downloads receives the files fetched with GET.
	Downloads storage.Store

	// Out receives command output other than the report, i.e. LIST listings.
	Out io.Writer

	// AllowedExtensions restricts which local files PUT will send. Empty
	// allows any file.
	AllowedExtensions []string

	Log *zap.Logger
}

// Driver runs PUT, GET and LIST commands over a connected Conn.
type Driver struct {
	conn       *Conn
	downloads  storage.Store
	out        io.Writer
	extensions storage.Extensions
	log        *zap.Logger
}

func NewDriver(options DriverOptions) *Driver {
	out := options.Out
	if out == nil {
		out = io.Discard
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Driver{
		conn:       options.Conn,
		downloads:  options.Downloads,
		out:        out,
		extensions: storage.NewExtensions(options.AllowedExtensions),
		log:        log,
	}
}

// Run executes cmd. arg is the local path for PUT and the file name for GET,
// and is ignored for LIST.
//
// Failures the user should see, local or reported by the server, come back as
// an unsuccessful Report. An error means the exchange itself failed.
func (d *Driver) Run(ctx context.Context, cmd protocol.Command, arg string) (Report, error) {
	switch cmd {
	case protocol.CommandPut:
		return d.put(ctx, arg)

	case protocol.CommandGet:
		return d.get(ctx, arg)

	case protocol.CommandList:
		return d.list(ctx)

	default:
		return Report{}, fmt.Errorf("%w %s", ErrUnknownVerb, cmd)
	}
}

func (d *Driver) put(ctx context.Context, path string) (Report, error) {
	if path == "" {
		return d.report(protocol.CommandPut, "").fail("A file name is required"), nil
	}

	filename := filepath.Base(path)
	report := d.report(protocol.CommandPut, filename)

	if !d.extensions.Allows(filename) {
		return report.fail(fmt.Sprintf("Cannot send '%s' because %s files are not accepted",
			filename, storage.DisplayExtension(filename))), nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return report.fail(fmt.Sprintf("Cannot find '%s' on the client", path)), nil
	case err != nil:
		d.log.Warn("Failed to read local file", zap.String("path", path), zap.Error(err))
		return report.fail(fmt.Sprintf("Cannot read '%s' on the client", path)), nil
	}

	d.log.Debug("Sending file", zap.String("filename", filename), zap.Int("bytes", len(data)))

	resp, err := d.conn.Put(ctx, filename, data)
	if err != nil {
		return report, err
	}

	return report.from(resp), nil
}

func (d *Driver) get(ctx context.Context, filename string) (Report, error) {
	report := d.report(protocol.CommandGet, filename)

	if filename == "" {
		return report.fail("A file name is required"), nil
	}

	resp, err := d.conn.Get(ctx, filename)
	if err != nil {
		return report, err
	}

	if resp.Status != protocol.StatusOK {
		return report.from(resp), nil
	}

	name := filepath.Base(filename)

	err = d.downloads.Save(ctx, name, resp.FileData)
	switch {
	case err == nil:
		d.log.Debug("Saved download", zap.String("filename", name), zap.Int("bytes", len(resp.FileData)))
		return report.succeed(), nil

	case errors.Is(err, storage.ErrExists):
		return report.fail(fmt.Sprintf("Cannot download '%s' because it already exists on the client", name)), nil

	default:
		d.log.Warn("Failed to save download", zap.String("filename", name), zap.Error(err))
		return report.fail(fmt.Sprintf("Cannot save '%s' on the client", name)), nil
	}
}

func (d *Driver) list(ctx context.Context) (Report, error) {
	report := d.report(protocol.CommandList, "")

	resp, err := d.conn.List(ctx)
	if err != nil {
		return report, err
	}

	if resp.Status == protocol.StatusOK {
		fmt.Fprintln(d.out, "Files on the server:")
		fmt.Fprintln(d.out, resp.DetailsOr(""))
	}

	return report.from(resp), nil
}

func (d *Driver) report(cmd protocol.Command, filename string) Report {
	var host string
	if addr := d.conn.RemoteAddr(); addr != nil {
		host = addr.String()
	}

	return Report{Host: host, Command: cmd, Filename: filename}
}

func (r Report) succeed() Report {
	r.Success = true
	r.Message = ""
	return r
}

func (r Report) fail(message string) Report {
	r.Success = false
	r.Message = message
	return r
}

func (r Report) from(resp protocol.Payload) Report {
	if err := resp.ErrorOrNil(); err != nil {
		return r.fail(err.Error())
	}

	return r.succeed()
}
