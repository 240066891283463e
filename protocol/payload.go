package protocol

import "fmt"

// Canonical payload keys. Every encoded payload carries exactly these.
const (
	KeyCommand  = "command"
	KeyStatus   = "status"
	KeyFilename = "filename"
	KeyFileData = "file_data"
	KeyDetails  = "details"
)

// Keys lists the canonical payload keys in wire order.
var Keys = []string{KeyCommand, KeyStatus, KeyFilename, KeyFileData, KeyDetails}

// Payload is the message unit exchanged between client and server.
//
// A nil Filename, FileData or Details is sent as an explicit null. An empty,
// non-nil FileData is sent as zero bytes and is distinct from null.
type Payload struct {
	Command  Command
	Status   Status
	Filename *string
	FileData []byte
	Details  *string
}

type Option func(*Payload)

func WithFilename(name string) Option {
	return func(p *Payload) {
		p.Filename = &name
	}
}

func WithFileData(data []byte) Option {
	return func(p *Payload) {
		p.FileData = data
	}
}

func WithDetails(details string) Option {
	return func(p *Payload) {
		p.Details = &details
	}
}

// New builds a payload. Fields not set by an option are null.
func New(command Command, status Status, opts ...Option) Payload {
	p := Payload{Command: command, Status: status}
	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// FilenameOr returns the filename, or def when it is null.
func (p Payload) FilenameOr(def string) string {
	if p.Filename == nil {
		return def
	}

	return *p.Filename
}

// DetailsOr returns the details, or def when they are null.
func (p Payload) DetailsOr(def string) string {
	if p.Details == nil {
		return def
	}

	return *p.Details
}

// Record converts p to its wire form with all five keys present.
func (p Payload) Record() Record {
	return Record{
		{Key: KeyCommand, Value: enumValue(p.Command.Valid(), p.Command.String())},
		{Key: KeyStatus, Value: enumValue(p.Status.Valid(), p.Status.String())},
		{Key: KeyFilename, Value: OptString(p.Filename)},
		{Key: KeyFileData, Value: OptBytes(p.FileData)},
		{Key: KeyDetails, Value: OptString(p.Details)},
	}
}

// A zero Command or Status is encoded as null so validation rejects it
// instead of a made up name going over the wire.
func enumValue(valid bool, name string) Value {
	if !valid {
		return Null()
	}

	return String(name)
}

// FromRecord converts a validated record into a Payload. Command and status
// must be non-null.
func FromRecord(r Record) (Payload, error) {
	var p Payload

	command, _ := r.Get(KeyCommand)
	status, _ := r.Get(KeyStatus)

	var null []string
	if command.IsNull() {
		null = append(null, KeyCommand)
	}
	if status.IsNull() {
		null = append(null, KeyStatus)
	}
	if len(null) > 0 {
		return Payload{}, &StructuralError{Null: null}
	}

	c, ok := ParseCommand(command.Str)
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q", ErrCommand, command.Str)
	}

	s, ok := ParseStatus(status.Str)
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q", ErrStatus, status.Str)
	}

	p.Command = c
	p.Status = s

	if v, _ := r.Get(KeyFilename); !v.IsNull() {
		name := v.Str
		p.Filename = &name
	}

	if v, _ := r.Get(KeyFileData); !v.IsNull() {
		p.FileData = v.Bytes
		if p.FileData == nil {
			p.FileData = []byte{}
		}
	}

	if v, _ := r.Get(KeyDetails); !v.IsNull() {
		details := v.Str
		p.Details = &details
	}

	return p, nil
}
