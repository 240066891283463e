package protocol

import "strings"

type Command uint8

const (
	CommandPut Command = iota + 1
	CommandGet
	CommandList
)

var commandNames = map[Command]string{
	CommandPut:  "PUT",
	CommandGet:  "GET",
	CommandList: "LIST",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return "UNKNOWN"
}

// Valid reports whether c is one of the recognised commands.
func (c Command) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// ParseCommand maps a wire command name to a Command. Wire names are case
// sensitive and uppercase.
func ParseCommand(s string) (Command, bool) {
	for c, name := range commandNames {
		if name == s {
			return c, true
		}
	}

	return 0, false
}

// ParseCommandFold is ParseCommand ignoring case, for human input.
func ParseCommandFold(s string) (Command, bool) {
	return ParseCommand(strings.ToUpper(strings.TrimSpace(s)))
}

type Status uint8

const (
	StatusRequest Status = iota + 1
	StatusOK
	StatusError
)

var statusNames = map[Status]string{
	StatusRequest: "REQUEST",
	StatusOK:      "OK",
	StatusError:   "ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "UNKNOWN"
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func ParseStatus(s string) (Status, bool) {
	for st, name := range statusNames {
		if name == s {
			return st, true
		}
	}

	return 0, false
}
