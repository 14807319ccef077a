// Package hostinterface speaks the line protocol between a host and the
// command dispatcher. A request is "command|arg|arg"; a reply is a JSON
// array led by "ok" or "error".
package hostinterface

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OCAP2/partswitch/internal/dispatcher"
)

// Built-in commands answered without the dispatcher.
const (
	CmdVersion   = ":VERSION:"
	CmdTimestamp = ":TIMESTAMP:"
)

// Separator splits a command from its arguments.
const Separator = "|"

// Interface routes protocol lines to a dispatcher.
type Interface struct {
	dispatcher *dispatcher.Dispatcher
	version    string
	now        func() time.Time
}

// New creates an interface answering :VERSION: with version.
func New(d *dispatcher.Dispatcher, version string) *Interface {
	if version == "" {
		version = "No version set"
	}
	return &Interface{dispatcher: d, version: version, now: time.Now}
}

// ParseLine splits a request line into its command and arguments.
func ParseLine(line string) dispatcher.Event {
	parts := strings.Split(strings.TrimSpace(line), Separator)
	e := dispatcher.Event{Command: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		e.Args = parts[1:]
	}
	return e
}

// FormatResponse encodes a handler result or error as a reply.
func FormatResponse(result any, err error) string {
	if err != nil {
		msg, _ := json.Marshal(err.Error())
		return fmt.Sprintf(`["error", %s]`, msg)
	}
	if result == nil {
		return `["ok"]`
	}
	data, mErr := json.Marshal(result)
	if mErr != nil {
		msg, _ := json.Marshal(mErr.Error())
		return fmt.Sprintf(`["error", %s]`, msg)
	}
	return fmt.Sprintf(`["ok", %s]`, data)
}

// Call handles one request line and returns the reply.
func (i *Interface) Call(line string) string {
	e := ParseLine(line)
	e.Timestamp = i.now()

	switch e.Command {
	case CmdVersion:
		return FormatResponse(i.version, nil)
	case CmdTimestamp:
		return FormatResponse(fmt.Sprintf("%d", e.Timestamp.UTC().UnixNano()), nil)
	}

	if i.dispatcher == nil {
		return FormatResponse(nil, fmt.Errorf("%w: %s", dispatcher.ErrUnknownCommand, e.Command))
	}
	return FormatResponse(i.dispatcher.Dispatch(e))
}

// Serve answers every line read from r on w until r is exhausted or ctx is
// done. Blank lines and lines starting with # are skipped.
func (i *Interface) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := fmt.Fprintln(w, i.Call(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
