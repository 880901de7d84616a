package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/wire"
)

// maxLineSize bounds one replay line; datagrams are far smaller.
const maxLineSize = 64 * 1024

// ErrMalformedLine is returned for a replay line without a timestamp and
// datagram.
var ErrMalformedLine = errors.New("tellstick: malformed capture line")

// WriteLine writes raw in the replayable line format.
func WriteLine(w io.Writer, t time.Time, raw []byte) error {
	_, err := fmt.Fprintf(w, "%s %s\n", t.UTC().Format(time.RFC3339Nano), raw)
	return err
}

// ParseLine splits a replay line into its receive time and datagram.
func ParseLine(line string) (time.Time, []byte, error) {
	stamp, raw, ok := strings.Cut(strings.TrimSpace(line), " ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return time.Time{}, nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	return t, []byte(raw), nil
}

// Decode decodes one datagram the way a session does, using st for
// stateful decoders. The result carries an Event, an Err, or neither for
// diagnostic packets.
func Decode(reg *protocol.Registry, st *protocol.DecoderState, raw []byte, received time.Time) controller.Result {
	res := controller.Result{Raw: raw, Received: received}

	command, args, err := wire.Decode(raw)
	if err != nil {
		res.Err = err
		return res
	}
	res.Command = command

	switch command {
	case controller.CommandRawData:
		ev, err := reg.Decode(st, args)
		if err != nil {
			res.Err = err
			return res
		}
		ev = ev.Stamp(received)
		res.Event = &ev
	case controller.CommandZWaveInfo:
	default:
		res.Err = fmt.Errorf("%w: %q", controller.ErrUnsupportedCommand, command)
	}
	return res
}

// Replay reads capture lines from r and calls fn with each decoded result,
// in order. Blank lines and lines starting with # are skipped. Malformed
// lines are passed to fn as results with Err set. Replay stops at the
// first error fn returns, at EOF, or when ctx ends.
//
// A nil reg uses protocol.NewRegistry(). Decoder state is fresh for each
// call.
func Replay(ctx context.Context, r io.Reader, reg *protocol.Registry, fn func(controller.Result) error) error {
	if reg == nil {
		reg = protocol.NewRegistry()
	}
	st := protocol.NewDecoderState()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		t, raw, err := ParseLine(line)
		var res controller.Result
		if err != nil {
			res = controller.Result{Raw: []byte(line), Err: fmt.Errorf("line %d: %w", lineNo, err)}
		} else {
			res = Decode(reg, st, raw, t)
		}
		if err := fn(res); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading capture: %w", err)
	}
	return nil
}
