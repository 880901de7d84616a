package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/wire"
)

// CommandRequest asks the session to actuate one device.
type CommandRequest struct {
	Protocol string
	Model    string
	House    string
	Unit     int
	Method   protocol.Method

	// Param is the dim level (0-255) for MethodDim.
	Param int

	// RepeatCount is how many datagrams to send. Zero uses the session
	// default.
	RepeatCount int

	// RepeatDelay is the pause between datagrams. Zero uses the session
	// default; a negative value sends back to back.
	RepeatDelay time.Duration
}

// Key identifies the target device: protocol/model/house/unit.
func (r CommandRequest) Key() string {
	return r.Protocol + "/" + r.Model + "/" + r.House + "/" + strconv.Itoa(r.Unit)
}

func (r CommandRequest) command() protocol.Command {
	return protocol.Command{
		Protocol: r.Protocol,
		Model:    r.Model,
		House:    r.House,
		Unit:     r.Unit,
		Method:   r.Method,
		Param:    r.Param,
	}
}

// dispatch is one in-flight repeat sequence.
type dispatch struct {
	cancel context.CancelFunc
}

// Execute encodes req and schedules its transmission, then returns without
// waiting for the repeats. Encoding errors are returned synchronously.
//
// A pending sequence for the same Key is cancelled and replaced. Sequences
// for different keys run concurrently.
//
// ctx supplies values only; the sequence outlives it and ends on its own,
// when superseded, or when the session closes.
func (s *Session) Execute(ctx context.Context, req CommandRequest) error {
	switch s.State() {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return ErrSessionClosed
	}

	args, err := s.cfg.Registry.Encode(req.command())
	if err != nil {
		return fmt.Errorf("encoding %s: %w", req.Key(), err)
	}
	packet, err := wire.Encode(wire.CommandSend, args)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", req.Key(), err)
	}

	count := req.RepeatCount
	if count <= 0 {
		count = s.cfg.RepeatCount
	}
	delay := req.RepeatDelay
	switch {
	case delay == 0:
		delay = s.cfg.RepeatDelay
	case delay < 0:
		delay = 0
	}

	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d := &dispatch{cancel: cancel}
	key := req.Key()

	s.inflightMu.Lock()
	if s.closing {
		s.inflightMu.Unlock()
		cancel()
		return ErrSessionClosed
	}
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
		s.superseded.Add(1)
		s.logDebug("superseding pending command", "device", key)
	}
	s.inflight[key] = d
	s.dispatches.Add(1)
	s.inflightMu.Unlock()

	s.logInfo("sending command",
		"device", key,
		"method", req.Method.String(),
		"repeats", count,
	)

	go s.run(dctx, key, d, packet, count, delay)
	return nil
}

// Wait blocks until every scheduled Execute sequence has finished.
func (s *Session) Wait() {
	s.dispatches.Wait()
}

// run sends packet count times, pausing delay between sends. It stops early
// when cancelled, between sends only.
func (s *Session) run(ctx context.Context, key string, d *dispatch, packet []byte, count int, delay time.Duration) {
	defer s.dispatches.Done()
	defer func() {
		s.inflightMu.Lock()
		if s.inflight[key] == d {
			delete(s.inflight, key)
		}
		s.inflightMu.Unlock()
		d.cancel()
	}()

	for i := range count {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.clock.After(delay):
			}
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.send(packet); err != nil {
			s.sendErrors.Add(1)
			if s.isClosed() {
				return
			}
			s.logWarn("command send failed", "device", key, "attempt", i+1, "error", err)
			continue
		}
		s.commandsTx.Add(1)
	}
}
