package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// ResponderConfig configures a fake appliance.
type ResponderConfig struct {
	// Addr is the listen address. Default: ":30303".
	Addr string

	// Reply is the record sent back to each probe.
	// Default: "TellStickNet:MAC:CODE:17".
	Reply string

	// Logger is optional.
	Logger Logger
}

// Responder answers discovery probes like an appliance would.
//
// Thread Safety:
//   - Serve runs in one goroutine; Close may be called from any goroutine.
type Responder struct {
	cfg  ResponderConfig
	conn *net.UDPConn

	closeOnce sync.Once
	answered  atomic.Uint64
}

// NewResponder binds the responder socket.
func NewResponder(cfg ResponderConfig) (*Responder, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":" + strconv.Itoa(DefaultPort)
	}
	if cfg.Reply == "" {
		cfg.Reply = fmt.Sprintf("%s:MAC:CODE:%d", ProductTellStickNet, MinFirmwareTellStickNet)
	}

	addr, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolving responder address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("binding responder: %w", err)
	}
	return &Responder{cfg: cfg, conn: conn}, nil
}

// Addr returns the bound address.
func (r *Responder) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr) //nolint:forcetypeassert // always UDP
}

// Answered returns how many probes were answered.
func (r *Responder) Answered() uint64 {
	return r.answered.Load()
}

// Serve answers probes until ctx ends or Close is called.
// Datagrams other than the probe are ignored.
func (r *Responder) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	if r.cfg.Logger != nil {
		r.cfg.Logger.Info("mock tellstick listening for discovery requests", "addr", r.Addr().String())
	}

	buf := make([]byte, replyBufferSize)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading probe: %w", err)
		}
		if string(buf[:n]) != Probe {
			continue
		}

		if r.cfg.Logger != nil {
			r.cfg.Logger.Info("got discovery request, replying", "from", from.String())
		}
		if _, err := r.conn.WriteToUDP([]byte(r.cfg.Reply), from); err != nil {
			if r.cfg.Logger != nil {
				r.cfg.Logger.Warn("discovery reply failed", "to", from.String(), "error", err)
			}
			continue
		}
		r.answered.Add(1)
	}
}

// Close releases the socket. Safe to call more than once.
func (r *Responder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
	})
	return err
}
