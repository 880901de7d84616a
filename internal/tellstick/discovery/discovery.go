package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Discovery protocol constants.
const (
	// DefaultPort is the UDP port appliances listen on for probes.
	DefaultPort = 30303

	// DefaultTimeout is how long to wait for the next reply.
	DefaultTimeout = 5 * time.Second

	// BroadcastAddress is the default probe target.
	BroadcastAddress = "255.255.255.255"

	// Probe is the payload of a discovery request.
	Probe = "D"

	// MinFirmwareTellStickNet is the oldest TellStickNet firmware that
	// supports reglistener.
	MinFirmwareTellStickNet = 17

	replyBufferSize = 1024
)

// Product identifiers.
const (
	ProductTellStickNet       = "TellStickNet"
	ProductTellstickZnet      = "TellstickZnet"
	ProductTellstickZnetLite  = "TellstickZnetLite"
	ProductTellstickZnetLite2 = "TellstickZnetLite2"
)

// supportedProducts is matched by substring against the reply's product
// field.
var supportedProducts = []string{
	ProductTellStickNet,
	ProductTellstickZnet,
	ProductTellstickZnetLite,
	ProductTellstickZnetLite2,
}

// Device describes an appliance that answered a probe.
type Device struct {
	IP       net.IP `json:"ip"`
	MAC      string `json:"mac"`
	Product  string `json:"product"`
	Firmware string `json:"firmware"`

	// Code is the activation code printed on the appliance.
	Code string `json:"code,omitempty"`

	// Extra is the optional fifth field sent by newer firmware.
	Extra string `json:"extra,omitempty"`
}

// String returns "product mac@ip (firmware N)".
func (d Device) String() string {
	return fmt.Sprintf("%s %s@%s (firmware %s)", d.Product, d.MAC, d.IP, d.Firmware)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config controls a discovery run.
type Config struct {
	// Target is the probe destination. Default: BroadcastAddress.
	Target string

	// Port is the destination port. Default: DefaultPort.
	Port int

	// Timeout is the quiet period that ends the run: discovery stops once
	// no reply has arrived for this long. Default: DefaultTimeout.
	Timeout time.Duration

	// Logger receives skipped replies. Optional.
	Logger Logger
}

func (c *Config) applyDefaults() {
	if c.Target == "" {
		c.Target = BroadcastAddress
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Discover probes for appliances and returns every supported one that
// answered, in reply order. Duplicate replies from the same appliance are
// collapsed.
//
// Returns ErrNoDeviceFound when nothing supported answered. A cancelled ctx
// ends the run early and returns what was found so far.
func Discover(ctx context.Context, cfg Config) ([]Device, error) {
	var devices []Device
	seen := make(map[string]bool)

	err := Stream(ctx, cfg, func(d Device) {
		key := d.IP.String() + "/" + d.MAC
		if seen[key] {
			return
		}
		seen[key] = true
		devices = append(devices, d)
	})
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDeviceFound
	}
	return devices, nil
}

// Stream probes for appliances and calls fn for each supported reply as it
// arrives. It returns when cfg.Timeout passes without a reply or ctx ends.
//
// The probe is sent once; there is no retransmission.
func Stream(ctx context.Context, cfg Config, fn func(Device)) error {
	cfg.applyDefaults()

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Target, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("resolving discovery target: %w", err)
	}

	// Go enables SO_BROADCAST on UDP sockets.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	logInfo(cfg.Logger, "discovering tellstick devices", "target", target.String())
	if _, err := conn.WriteToUDP([]byte(Probe), target); err != nil {
		return fmt.Errorf("sending discovery probe: %w", err)
	}

	buf := make([]byte, replyBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return fmt.Errorf("reading discovery reply: %w", err)
		}

		device, err := ParseReply(from.IP, buf[:n])
		if err != nil {
			logInfo(cfg.Logger, "skipping discovery reply", "from", from.String(), "error", err)
			continue
		}

		logInfo(cfg.Logger, "found device",
			"product", device.Product,
			"firmware", device.Firmware,
			"ip", device.IP.String(),
		)
		fn(device)
	}
}

// ParseReply validates one discovery record received from ip.
//
// Returns ErrMalformedReply, ErrUnsupportedProduct or ErrUnsupportedFirmware
// (wrapped) for records that must be skipped.
func ParseReply(ip net.IP, reply []byte) (Device, error) {
	fields := strings.Split(strings.TrimSpace(string(reply)), ":")
	if len(fields) != 4 && len(fields) != 5 {
		return Device{}, fmt.Errorf("%w: %d fields in %q", ErrMalformedReply, len(fields), reply)
	}

	d := Device{
		IP:       ip,
		Product:  fields[0],
		MAC:      fields[1],
		Code:     fields[2],
		Firmware: fields[3],
	}
	if len(fields) == 5 {
		d.Extra = fields[4]
	}

	if !isSupportedProduct(d.Product) {
		return Device{}, fmt.Errorf("%w: %q", ErrUnsupportedProduct, d.Product)
	}

	if d.Product == ProductTellStickNet {
		fw, err := strconv.Atoi(d.Firmware)
		if err != nil || fw < MinFirmwareTellStickNet {
			return Device{}, fmt.Errorf("%w: %s firmware %q", ErrUnsupportedFirmware, d.Product, d.Firmware)
		}
	}
	return d, nil
}

func isSupportedProduct(product string) bool {
	for _, p := range supportedProducts {
		if strings.Contains(product, p) {
			return true
		}
	}
	return false
}

func logInfo(l Logger, msg string, keysAndValues ...any) {
	if l != nil {
		l.Info(msg, keysAndValues...)
	}
}
