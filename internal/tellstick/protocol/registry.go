package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/wire"
)

// Packet is the context a decoder receives: the raw payload plus the
// fields the appliance attached to it.
type Packet struct {
	Protocol string
	Model    string
	Class    string
	Data     uint64

	// Args holds every field of the RawData map, including the above.
	Args wire.Map
}

// Command is an encoder's input.
type Command struct {
	Protocol string
	Model    string
	House    string
	Unit     int
	Method   Method

	// Param is the dim level (0-255) for MethodDim.
	Param int
}

// DecodeFunc turns a packet into an event. It returns ErrNoMatch when the
// payload is not structurally valid for the protocol.
type DecodeFunc func(st *DecoderState, p Packet) (Event, error)

// EncodeFunc turns a command into the argument map of a "send" packet.
type EncodeFunc func(cmd Command) (wire.Map, error)

// Codec pairs the decoder and encoder of one protocol. Either may be nil.
type Codec struct {
	Decode DecodeFunc
	Encode EncodeFunc
}

// Registry maps protocol names to codecs.
//
// Thread Safety:
//   - A Registry is read-only after construction and safe for concurrent use.
//   - The DecoderState passed to Decode is not; each decode stream owns one.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry returns a Registry holding every built-in protocol.
func NewRegistry() *Registry {
	return &Registry{
		codecs: map[string]Codec{
			"arctech":      {Decode: decodeArctech, Encode: encodeArctech},
			"everflourish": {Decode: decodeEverflourish},
			"fineoffset":   {Decode: decodeFineoffset},
			"mandolyn":     {Decode: decodeMandolyn},
			"oregon":       {Decode: decodeOregon},
		},
	}
}

// Names returns the registered protocol names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode decodes the arguments of a RawData packet.
//
// Parameters:
//   - st: Decoder state for the stream the packet came from
//   - args: RawData arguments; must contain "protocol" and "data"
//
// Returns:
//   - Event: Decoded event
//   - error: ErrUnknownProtocol, ErrUnsupportedModel, ErrChecksumMismatch,
//     ErrUnrecognizedPayload or wire.ErrMalformedPacket (all wrapped)
func (r *Registry) Decode(st *DecoderState, args wire.Map) (Event, error) {
	p, err := packetFromArgs(args)
	if err != nil {
		return Event{}, err
	}
	if st == nil {
		st = &DecoderState{}
	}

	codec, ok := r.codecs[p.Protocol]
	if !ok || codec.Decode == nil {
		return Event{}, fmt.Errorf("%w: %q (data %#x)", ErrUnknownProtocol, p.Protocol, p.Data)
	}

	ev, err := codec.Decode(st, p)
	if errors.Is(err, ErrNoMatch) {
		return Event{}, fmt.Errorf("%w: %s data %#x model %q", ErrUnrecognizedPayload, p.Protocol, p.Data, p.Model)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decoding %s data %#x: %w", p.Protocol, p.Data, err)
	}
	return ev, nil
}

// Encode builds the argument map of a "send" packet for cmd.
func (r *Registry) Encode(cmd Command) (wire.Map, error) {
	codec, ok := r.codecs[cmd.Protocol]
	if !ok || codec.Encode == nil {
		return nil, fmt.Errorf("%w: no encoder for %q", ErrUnknownProtocol, cmd.Protocol)
	}
	return codec.Encode(cmd)
}

// packetFromArgs extracts the decoder context from RawData arguments.
// The model may be sent as text or as an integer (oregon).
func packetFromArgs(args wire.Map) (Packet, error) {
	name, ok := args.Text("protocol")
	if !ok {
		return Packet{}, fmt.Errorf("%w: RawData without protocol", wire.ErrMalformedPacket)
	}
	data, ok := args.Int("data")
	if !ok {
		return Packet{}, fmt.Errorf("%w: RawData for %q without integer data", wire.ErrMalformedPacket, name)
	}

	p := Packet{
		Protocol: name,
		Data:     uint64(data), //nolint:gosec // payloads are raw bit patterns
		Args:     args,
	}
	if model, ok := args.Text("model"); ok {
		p.Model = model
	} else if model, ok := args.Int("model"); ok {
		p.Model = strconv.FormatInt(model, 10)
	}
	p.Class, _ = args.Text("class")
	return p, nil
}
