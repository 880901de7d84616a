package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/wire"
)

// rawData builds RawData arguments the way the appliance sends them.
func rawData(protocol, model string, data int64) wire.Map {
	m := wire.Map{
		"protocol": wire.Text(protocol),
		"data":     wire.Int(data),
	}
	if model != "" {
		m["model"] = wire.Text(model)
	}
	return m
}

func decode(t *testing.T, st *DecoderState, args wire.Map) Event {
	t.Helper()
	ev, err := NewRegistry().Decode(st, args)
	if err != nil {
		t.Fatalf("Decode(%v) error = %v", args, err)
	}
	return ev
}

func unitOf(ev Event) int {
	if ev.Unit == nil {
		return 0
	}
	return *ev.Unit
}

// ===== Registry =====

func TestRegistry_Names(t *testing.T) {
	got := NewRegistry().Names()
	want := []string{"arctech", "everflourish", "fineoffset", "mandolyn", "oregon"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistry_UnknownProtocol(t *testing.T) {
	_, err := NewRegistry().Decode(nil, rawData("x10", "", 0x1234))
	if !errors.Is(err, ErrUnknownProtocol) {
		t.Errorf("Decode() error = %v, want ErrUnknownProtocol", err)
	}
}

func TestRegistry_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		args wire.Map
	}{
		{"no protocol", wire.Map{"data": wire.Int(1)}},
		{"no data", wire.Map{"protocol": wire.Text("arctech")}},
		{"text data", wire.Map{"protocol": wire.Text("arctech"), "data": wire.Text("1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Decode(nil, tt.args)
			if !errors.Is(err, wire.ErrMalformedPacket) {
				t.Errorf("Decode() error = %v, want ErrMalformedPacket", err)
			}
		})
	}
}

// ===== Arctech family =====

func TestDecode_NexaSelflearning(t *testing.T) {
	tests := []struct {
		name   string
		data   int64
		method Method
	}{
		{"turnon", 0x511F590, MethodTurnOn},
		{"turnoff", 0x511F580, MethodTurnOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := decode(t, nil, rawData("arctech", "selflearning", tt.data))
			if ev.Class != ClassCommand || ev.Protocol != "arctech" || ev.Model != "selflearning" {
				t.Errorf("event = %+v", ev)
			}
			if ev.House != "1329110" {
				t.Errorf("House = %q, want 1329110", ev.House)
			}
			if unitOf(ev) != 1 {
				t.Errorf("Unit = %d, want 1", unitOf(ev))
			}
			if ev.Group == nil || *ev.Group != 0 {
				t.Errorf("Group = %v, want 0", ev.Group)
			}
			if ev.Method != tt.method {
				t.Errorf("Method = %v, want %v", ev.Method, tt.method)
			}
		})
	}
}

func TestDecode_SelflearningHouseZeroFallsThrough(t *testing.T) {
	// house 0 is not a valid selflearning address; the low 12 bits still
	// form a valid waveman frame.
	ev := decode(t, NewDecoderState(), rawData("arctech", "selflearning", 0x3C))
	if ev.Protocol != "waveman" || ev.Method != MethodTurnOff {
		t.Fatalf("event = %+v, want waveman turnoff", ev)
	}
	if ev.House != "M" || unitOf(ev) != 4 {
		t.Errorf("house/unit = %s/%d, want M/4", ev.House, unitOf(ev))
	}
}

func TestDecode_NexaCodeswitch(t *testing.T) {
	tests := []struct {
		name   string
		data   int64
		house  string
		unit   int
		method Method
	}{
		{"turnon", 0xE00, "A", 1, MethodTurnOn},
		{"turnoff", 0x600, "A", 1, MethodTurnOff},
		{"turnon house C unit 3", 0xE22, "C", 3, MethodTurnOn},
		{"bell has no unit", 0xF00, "A", 0, MethodBell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := decode(t, NewDecoderState(), rawData("arctech", "codeswitch", tt.data))
			if ev.Protocol != "arctech" || ev.Model != "codeswitch" {
				t.Errorf("protocol/model = %s/%s", ev.Protocol, ev.Model)
			}
			if ev.House != tt.house || unitOf(ev) != tt.unit || ev.Method != tt.method {
				t.Errorf("got house=%s unit=%d method=%v, want %s/%d/%v",
					ev.House, unitOf(ev), ev.Method, tt.house, tt.unit, tt.method)
			}
		})
	}
}

func TestDecode_CodeswitchDebounce(t *testing.T) {
	st := NewDecoderState()
	reg := NewRegistry()

	steps := []struct {
		data     int64
		protocol string
		method   Method
	}{
		{0x600, "arctech", MethodTurnOff},
		// The stray code after a turnoff is dropped by nexa and falls
		// through to waveman, which has not seen the turnoff.
		{0xE00, "waveman", MethodTurnOn},
		{0xE00, "arctech", MethodTurnOn},
		{0x600, "arctech", MethodTurnOff},
		{0x600, "arctech", MethodTurnOff},
	}

	for i, step := range steps {
		ev, err := reg.Decode(st, rawData("arctech", "codeswitch", step.data))
		if err != nil {
			t.Fatalf("step %d: Decode() error = %v", i, err)
		}
		if ev.Protocol != step.protocol || ev.Method != step.method {
			t.Errorf("step %d: got %s/%v, want %s/%v", i, ev.Protocol, ev.Method, step.protocol, step.method)
		}
	}
}

func TestDecode_DebounceStateIsPerStream(t *testing.T) {
	reg := NewRegistry()
	a, b := NewDecoderState(), NewDecoderState()

	if _, err := reg.Decode(a, rawData("arctech", "codeswitch", 0x600)); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	ev, err := reg.Decode(b, rawData("arctech", "codeswitch", 0xE00))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Protocol != "arctech" {
		t.Errorf("independent stream decoded as %s, want arctech", ev.Protocol)
	}

	a.Reset()
	ev, err = reg.Decode(a, rawData("arctech", "codeswitch", 0xE00))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Protocol != "arctech" {
		t.Errorf("after Reset decoded as %s, want arctech", ev.Protocol)
	}
}

func TestDecode_Waveman(t *testing.T) {
	// Unknown nexa model skips nexa, so waveman sees the frame first.
	ev := decode(t, NewDecoderState(), rawData("arctech", "unknown", 0x012))
	if ev.Protocol != "waveman" || ev.Method != MethodTurnOff {
		t.Fatalf("event = %+v, want waveman turnoff", ev)
	}
	if ev.House != "C" || unitOf(ev) != 2 {
		t.Errorf("house/unit = %s/%d, want C/2", ev.House, unitOf(ev))
	}
}

func TestDecode_Sartano(t *testing.T) {
	tests := []struct {
		name   string
		data   int64
		method Method
	}{
		{"turnon", 0x955, MethodTurnOn},
		{"turnoff", 0x555, MethodTurnOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := decode(t, NewDecoderState(), rawData("arctech", "codeswitch", tt.data))
			if ev.Protocol != "sartano" || ev.Model != "codeswitch" {
				t.Errorf("protocol/model = %s/%s, want sartano/codeswitch", ev.Protocol, ev.Model)
			}
			if ev.Code != "0101010101" {
				t.Errorf("Code = %q, want 0101010101", ev.Code)
			}
			if ev.Method != tt.method {
				t.Errorf("Method = %v, want %v", ev.Method, tt.method)
			}
		})
	}
}

func TestDecode_ArctechUnrecognized(t *testing.T) {
	// method code 12 and matching sartano method bits: nobody claims it.
	_, err := NewRegistry().Decode(NewDecoderState(), rawData("arctech", "codeswitch", 0xC55))
	if !errors.Is(err, ErrUnrecognizedPayload) {
		t.Errorf("Decode() error = %v, want ErrUnrecognizedPayload", err)
	}
}

// ===== Everflourish =====

func TestDecode_Everflourish(t *testing.T) {
	tests := []struct {
		name   string
		data   int64
		house  string
		unit   int
		method Method
	}{
		{"turnon", 0x424A6F, "4242", 3, MethodTurnOn},
		{"turnoff", 0x53A7E0, "5353", 4, MethodTurnOff},
		{"learn", 0x424A6A, "4242", 3, MethodLearn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := decode(t, nil, rawData("everflourish", "", tt.data))
			if ev.Model != "selflearning" || ev.Class != ClassCommand {
				t.Errorf("model/class = %s/%s", ev.Model, ev.Class)
			}
			if ev.House != tt.house || unitOf(ev) != tt.unit || ev.Method != tt.method {
				t.Errorf("got %s/%d/%v, want %s/%d/%v", ev.House, unitOf(ev), ev.Method, tt.house, tt.unit, tt.method)
			}
		})
	}
}

func TestDecode_EverflourishBadMethod(t *testing.T) {
	_, err := NewRegistry().Decode(nil, rawData("everflourish", "", 0x424A65))
	if !errors.Is(err, ErrUnrecognizedPayload) {
		t.Errorf("Decode() error = %v, want ErrUnrecognizedPayload", err)
	}
}

// ===== Sensors =====

func TestDecode_Fineoffset(t *testing.T) {
	ev := decode(t, nil, rawData("fineoffset", "", 0x48801aff05))
	if ev.Class != ClassSensor || ev.Model != "temperature" {
		t.Errorf("class/model = %s/%s, want sensor/temperature", ev.Class, ev.Model)
	}
	if temp, ok := ev.Value("temp"); !ok || temp != 2.6 {
		t.Errorf("temp = %v (%v), want 2.6", temp, ok)
	}
	if _, ok := ev.Value("humidity"); ok {
		t.Error("humidity present for temperature-only sensor")
	}
	if ev.SensorID == nil || *ev.SensorID != 0x88 {
		t.Errorf("SensorID = %v, want 0x88", ev.SensorID)
	}
}

func TestDecode_FineoffsetHumidityAndNegative(t *testing.T) {
	// id 0x88, temp -5.0 (0x832), humidity 55 (0x37), checksum 0x00
	ev := decode(t, nil, rawData("fineoffset", "", 0x4888323700))
	if ev.Model != "temperaturehumidity" {
		t.Errorf("Model = %s, want temperaturehumidity", ev.Model)
	}
	if temp, _ := ev.Value("temp"); temp != -5.0 {
		t.Errorf("temp = %v, want -5.0", temp)
	}
	if hum, _ := ev.Value("humidity"); hum != 55 {
		t.Errorf("humidity = %v, want 55", hum)
	}
}

func TestDecode_Mandolyn(t *testing.T) {
	ev := decode(t, nil, rawData("mandolyn", "temperaturehumidity", 0x134039c3))
	if temp, ok := ev.Value("temp"); !ok || temp != 7.8 {
		t.Errorf("temp = %v (%v), want 7.8", temp, ok)
	}
	if ev.SensorID == nil {
		t.Fatal("SensorID missing")
	}
}

func TestDecode_Oregon(t *testing.T) {
	args := wire.Map{
		"protocol": wire.Text("oregon"),
		"model":    wire.Int(6701),
		"data":     wire.Int(0x201F242450443BDD),
	}
	ev := decode(t, nil, args)

	if temp, _ := ev.Value("temp"); temp != 24.2 {
		t.Errorf("temp = %v, want 24.2", temp)
	}
	if hum, _ := ev.Value("humidity"); hum != 45.0 {
		t.Errorf("humidity = %v, want 45", hum)
	}
	if ev.SensorID == nil || *ev.SensorID != 0x1F {
		t.Errorf("SensorID = %v, want 0x1F", ev.SensorID)
	}
}

func TestDecode_OregonChecksumMismatch(t *testing.T) {
	const data = 0x201F242450443BDD
	for bit := 8; bit < 16; bit++ {
		args := wire.Map{
			"protocol": wire.Text("oregon"),
			"model":    wire.Int(6701),
			"data":     wire.Int(data ^ (1 << bit)),
		}
		_, err := NewRegistry().Decode(nil, args)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("bit %d flipped: error = %v, want ErrChecksumMismatch", bit, err)
		}
	}
}

func TestDecode_OregonUnsupportedModel(t *testing.T) {
	args := wire.Map{
		"protocol": wire.Text("oregon"),
		"model":    wire.Int(0xF824),
		"data":     wire.Int(0x201F242450443BDD),
	}
	_, err := NewRegistry().Decode(nil, args)
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedModel", err)
	}
}

// ===== Full packets =====

func TestDecode_WirePackets(t *testing.T) {
	tests := []struct {
		name   string
		packet string
		first  float64
	}{
		{
			name:   "mandolyn",
			packet: "7:RawDatah5:class6:sensor8:protocol8:mandolyn5:model13:temperaturehumidity4:dataiAF1D466Bss",
			first:  20.4,
		},
		{
			name:   "fineoffset",
			packet: "7:RawDatah5:class6:sensor8:protocolA:fineoffset4:datai488029FF9Ass",
			first:  4.1,
		},
		{
			name:   "oregon top bit set",
			packet: "7:RawDatah8:protocol6:oregon5:modeli1A2Ds4:dataiA01F2424504443DDss",
			first:  24.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := wire.Decode([]byte(tt.packet))
			if err != nil {
				t.Fatalf("wire.Decode() error = %v", err)
			}
			if cmd != "RawData" {
				t.Fatalf("command = %q", cmd)
			}
			ev := decode(t, nil, args)
			if len(ev.Data) == 0 || ev.Data[0].Value != tt.first {
				t.Errorf("Data = %+v, want first value %v", ev.Data, tt.first)
			}
		})
	}
}

// ===== Encoding =====

func TestEncode_FastPath(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		method Method
		param  int
		want   Method
	}{
		{"turnon", "selflearning-switch", MethodTurnOn, 0, MethodTurnOn},
		{"turnoff", "selflearning-switch", MethodTurnOff, 0, MethodTurnOff},
		{"dimmer turnoff", "selflearning-dimmer", MethodTurnOff, 0, MethodTurnOff},
		{"dim to zero is turnoff", "selflearning-dimmer", MethodDim, 0, MethodTurnOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := NewRegistry().Encode(Command{
				Protocol: "arctech", Model: tt.model, House: "1329110", Unit: 3, Method: tt.method, Param: tt.param,
			})
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if m, _ := args.Text("model"); m != "selflearning" {
				t.Errorf("model = %q, want selflearning", m)
			}
			if h, _ := args.Int("house"); h != 1329110 {
				t.Errorf("house = %d", h)
			}
			if u, _ := args.Int("unit"); u != 2 {
				t.Errorf("unit = %d, want 2 (zero based)", u)
			}
			if m, _ := args.Int("method"); Method(m) != tt.want {
				t.Errorf("method = %d, want %d", m, tt.want)
			}
		})
	}
}

func TestEncode_PulseTrainMethods(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		method  Method
		param   int
		wantLen int
	}{
		{"dim", "selflearning-dimmer", MethodDim, 128, 147},
		{"dimmer turnon is full dim", "selflearning-dimmer", MethodTurnOn, 0, 147},
		{"learn", "selflearning-switch", MethodLearn, 0, 131},
		{"bell", "selflearning", MethodBell, 0, 131},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := NewRegistry().Encode(Command{
				Protocol: "arctech", Model: tt.model, House: "1", Unit: 1, Method: tt.method, Param: tt.param,
			})
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			train, ok := args.Text(KeyPulseTrain)
			if !ok {
				t.Fatalf("args = %v, want pulse train", args)
			}
			if len(train) != tt.wantLen {
				t.Errorf("len(train) = %d, want %d", len(train), tt.wantLen)
			}
		})
	}
}

func TestPulseTrain_Layout(t *testing.T) {
	train := PulseTrain(1, 1, MethodTurnOff, 0)
	if len(train) != 131 {
		t.Fatalf("len = %d, want 131", len(train))
	}
	if train[0] != pulseShort || train[1] != pulseStart {
		t.Errorf("preamble = %v", train[:2])
	}

	// 25 zero bits, then the house LSB is one.
	for i := range 25 {
		off := 2 + i*4
		if !bytes.Equal(train[off:off+4], pulseZero) {
			t.Fatalf("house bit %d = %v, want zero", i, train[off:off+4])
		}
	}
	if !bytes.Equal(train[102:106], pulseOne) {
		t.Errorf("house LSB = %v, want one", train[102:106])
	}
	if !bytes.Equal(train[106:110], pulseZero) {
		t.Errorf("group = %v, want zero", train[106:110])
	}
	if !bytes.Equal(train[110:114], pulseZero) {
		t.Errorf("method = %v, want zero for turnoff", train[110:114])
	}
	if train[len(train)-1] != pulseShort {
		t.Errorf("stop pulse = %d", train[len(train)-1])
	}

	dim := PulseTrain(1, 1, MethodDim, 255)
	if !bytes.Equal(dim[110:114], pulseDim) {
		t.Errorf("dim method slot = %v", dim[110:114])
	}
	for i := range 4 {
		off := 130 + i*4
		if !bytes.Equal(dim[off:off+4], pulseOne) {
			t.Errorf("dim level bit %d = %v, want one", i, dim[off:off+4])
		}
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"unknown protocol", Command{Protocol: "x10", Model: "selflearning", House: "1", Unit: 1, Method: MethodTurnOn}, ErrUnknownProtocol},
		{"no encoder", Command{Protocol: "oregon", Model: "6701", House: "1", Unit: 1, Method: MethodTurnOn}, ErrUnknownProtocol},
		{"codeswitch", Command{Protocol: "arctech", Model: "codeswitch", House: "A", Unit: 1, Method: MethodTurnOn}, ErrUnsupportedModel},
		{"house zero", Command{Protocol: "arctech", Model: "selflearning", House: "0", Unit: 1, Method: MethodTurnOn}, ErrInvalidAddress},
		{"house not numeric", Command{Protocol: "arctech", Model: "selflearning", House: "A", Unit: 1, Method: MethodTurnOn}, ErrInvalidAddress},
		{"house too large", Command{Protocol: "arctech", Model: "selflearning", House: "67108864", Unit: 1, Method: MethodTurnOn}, ErrInvalidAddress},
		{"unit zero", Command{Protocol: "arctech", Model: "selflearning", House: "1", Unit: 0, Method: MethodTurnOn}, ErrInvalidAddress},
		{"unit 17", Command{Protocol: "arctech", Model: "selflearning", House: "1", Unit: 17, Method: MethodTurnOn}, ErrInvalidAddress},
		{"stop", Command{Protocol: "arctech", Model: "selflearning", House: "1", Unit: 1, Method: MethodStop}, ErrUnsupportedMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Encode(tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Encode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ===== Methods =====

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"turnon", MethodTurnOn, false},
		{"TurnOff", MethodTurnOff, false},
		{" dim ", MethodDim, false},
		{"learn", MethodLearn, false},
		{"bell", MethodBell, false},
		{"ON", MethodNone, true},
		{"", MethodNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMethod(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMethod_Invert(t *testing.T) {
	if MethodTurnOn.Invert() != MethodTurnOff || MethodTurnOff.Invert() != MethodTurnOn {
		t.Error("Invert() does not swap turnon/turnoff")
	}
	if MethodDim.Invert() != MethodDim {
		t.Error("Invert() changed dim")
	}
}

func TestEvent_DeviceKeyAndMeasurements(t *testing.T) {
	cmd := decode(t, nil, rawData("arctech", "selflearning", 0x511F590))
	if got := cmd.DeviceKey(); got != "arctech/selflearning/1329110/1" {
		t.Errorf("DeviceKey() = %q", got)
	}
	if cmd.Measurements() != nil {
		t.Error("Measurements() non-nil for command")
	}

	sensor := decode(t, nil, rawData("fineoffset", "", 0x4888323700))
	ms := sensor.Measurements()
	if len(ms) != 2 || ms[0].SensorID != 0x88 {
		t.Errorf("Measurements() = %+v", ms)
	}
}
