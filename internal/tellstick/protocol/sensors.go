package protocol

import (
	"fmt"
	"math"
	"strconv"
)

// Sensor models.
const (
	ModelTemperature         = "temperature"
	ModelTemperatureHumidity = "temperaturehumidity"

	// oregonModel1A2D is the only Oregon Scientific model implemented
	// (THGR122N and relatives), reported by the appliance as 6701.
	oregonModel1A2D = 0x1A2D
)

const maxHumidity = 100

// decodeFineoffset decodes a 40-bit Fine Offset frame. Reading the payload
// as ten hex digits from the right:
//
//	2 digits  checksum (ignored)
//	2 digits  humidity; above 100 means the sensor has no hygrometer
//	3 digits  temperature: bit 11 sign, bits 10..0 tenths of a degree
//	rest      sensor id (low 8 bits)
func decodeFineoffset(_ *DecoderState, p Packet) (Event, error) {
	v := p.Data >> 8
	humidity := v & 0xFF
	v >>= 8

	raw := v & 0xFFF
	temp := float64(raw&0x7FF) / 10 //nolint:mnd // tenths
	if (raw>>11)&1 == 1 {
		temp = -temp
	}
	id := int((v >> 12) & 0xFF)

	ev := Event{
		Class:    ClassSensor,
		Protocol: p.Protocol,
		SensorID: intPtr(id),
	}
	if humidity <= maxHumidity {
		ev.Model = ModelTemperatureHumidity
		ev.Data = []SensorValue{
			{Name: SensorHumidity, Value: float64(humidity)},
			{Name: SensorTemperature, Value: temp},
		}
	} else {
		ev.Model = ModelTemperature
		ev.Data = []SensorValue{
			{Name: SensorTemperature, Value: temp},
		}
	}
	return ev, nil
}

// decodeMandolyn decodes a Mandolyn/Summerbird frame. After dropping the
// lowest bit:
//
//	15 bits  temperature, (raw - 6400) / 128
//	7 bits   humidity
//	3 bits   unused
//	2 bits   channel - 1
//	4 bits   house
func decodeMandolyn(_ *DecoderState, p Packet) (Event, error) {
	v := p.Data >> 1
	temp := round1((float64(v&0x7FFF) - 6400) / 128) //nolint:mnd // sensor scale
	v >>= 15
	humidity := v & 0x7F
	v >>= 10
	channel := int(v&0x3) + 1
	v >>= 2
	house := int(v & 0xF)

	return Event{
		Class:    ClassSensor,
		Protocol: p.Protocol,
		Model:    ModelTemperatureHumidity,
		SensorID: intPtr(house*10 + channel),
		Data: []SensorValue{
			{Name: SensorTemperature, Value: temp},
			{Name: SensorHumidity, Value: float64(humidity)},
		},
	}, nil
}

// decodeOregon decodes an Oregon Scientific 0x1A2D frame. From the low end:
//
//	byte 0    ignored
//	byte 1    checksum
//	byte 2    humidity tens (low nibble)
//	byte 3    humidity ones (high nibble), sign flag (bit 3)
//	byte 4    temperature tens (high), ones (low)
//	byte 5    temperature tenths (high)
//	byte 6    address
//	byte 7    rolling code
//
// The checksum is the nibble sum of bytes 2..7 plus the model constant.
func decodeOregon(_ *DecoderState, p Packet) (Event, error) {
	model, err := strconv.ParseInt(p.Model, 10, 64)
	if err != nil || model != oregonModel1A2D {
		return Event{}, fmt.Errorf("%w: oregon model %q", ErrUnsupportedModel, p.Model)
	}

	v := p.Data >> 8
	checksum1 := v & 0xFF
	v >>= 8

	checksum := nibbleSum(v)
	hum1 := v & 0xF
	v >>= 8

	checksum += nibbleSum(v)
	negative := v&(1<<3) != 0
	hum2 := (v >> 4) & 0xF
	v >>= 8

	checksum += nibbleSum(v)
	temp2 := v & 0xF
	temp1 := (v >> 4) & 0xF
	v >>= 8

	checksum += nibbleSum(v)
	temp3 := (v >> 4) & 0xF
	v >>= 8

	checksum += nibbleSum(v)
	address := int(v & 0xFF)
	v >>= 8

	checksum += nibbleSum(v)
	checksum += 0x1 + 0xA + 0x2 + 0xD - 0xA

	if checksum&0xFF != checksum1 {
		return Event{}, fmt.Errorf("%w: oregon got %#x, computed %#x", ErrChecksumMismatch, checksum1, checksum&0xFF)
	}

	temp := float64(temp1*100+temp2*10+temp3) / 10 //nolint:mnd // BCD tenths
	if negative {
		temp = -temp
	}
	humidity := float64(hum1*10 + hum2)

	return Event{
		Class:    ClassSensor,
		Protocol: p.Protocol,
		Model:    p.Model,
		SensorID: intPtr(address),
		Data: []SensorValue{
			{Name: SensorTemperature, Value: temp},
			{Name: SensorHumidity, Value: humidity},
		},
	}, nil
}

func nibbleSum(v uint64) uint64 {
	return ((v >> 4) & 0xF) + (v & 0xF)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
