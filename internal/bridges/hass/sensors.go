package hass

// sensorInfo describes how a sensor quantity is presented.
type sensorInfo struct {
	Quantity string
	Unit     string
	Icon     string
}

// sensorTable is keyed by the value names the decoders report.
var sensorTable = map[string]sensorInfo{
	"temp":     {Quantity: "Temperature", Unit: "°C", Icon: "mdi:thermometer"},
	"humidity": {Quantity: "Humidity", Unit: "%", Icon: "mdi:water"},
	"rrate":    {Quantity: "Rain rate", Unit: "mm/h", Icon: "mdi:water"},
	"rtot":     {Quantity: "Rain total", Unit: "mm", Icon: "mdi:water"},
	"wdir":     {Quantity: "Wind direction"},
	"wavg":     {Quantity: "Wind average", Unit: "m/s"},
	"wgust":    {Quantity: "Wind gust", Unit: "m/s"},
	"uv":       {Quantity: "UV", Unit: "UV"},
	"watt":     {Quantity: "Power", Unit: "W"},
	"lum":      {Quantity: "Luminance", Unit: "lx"},
	"dewp":     {Quantity: "Dew Point", Unit: "°C", Icon: "mdi:thermometer"},
	"barpress": {Quantity: "Barometric Pressure", Unit: "kPa"},
}

// lookupSensor returns presentation details for a value name. Unknown
// names use the raw name as quantity.
func lookupSensor(name string) sensorInfo {
	if info, ok := sensorTable[name]; ok {
		return info
	}
	return sensorInfo{Quantity: name}
}
