package mv2

// Field names one 2-bit slot of the digital configuration register.
type Field string

const (
	FieldMeasurementAxis Field = "measurement_axis"
	FieldSensingRange    Field = "sensing_range"
	FieldResolution      Field = "resolution"
	FieldOutput          Field = "output"
)

// Option is the value selected for a Field, as written in scripts, plans and
// on the command line.
type Option string

// Measurement axis
const (
	AxisBx Option = "Bx"
	AxisBy Option = "By"
	AxisBz Option = "Bz"
	AxisT  Option = "T"
)

// Sensing range
const (
	Range100mT Option = "0"
	Range300mT Option = "1"
	Range1T    Option = "2"
	Range3T    Option = "3"
)

// Resolution and refresh rate
const (
	Resolution14Bit     Option = "0" // 3 kHz
	Resolution15Bit     Option = "1" // 1.5 kHz
	Resolution16Bit     Option = "2" // 0.75 kHz
	Resolution16BitSlow Option = "3" // 0.375 kHz
)

// Output axes. "3" selects all three axes and encodes as 0b00.
const (
	OutputAll Option = "3"
	OutputX   Option = "x"
	OutputY   Option = "y"
	OutputZ   Option = "z"
)

// Bit offsets of each field within the register.
const (
	axisShift       uint8 = 0
	rangeShift      uint8 = 2
	resolutionShift uint8 = 4
	outputShift     uint8 = 6

	fieldMask uint8 = 0x03
)

// Command is an MV2 host protocol command byte. Scripts use its two-digit hex
// form as the <type> of a command element.
type Command uint8

const (
	CmdReadRegister0  Command = 0x1C
	CmdReadRegister1  Command = 0x1D
	CmdReadRegister2  Command = 0x1E
	CmdWriteRegister0 Command = 0x2C
	CmdWriteRegister1 Command = 0x2D
	CmdWriteRegister2 Command = 0x2E
)
