package mv2

import (
	"fmt"
	"strconv"
	"strings"
)

// Settings holds the digital-mode configuration of the sensor. Empty fields
// take their default option.
type Settings struct {
	MeasurementAxis Option `yaml:"measurement_axis" mapstructure:"measurement_axis"`
	SensingRange    Option `yaml:"sensing_range" mapstructure:"sensing_range"`
	Resolution      Option `yaml:"resolution" mapstructure:"resolution"`
	Output          Option `yaml:"output" mapstructure:"output"`
}

func DefaultSettings() Settings {
	return Settings{
		MeasurementAxis: AxisBx,
		SensingRange:    Range100mT,
		Resolution:      Resolution14Bit,
		Output:          OutputAll,
	}
}

// SettingsFromMap builds Settings from field name / option pairs.
func SettingsFromMap(m map[string]string) (Settings, error) {
	var s Settings
	for name, value := range m {
		if err := s.Set(Field(name), Option(value)); err != nil {
			return Settings{}, err
		}
	}
	return s, nil
}

// Get returns the option selected for f, or "" when f is omitted or unknown.
func (s Settings) Get(f Field) Option {
	switch f {
	case FieldMeasurementAxis:
		return s.MeasurementAxis
	case FieldSensingRange:
		return s.SensingRange
	case FieldResolution:
		return s.Resolution
	case FieldOutput:
		return s.Output
	}
	return ""
}

// Set selects o for f. The option itself is only checked by Encode.
func (s *Settings) Set(f Field, o Option) error {
	switch f {
	case FieldMeasurementAxis:
		s.MeasurementAxis = o
	case FieldSensingRange:
		s.SensingRange = o
	case FieldResolution:
		s.Resolution = o
	case FieldOutput:
		s.Output = o
	default:
		return &UnknownFieldError{Name: string(f)}
	}
	return nil
}

// Register is the packed 8-bit digital configuration register.
type Register uint8

// Field returns the 2-bit code stored for f.
func (r Register) Field(f Field) uint8 {
	t := lookupTable(f)
	if t == nil {
		return 0
	}
	return (uint8(r) >> t.shift) & fieldMask
}

func (r Register) String() string {
	return fmt.Sprintf("0x%02X", uint8(r))
}

// Describe renders the decoded register with physical units.
func (r Register) Describe() string {
	s := Decode(r)
	out := string(s.Output)
	if s.Output == OutputAll {
		out = "all"
	}
	return fmt.Sprintf("axis=%s range=%s resolution=%dbit@%s output=%s",
		s.MeasurementAxis,
		sensingRanges[r.Field(FieldSensingRange)],
		adcBits[r.Field(FieldResolution)],
		refreshRates[r.Field(FieldResolution)],
		out)
}

// ParseRegister parses a register value written in Go integer literal syntax
// ("255", "0xFF", "0b11111111").
func ParseRegister(s string) (Register, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("mv2: invalid register value %q: %w", s, err)
	}
	return Register(v), nil
}

// Encode packs s into a register value:
//
//	output<<6 | resolution<<4 | sensing_range<<2 | measurement_axis
//
// An option that is not in its field's table yields an *InvalidOptionError.
// Encode has no side effects and is safe for concurrent use.
func Encode(s Settings) (Register, error) {
	var r Register
	for i := range tables {
		t := &tables[i]
		o := s.Get(t.field)
		code, ok := t.code(o)
		if !ok {
			return 0, &InvalidOptionError{Field: t.field, Value: o}
		}
		r |= Register(code << t.shift)
	}
	return r, nil
}

// Decode is the inverse of Encode. Every register value decodes.
func Decode(r Register) Settings {
	var s Settings
	for i := range tables {
		t := &tables[i]
		_ = s.Set(t.field, t.options[r.Field(t.field)])
	}
	return s
}

// Fields lists the register fields from the least significant bits up.
func Fields() []Field {
	fields := make([]Field, len(tables))
	for i := range tables {
		fields[i] = tables[i].field
	}
	return fields
}

// Options lists the valid options of f in code order.
func Options(f Field) ([]Option, error) {
	t := lookupTable(f)
	if t == nil {
		return nil, &UnknownFieldError{Name: string(f)}
	}
	return append([]Option(nil), t.options[:]...), nil
}

// InvalidOptionError reports an option missing from its field's table.
type InvalidOptionError struct {
	Field Field
	Value Option
}

func (e *InvalidOptionError) Error() string {
	valid := make([]string, 0, 4)
	if t := lookupTable(e.Field); t != nil {
		for _, o := range t.options {
			valid = append(valid, string(o))
		}
	}
	return fmt.Sprintf("mv2: invalid %s %q (valid: %s)", e.Field, e.Value, strings.Join(valid, ", "))
}

// UnknownFieldError reports a field name that is not part of the register.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("mv2: unknown field %q", e.Name)
}

// String returns the two-digit hex form used as a script command type.
func (c Command) String() string {
	return fmt.Sprintf("%02X", uint8(c))
}

// IsRead reports whether c reads a configuration register back. Read
// commands carry no value to substitute.
func (c Command) IsRead() bool {
	return c >= CmdReadRegister0 && c <= CmdReadRegister2
}

// ParseCommand parses a script command type such as "2C".
func ParseCommand(s string) (Command, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("mv2: invalid command type %q: %w", s, err)
	}
	return Command(v), nil
}

// CheckWrite rejects writes addressed to a register read command.
func CheckWrite(typ string) error {
	if c, err := ParseCommand(typ); err == nil && c.IsRead() {
		return fmt.Errorf("mv2: command %s reads a register, it has no value to write", c)
	}
	return nil
}
