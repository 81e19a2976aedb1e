package mv2

import "periph.io/x/conn/v3/physic"

// table maps the options of one field to their 2-bit codes.
type table struct {
	field   Field
	shift   uint8
	def     Option
	options [4]Option // indexed by code
	codes   map[Option]uint8
}

func newTable(field Field, shift uint8, options ...Option) table {
	t := table{field: field, shift: shift, def: options[0], codes: make(map[Option]uint8, len(options))}
	for i, o := range options {
		t.options[i] = o
		t.codes[o] = uint8(i)
	}
	return t
}

func (t *table) code(o Option) (uint8, bool) {
	if o == "" {
		o = t.def
	}
	c, ok := t.codes[o]
	return c, ok
}

var tables = [...]table{
	newTable(FieldMeasurementAxis, axisShift, AxisBx, AxisBy, AxisBz, AxisT),
	newTable(FieldSensingRange, rangeShift, Range100mT, Range300mT, Range1T, Range3T),
	newTable(FieldResolution, resolutionShift, Resolution14Bit, Resolution15Bit, Resolution16Bit, Resolution16BitSlow),
	newTable(FieldOutput, outputShift, OutputAll, OutputX, OutputY, OutputZ),
}

func lookupTable(f Field) *table {
	for i := range tables {
		if tables[i].field == f {
			return &tables[i]
		}
	}
	return nil
}

// Physical meaning of the sensing range and resolution codes.
var (
	sensingRanges = [4]physic.MagneticFluxDensity{
		100 * physic.MilliTesla,
		300 * physic.MilliTesla,
		physic.Tesla,
		3 * physic.Tesla,
	}
	refreshRates = [4]physic.Frequency{
		3 * physic.KiloHertz,
		1500 * physic.Hertz,
		750 * physic.Hertz,
		375 * physic.Hertz,
	}
	adcBits = [4]int{14, 15, 16, 16}
)

// FullScale returns the sensing range selected by s.
func (s Settings) FullScale() (physic.MagneticFluxDensity, error) {
	c, ok := lookupTable(FieldSensingRange).code(s.SensingRange)
	if !ok {
		return 0, &InvalidOptionError{Field: FieldSensingRange, Value: s.SensingRange}
	}
	return sensingRanges[c], nil
}

// RefreshRate returns the conversion rate selected by s.
func (s Settings) RefreshRate() (physic.Frequency, error) {
	c, ok := lookupTable(FieldResolution).code(s.Resolution)
	if !ok {
		return 0, &InvalidOptionError{Field: FieldResolution, Value: s.Resolution}
	}
	return refreshRates[c], nil
}

// ADCBits returns the conversion resolution selected by s.
func (s Settings) ADCBits() (int, error) {
	c, ok := lookupTable(FieldResolution).code(s.Resolution)
	if !ok {
		return 0, &InvalidOptionError{Field: FieldResolution, Value: s.Resolution}
	}
	return adcBits[c], nil
}
