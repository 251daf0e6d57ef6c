package bmp280

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Raw ADC values from the calibration example in section 3.12 of the
// datasheet, after the 4 padding bits have been dropped.
const (
	datasheetRawTemp  int32 = 519888
	datasheetRawPress int32 = 415148
)

func TestTFineDatasheetExample(t *testing.T) {
	c := datasheetCal()
	assert.Equal(t, int32(128422), c.tFine(datasheetRawTemp))
}

func TestCompensateTempDatasheetExample(t *testing.T) {
	c := datasheetCal()
	// 2508 is 25.08 °C.
	assert.Equal(t, int32(2508), c.compensateTemp(datasheetRawTemp))
}

func TestCompensatePressureDatasheetExample(t *testing.T) {
	c := datasheetCal()
	// 25767233 is 25767233/256 ≈ 100653.25 Pa.
	assert.Equal(t, uint32(25767233), c.compensatePressure(datasheetRawTemp, datasheetRawPress))
}

func TestCompensatePressureDeterministic(t *testing.T) {
	c := datasheetCal()
	want := c.compensatePressure(datasheetRawTemp, datasheetRawPress)
	for i := 0; i < 100; i++ {
		assert.Equal(t, want, c.compensatePressure(datasheetRawTemp, datasheetRawPress))
	}
}

func TestCompensatePressureDegenerateCalibration(t *testing.T) {
	// dig_P1 == 0 forces var1 to 0, which the vendor defines as a zero
	// pressure result rather than an error.
	c := datasheetCal()
	c.digP[1] = 0
	assert.Equal(t, uint32(0), c.compensatePressure(datasheetRawTemp, datasheetRawPress))
}
