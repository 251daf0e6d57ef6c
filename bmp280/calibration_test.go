package bmp280

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Register images for the calibration example from section 3.12 of the
// datasheet, 16-bit little-endian values each.
var (
	datasheetTempCal = []byte{
		0x70, 0x6B, // dig_T1 = 27504
		0x43, 0x67, // dig_T2 = 26435
		0x18, 0xFC, // dig_T3 = -1000
	}
	datasheetPressCal = []byte{
		0x7D, 0x8E, // dig_P1 = 36477
		0x43, 0xD6, // dig_P2 = -10685
		0xD0, 0x0B, // dig_P3 = 3024
		0x27, 0x0B, // dig_P4 = 2855
		0x8C, 0x00, // dig_P5 = 140
		0xF9, 0xFF, // dig_P6 = -7
		0x8C, 0x3C, // dig_P7 = 15500
		0xF8, 0xC6, // dig_P8 = -14600
		0x70, 0x17, // dig_P9 = 6000
	}
)

func datasheetCal() calibrationData {
	return newCalibration(datasheetTempCal, datasheetPressCal)
}

func TestNewCalibrationDatasheetExample(t *testing.T) {
	c := datasheetCal()
	assert.Equal(t, [4]int32{0, 27504, 26435, -1000}, c.digT)
	assert.Equal(t, [10]int64{0, 36477, -10685, 3024, 2855, 140, -7, 15500, -14600, 6000}, c.digP)
}

func TestNewCalibrationSignExtension(t *testing.T) {
	// Raw value 40000 (0x9C40) must stay unsigned at index 1 of each
	// group and sign-extend to -25536 everywhere else.
	tcal := []byte{
		0x40, 0x9C,
		0x40, 0x9C,
		0x40, 0x9C,
	}
	pcal := make([]byte, 18)
	for i := 0; i < 18; i += 2 {
		pcal[i] = 0x40
		pcal[i+1] = 0x9C
	}

	c := newCalibration(tcal, pcal)
	assert.Equal(t, int32(40000), c.digT[1])
	assert.Equal(t, int32(-25536), c.digT[2])
	assert.Equal(t, int32(-25536), c.digT[3])
	assert.Equal(t, int64(40000), c.digP[1])
	for i := 2; i <= 9; i++ {
		assert.Equal(t, int64(-25536), c.digP[i], "dig_P%d", i)
	}
}

func TestNewCalibrationIndexZeroUnused(t *testing.T) {
	c := datasheetCal()
	assert.Zero(t, c.digT[0])
	assert.Zero(t, c.digP[0])
}

func TestCalibrationCoeffAccessors(t *testing.T) {
	c := datasheetCal()
	// Kind-local channel index 0 maps to dig_T1/dig_P1.
	assert.Equal(t, int64(27504), c.temperatureCoeff(0))
	assert.Equal(t, int64(-1000), c.temperatureCoeff(2))
	assert.Equal(t, int64(36477), c.pressureCoeff(0))
	assert.Equal(t, int64(6000), c.pressureCoeff(8))
}
