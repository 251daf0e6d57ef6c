package bmp280

// calibrationData holds the sensor's factory calibration coefficients.
//
// Index 0 of each array is unused and kept at zero so the remaining
// indices line up with the dig_T1..dig_T3 and dig_P1..dig_P9 names used by
// the datasheet compensation formulas. The table is populated exactly once
// during device setup and is read-only afterwards.
type calibrationData struct {
	digT [4]int32
	digP [10]int64
}

// newCalibration parses the two coefficient groups from their register
// images.
//
// tcal covers 0x88 through 0x8D, pcal covers 0x8E through 0x9F. Each
// coefficient is a 16-bit little-endian value. dig_T1 and dig_P1 are
// unsigned; every other coefficient is a two's-complement signed value, so
// anything above 32767 sign-extends downwards.
func newCalibration(tcal, pcal []byte) (c calibrationData) {
	getUInt16 := func(lsb, msb byte) int64 {
		return int64(lsb) | int64(msb)<<8
	}

	for i := 1; i <= 3; i++ {
		v := getUInt16(tcal[2*i-2], tcal[2*i-1])
		if i != 1 && v > 32767 {
			v -= 65536
		}
		c.digT[i] = int32(v)
	}
	for i := 1; i <= 9; i++ {
		v := getUInt16(pcal[2*i-2], pcal[2*i-1])
		if i != 1 && v > 32767 {
			v -= 65536
		}
		c.digP[i] = v
	}
	return c
}

// temperatureCoeff returns dig_T<i+1> for the kind-local channel index i.
func (c *calibrationData) temperatureCoeff(i int) int64 {
	return int64(c.digT[i+1])
}

// pressureCoeff returns dig_P<i+1> for the kind-local channel index i.
func (c *calibrationData) pressureCoeff(i int) int64 {
	return c.digP[i+1]
}
