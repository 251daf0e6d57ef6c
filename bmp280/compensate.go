package bmp280

// This file implements the fixed-point compensation algorithm from section
// 3.11.3 of the datasheet. The operation sequences must be reproduced
// bit-for-bit; any deviation changes the output.

// tFine computes the intermediate temperature value shared by the
// temperature and pressure formulas.
//
// rawTemp is the 20-bit ADC word, already shifted right by 4 to drop the
// hardware padding bits.
func (c *calibrationData) tFine(rawTemp int32) int32 {
	var1 := (((rawTemp >> 3) - (c.digT[1] << 1)) * c.digT[2]) >> 11
	var2 := (((((rawTemp >> 4) - c.digT[1]) * ((rawTemp >> 4) - c.digT[1])) >> 12) * c.digT[3]) >> 14
	return var1 + var2
}

// compensateTemp returns the temperature in units of 1/100 °C. An output
// of 2096 equals 20.96 °C.
func (c *calibrationData) compensateTemp(rawTemp int32) int32 {
	return (c.tFine(rawTemp)*5 + 128) >> 8
}

// compensatePressure returns the pressure as an unsigned 32-bit value in
// units of 1/256 Pa. An output of 25964048 equals 25964048/256 =
// 101422.0625 Pa.
//
// Both raw values must already be shifted right by 4, and must come from
// the same measurement cycle for the temperature correction to be valid.
func (c *calibrationData) compensatePressure(rawTemp, rawPress int32) uint32 {
	t := int64(c.tFine(rawTemp))
	var1 := t - 128000
	var2 := var1 * var1 * c.digP[6]
	var2 += (var1 * c.digP[5]) << 17
	var2 += c.digP[4] << 35
	var1 = ((var1 * var1 * c.digP[3]) >> 8) + ((var1 * c.digP[2]) << 12)
	var1 = ((int64(1) << 47) + var1) * c.digP[1] >> 33
	if var1 == 0 {
		// Degenerate calibration state defined by the vendor. Returning 0
		// here avoids a division by zero; it is not an I/O failure.
		return 0
	}
	p := int64(1048576 - rawPress)
	p = ((p << 31) - var2) * 3125 / var1
	var1 = (c.digP[9] * (p >> 13) * (p >> 13)) >> 25
	var2 = (c.digP[8] * p) >> 19
	p = ((p + var1 + var2) >> 8) + (c.digP[7] << 4)
	return uint32(p)
}

// ReadRawTemperature returns the temperature ADC word exactly as read from
// the sensor, 20 significant bits with the 4 low padding bits intact.
func (d *Dev) ReadRawTemperature() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRaw20(AddrTempMSB)
}

// ReadRawPressure returns the pressure ADC word exactly as read from the
// sensor, 20 significant bits with the 4 low padding bits intact.
func (d *Dev) ReadRawPressure() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRaw20(AddrPressMSB)
}

// ReadTemperature returns the compensated temperature in 1/100 °C.
func (d *Dev) ReadTemperature() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperature()
}

// ReadPressure returns the compensated pressure in 1/256 Pa.
func (d *Dev) ReadPressure() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, press, err := d.measure()
	return press, err
}

// readRaw20 reads one 20-bit value from its 3-byte register window. The
// three registers are read in one transaction so the sensor cannot update
// them mid-read.
func (d *Dev) readRaw20(reg byte) (int32, error) {
	var buf [3]byte
	if err := d.readReg(reg, buf[:]); err != nil {
		return 0, err
	}
	return int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2]), nil
}

// temperature reads the raw temperature and compensates it.
//
// It must be called with d.mu held.
func (d *Dev) temperature() (int32, error) {
	raw, err := d.readRaw20(AddrTempMSB)
	if err != nil {
		return 0, err
	}
	return d.calibration.compensateTemp(raw >> 4), nil
}

// measure reads raw pressure and raw temperature in one contiguous 6-byte
// transaction (the pressure registers immediately precede the temperature
// registers) so both values describe the same physical instant, then
// compensates both.
//
// It must be called with d.mu held.
func (d *Dev) measure() (temp int32, press uint32, err error) {
	var buf [6]byte
	if err := d.readReg(AddrPressMSB, buf[:]); err != nil {
		return 0, 0, err
	}
	rawPress := int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])
	rawTemp := int32(buf[3])<<16 | int32(buf[4])<<8 | int32(buf[5])
	rawPress >>= 4
	rawTemp >>= 4
	temp = d.calibration.compensateTemp(rawTemp)
	press = d.calibration.compensatePressure(rawTemp, rawPress)
	return temp, press, nil
}
