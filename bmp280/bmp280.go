// Package bmp280 controls a Bosch BMP280 temperature and pressure sensor
// over I²C or SPI.
//
// Besides one-shot measurements, the device is modeled as a table of 16
// addressable channels (calibration coefficients, raw register values and
// compensated values) that can be read individually or captured together
// into a packed sample on a trigger event.
//
// Datasheet:
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bmp280-ds001.pdf
package bmp280

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	AddrChipID byte = 0xD0 // read-only, should contain 0x58
	AddrReset  byte = 0xE0

	// control registers

	AddrStatus   byte = 0xF3
	AddrCtrlMeas byte = 0xF4
	AddrConfig   byte = 0xF5

	// calibration ranges, 16-bit little-endian values each

	AddrTempCalBase  byte = 0x88 // dig_T1..dig_T3, 6 bytes
	AddrPressCalBase byte = 0x8E // dig_P1..dig_P9, 18 bytes

	// data registers, 3 bytes each, 20 significant bits

	AddrPressMSB byte = 0xF7
	AddrTempMSB  byte = 0xFA
)

// chipID is the identity register value of a genuine BMP280.
const chipID byte = 0x58

// Oversampling affects how much time is taken to measure temperature and
// pressure, and how many significant bits the raw registers carry.
type Oversampling uint8

// Possible oversampling values.
//
// The higher the more time and power it takes to take a measurement. At
// 16x both raw registers carry the full 20 bits of resolution.
const (
	Off  Oversampling = 0
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 3
	O8x  Oversampling = 4
	O16x Oversampling = 5
)

const oversamplingName = "Off1x2x4x8x16x"

var oversamplingIndex = [...]uint8{0, 3, 5, 7, 9, 11, 14}

func (o Oversampling) String() string {
	if o >= Oversampling(len(oversamplingIndex)-1) {
		return fmt.Sprintf("Oversampling(%d)", o)
	}
	return oversamplingName[oversamplingIndex[o]:oversamplingIndex[o+1]]
}

// Standby is the time the sensor idles between two samples while in normal
// power mode.
type Standby uint8

// Possible standby values.
const (
	S500us Standby = 0
	S62ms  Standby = 1
	S125ms Standby = 2
	S250ms Standby = 3
	S500ms Standby = 4
	S1s    Standby = 5
	S2s    Standby = 6
	S4s    Standby = 7
)

// Filter specifies the internal IIR filter to get steadier measurements.
//
// Oversampling will get better measurements than filtering but at a larger
// power consumption cost, which may slightly affect temperature measurement.
type Filter uint8

// Possible filtering values.
const (
	NoFilter Filter = 0
	F2       Filter = 1
	F4       Filter = 2
	F8       Filter = 3
	F16      Filter = 4
)

// mode is the operating mode.
type mode byte

const (
	sleep  mode = 0 // no operation, all registers accessible, lowest power
	forced mode = 1 // perform one measurement, then return to sleep
	normal mode = 3 // sample continuously at the configured standby rate
)

// DefaultOpts samples continuously once per second at maximum resolution,
// with no filtering.
var DefaultOpts = Opts{
	Temperature: O16x,
	Pressure:    O16x,
	Standby:     S1s,
	Filter:      NoFilter,
}

// Opts defines the options for the device.
//
// The device is put into normal power mode, so a fresh measurement is
// available from the data registers every Standby period without any
// per-read triggering.
type Opts struct {
	// Temperature must be measured for pressure to be compensated.
	Temperature Oversampling
	Pressure    Oversampling
	Standby     Standby
	Filter      Filter
}

// NewI2C returns an object that communicates over I²C to a BMP280
// temperature and pressure sensor.
//
// The address must be 0x76 or 0x77. The value used depends on the HW
// configuration of the sensor's SDO pin. Passing nil opts selects
// DefaultOpts.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x76, 0x77:
	default:
		return nil, errors.New("bmp280: given address not supported by device")
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, isSPI: false}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// NewSPI returns an object that communicates over SPI to a BMP280
// temperature and pressure sensor.
//
// When using SPI, the CS line must be used.
func NewSPI(p spi.Port, opts *Opts) (*Dev, error) {
	// It works both in Mode0 and Mode3.
	c, err := p.Connect(10*physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		return nil, fmt.Errorf("bmp280: %v", err)
	}
	d := &Dev{d: c, isSPI: true}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to an initialized BMP280 device.
//
// The calibration table is read once during initialization and is
// read-only afterwards. All bus transactions are serialized through mu, so
// the synchronous read path and the capture path never interleave bytes on
// the wire, but they are not otherwise coordinated.
type Dev struct {
	d     conn.Conn
	isSPI bool
	opts  Opts
	name  string

	calibration calibrationData

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.name, d.d)
}

// Sense requests the latest measurement as °C and kPa.
//
// Both values are taken from one contiguous register read, so they
// describe the same physical instant.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}
	temp, press, err := d.measure()
	if err != nil {
		return err
	}
	e.Temperature = physic.ZeroCelsius + physic.Temperature(temp)*physic.Kelvin/100
	e.Pressure = physic.Pressure(press) * physic.Pascal / 256
	return nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 100
	e.Pressure = physic.Pascal / 256
}

// SenseContinuous returns measurements as °C and kPa on a continuous
// basis.
//
// The application must call Halt() to stop the sensing when done to stop
// the sensor and close the channel.
//
// It's the responsibility of the caller to retrieve the values from the
// channel as fast as possible, otherwise the interval may not be
// respected.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.wg.Wait()
	}

	sensing := make(chan physic.Env)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, d.stop)
	}()
	return sensing, nil
}

// Halt stops any continuous sensing and puts the device to sleep.
//
// It is recommended to call this function before terminating the process
// to reduce idle power usage and a goroutine leak.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.wg.Wait()
	}
	return d.writeCommands([]byte{
		AddrCtrlMeas, byte(d.opts.Temperature)<<5 | byte(d.opts.Pressure)<<2 | byte(sleep),
	})
}

//

func (d *Dev) makeDev(opts *Opts) error {
	if opts == nil {
		opts = &DefaultOpts
	}
	d.opts = *opts
	d.name = "BMP280"

	if err := validateChannels(); err != nil {
		return err
	}

	var id [1]byte
	if err := d.readReg(AddrChipID, id[:]); err != nil {
		return err
	}
	// Identity mismatch is fatal: the calibration layout and compensation
	// formulas below are only valid for a real BMP280.
	if id[0] != chipID {
		return fmt.Errorf("bmp280: unexpected chip id %#02x, expected %#02x", id[0], chipID)
	}

	b := []byte{
		// config: standby period and IIR filter. No 3-wire SPI.
		AddrConfig, byte(d.opts.Standby)<<5 | byte(d.opts.Filter)<<2,
		// ctrl_meas: oversampling and normal power mode.
		AddrCtrlMeas, byte(d.opts.Temperature)<<5 | byte(d.opts.Pressure)<<2 | byte(normal),
	}
	if err := d.writeCommands(b); err != nil {
		return err
	}

	// One block read per coefficient group, so no coefficient can be
	// observed mid-update between two separate register reads.
	var tcal [6]byte
	if err := d.readReg(AddrTempCalBase, tcal[:]); err != nil {
		return err
	}
	var pcal [18]byte
	if err := d.readReg(AddrPressCalBase, pcal[:]); err != nil {
		return err
	}
	d.calibration = newCalibration(tcal[:], pcal[:])
	return nil
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- physic.Env, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		// Do one initial sensing right away.
		e := physic.Env{}
		d.mu.Lock()
		temp, press, err := d.measure()
		d.mu.Unlock()
		if err != nil {
			log.Printf("%s: failed to sense: %v", d, err)
			return
		}
		e.Temperature = physic.ZeroCelsius + physic.Temperature(temp)*physic.Kelvin/100
		e.Pressure = physic.Pressure(press) * physic.Pascal / 256
		select {
		case sensing <- e:
		case <-stop:
			return
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

func (d *Dev) readReg(reg uint8, b []byte) error {
	if d.isSPI {
		// MSB is 0 for write and 1 for read.
		read := make([]byte, len(b)+1)
		write := make([]byte, len(read))
		// Rest of the write buffer is ignored.
		write[0] = reg | 0x80
		if err := d.d.Tx(write, read); err != nil {
			return d.wrap(err)
		}
		copy(b, read[1:])
		return nil
	}
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		return d.wrap(err)
	}
	return nil
}

// writeCommands writes a command to the device.
//
// Warning: b may be modified!
func (d *Dev) writeCommands(b []byte) error {
	if d.isSPI {
		// set RW bit 7 to 0.
		for i := 0; i < len(b); i += 2 {
			b[i] &^= 0x80
		}
	}
	if err := d.d.Tx(b, nil); err != nil {
		return d.wrap(err)
	}
	return nil
}

func (d *Dev) wrap(err error) error {
	return fmt.Errorf("bmp280: %v", err)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
