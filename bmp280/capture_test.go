package bmp280

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

// setupIO is the bus traffic NewI2C generates with DefaultOpts: chip
// identity probe, config and ctrl_meas writes, then one block read per
// calibration group.
func setupIO() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: 0x76, W: []byte{AddrChipID}, R: []byte{chipID}},
		{Addr: 0x76, W: []byte{AddrConfig, 0xA0, AddrCtrlMeas, 0xB7}, R: nil},
		{Addr: 0x76, W: []byte{AddrTempCalBase}, R: datasheetTempCal},
		{Addr: 0x76, W: []byte{AddrPressCalBase}, R: datasheetPressCal},
	}
}

// Raw register windows matching the datasheet example values: the 20-bit
// ADC words left-shifted by the 4 hardware padding bits.
var (
	rawTempOp  = i2ctest.IO{Addr: 0x76, W: []byte{AddrTempMSB}, R: []byte{0x7E, 0xED, 0x00}}
	rawPressOp = i2ctest.IO{Addr: 0x76, W: []byte{AddrPressMSB}, R: []byte{0x65, 0x5A, 0xC0}}
	// Pressure registers followed immediately by temperature registers,
	// read as one 6-byte block.
	measureOp = i2ctest.IO{Addr: 0x76, W: []byte{AddrPressMSB}, R: []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00}}
)

const (
	rawTempWord  = 0x7EED00 // 519888 << 4
	rawPressWord = 0x655AC0 // 415148 << 4
)

func playbackDev(t *testing.T, extra ...i2ctest.IO) (*Dev, *i2ctest.Playback) {
	t.Helper()
	bus := &i2ctest.Playback{Ops: append(setupIO(), extra...)}
	dev, err := NewI2C(bus, 0x76, nil)
	require.NoError(t, err)
	return dev, bus
}

func TestReadChannelCalibration(t *testing.T) {
	dev, bus := playbackDev(t)

	r, err := dev.ReadChannel(Channels[0])
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: 27504}, r)

	r, err = dev.ReadChannel(Channels[2])
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: -1000}, r)

	// Scan position 10 is dig_P6.
	ch, ok := ChannelByScanPos(10)
	require.True(t, ok)
	r, err = dev.ReadChannel(ch)
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: -7}, r)

	// Calibration channels never touch the bus after setup.
	assert.NoError(t, bus.Close())
}

func TestReadChannelRaw(t *testing.T) {
	dev, bus := playbackDev(t, rawTempOp, rawPressOp)

	r, err := dev.ReadChannel(Channels[PosRawTemp])
	require.NoError(t, err)
	// Padding bits are preserved on the raw path.
	assert.Equal(t, Reading{Value: rawTempWord}, r)

	r, err = dev.ReadChannel(Channels[PosRawPress])
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: rawPressWord}, r)

	assert.NoError(t, bus.Close())
}

func TestReadChannelProcessed(t *testing.T) {
	dev, bus := playbackDev(t, rawTempOp, measureOp)

	r, err := dev.ReadChannel(Channels[PosProcessedTemp])
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: 2508, Scale: 100}, r)
	assert.InDelta(t, 25.08, r.Float64(), 1e-9)

	r, err = dev.ReadChannel(Channels[PosProcessedPress])
	require.NoError(t, err)
	assert.Equal(t, Reading{Value: 25767233, Scale: 256}, r)

	assert.NoError(t, bus.Close())
}

func TestReadingFloat64(t *testing.T) {
	// The (value, scale) pair is a numerator over a fixed denominator:
	// 2096/100 is 20.96 °C, 25964048/256 is 101422.0625 Pa.
	assert.Equal(t, 20.96, Reading{Value: 2096, Scale: 100}.Float64())
	assert.Equal(t, 101422.0625, Reading{Value: 25964048, Scale: 256}.Float64())
	// Scale 0 means a plain integer.
	assert.Equal(t, float64(-25536), Reading{Value: -25536}.Float64())
}

func TestAssembleSampleProcessedPair(t *testing.T) {
	dev, bus := playbackDev(t, rawTempOp, measureOp)

	var mask ScanMask
	mask.Enable(PosProcessedTemp)
	mask.Enable(PosProcessedPress)

	sample, err := dev.AssembleSample(mask)
	require.NoError(t, err)
	// Two 32-bit segments, nothing else, no padding in between.
	require.Len(t, sample, 8)
	assert.Equal(t, int32(2508), int32(binary.NativeEndian.Uint32(sample[0:])))
	assert.Equal(t, uint32(25767233), binary.NativeEndian.Uint32(sample[4:]))

	assert.NoError(t, bus.Close())
}

func TestAssembleSampleAllChannels(t *testing.T) {
	// In ascending scan order the bus sees: raw temperature (position 3),
	// raw temperature again for the processed channel (position 4), raw
	// pressure (position 14), then the 6-byte combined read (position 15).
	dev, bus := playbackDev(t, rawTempOp, rawTempOp, rawPressOp, measureOp)

	sample, err := dev.AssembleSample(AllChannels)
	require.NoError(t, err)
	// 12 16-bit calibration segments + 4 32-bit segments.
	require.Len(t, sample, 40)

	assert.Equal(t, uint16(27504), binary.NativeEndian.Uint16(sample[0:]))
	assert.Equal(t, int16(26435), int16(binary.NativeEndian.Uint16(sample[2:])))
	assert.Equal(t, int16(-1000), int16(binary.NativeEndian.Uint16(sample[4:])))
	assert.Equal(t, uint32(rawTempWord), binary.NativeEndian.Uint32(sample[6:]))
	assert.Equal(t, int32(2508), int32(binary.NativeEndian.Uint32(sample[10:])))

	pressCal := []int16{-10685, 3024, 2855, 140, -7, 15500, -14600, 6000}
	assert.Equal(t, uint16(36477), binary.NativeEndian.Uint16(sample[14:]))
	for i, want := range pressCal {
		assert.Equal(t, want, int16(binary.NativeEndian.Uint16(sample[16+2*i:])), "dig_P%d", i+2)
	}

	assert.Equal(t, uint32(rawPressWord), binary.NativeEndian.Uint32(sample[32:]))
	assert.Equal(t, uint32(25767233), binary.NativeEndian.Uint32(sample[36:]))

	assert.NoError(t, bus.Close())
}

func TestAssembleSampleAbortsOnFailure(t *testing.T) {
	// No raw register traffic is scripted, so resolving the raw
	// temperature channel fails mid-assembly. The calibration channel
	// before it resolved fine, but no partial sample may escape.
	bus := &i2ctest.Playback{Ops: setupIO(), DontPanic: true}
	dev, err := NewI2C(bus, 0x76, nil)
	require.NoError(t, err)

	var mask ScanMask
	mask.Enable(0)
	mask.Enable(PosRawTemp)

	sample, err := dev.AssembleSample(mask)
	assert.Error(t, err)
	assert.Nil(t, sample)
}

func TestAssembleSampleEmptyMask(t *testing.T) {
	dev, bus := playbackDev(t)

	sample, err := dev.AssembleSample(0)
	require.NoError(t, err)
	assert.Empty(t, sample)

	assert.NoError(t, bus.Close())
}

func TestSampleWriterBounds(t *testing.T) {
	w := newSampleWriter(2)
	require.NoError(t, w.put(-1000, ScanType{Signed: true, StorageBits: 16}))
	assert.ErrorIs(t, w.put(0, ScanType{StorageBits: 16}), errSampleOverflow)
	assert.ErrorIs(t, w.put(0, ScanType{StorageBits: 32}), errSampleOverflow)

	w = newSampleWriter(4)
	assert.Error(t, w.put(0, ScanType{StorageBits: 24}))
}
