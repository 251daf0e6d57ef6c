package bmp280

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Reading is a resolved channel value.
//
// Scale is the fixed denominator for processed channels: 100 for
// temperature (the value is in 1/100 °C) and 256 for pressure (1/256 Pa).
// It is 0 for calibration and raw channels, whose values are plain
// integers.
type Reading struct {
	Value int64
	Scale int32
}

// Float64 returns the reading as a floating-point physical value.
func (r Reading) Float64() float64 {
	if r.Scale == 0 {
		return float64(r.Value)
	}
	return float64(r.Value) / float64(r.Scale)
}

// ReadChannel resolves a single channel synchronously, independent of any
// capture in progress.
//
// Calibration channels index directly into the calibration table and
// never touch the bus. Raw channels perform one register read and return
// the value with its padding bits intact. Processed channels run the
// compensation algorithm.
func (d *Dev) ReadChannel(ch Channel) (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readChannel(ch)
}

// readChannel must be called with d.mu held.
func (d *Dev) readChannel(ch Channel) (Reading, error) {
	switch ch.Kind {
	case Calibration:
		switch ch.Domain {
		case Temperature:
			if ch.Index < 0 || ch.Index >= 3 {
				return Reading{}, fmt.Errorf("bmp280: no temperature calibration coefficient %d", ch.Index)
			}
			return Reading{Value: d.calibration.temperatureCoeff(ch.Index)}, nil
		case Pressure:
			if ch.Index < 0 || ch.Index >= 9 {
				return Reading{}, fmt.Errorf("bmp280: no pressure calibration coefficient %d", ch.Index)
			}
			return Reading{Value: d.calibration.pressureCoeff(ch.Index)}, nil
		}
	case Raw:
		switch ch.Domain {
		case Temperature:
			raw, err := d.readRaw20(AddrTempMSB)
			if err != nil {
				return Reading{}, err
			}
			return Reading{Value: int64(raw)}, nil
		case Pressure:
			raw, err := d.readRaw20(AddrPressMSB)
			if err != nil {
				return Reading{}, err
			}
			return Reading{Value: int64(raw)}, nil
		}
	case Processed:
		switch ch.Domain {
		case Temperature:
			temp, err := d.temperature()
			if err != nil {
				return Reading{}, err
			}
			return Reading{Value: int64(temp), Scale: 100}, nil
		case Pressure:
			_, press, err := d.measure()
			if err != nil {
				return Reading{}, err
			}
			return Reading{Value: int64(press), Scale: 256}, nil
		}
	}
	return Reading{}, fmt.Errorf("bmp280: unexpected channel %s", ch)
}

// AssembleSample resolves every enabled channel and packs the values into
// one flat sample, in ascending scan-position order, each value stored in
// its channel's storage width in host-native byte order with no padding
// between segments.
//
// Assembly is all-or-nothing: if any channel fails to resolve, no sample
// is produced.
func (d *Dev) AssembleSample(mask ScanMask) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w := newSampleWriter(sampleBytes(mask))
	for _, ch := range Channels {
		if !mask.Enabled(ch.ScanPos) {
			continue
		}
		r, err := d.readChannel(ch)
		if err != nil {
			return nil, err
		}
		if err := w.put(r.Value, ch.Scan); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

// sampleBytes returns the packed size of one capture over the mask.
func sampleBytes(mask ScanMask) int {
	n := 0
	for _, ch := range Channels {
		if mask.Enabled(ch.ScanPos) {
			n += int(ch.Scan.StorageBits) / 8
		}
	}
	return n
}

var errSampleOverflow = errors.New("bmp280: sample buffer overflow")

// sampleWriter packs mixed-width channel values into a flat buffer with
// bounds-checked appends, replacing any manual offset arithmetic.
type sampleWriter struct {
	buf []byte
	off int
}

func newSampleWriter(size int) *sampleWriter {
	return &sampleWriter{buf: make([]byte, size)}
}

// put appends one value in the storage width given by its scan type.
// Signed and unsigned values share the same two's-complement byte image,
// so the signedness flag only matters to the consumer of the sample.
func (w *sampleWriter) put(v int64, t ScanType) error {
	switch t.StorageBits {
	case 16:
		if w.off+2 > len(w.buf) {
			return errSampleOverflow
		}
		binary.NativeEndian.PutUint16(w.buf[w.off:], uint16(v))
		w.off += 2
	case 32:
		if w.off+4 > len(w.buf) {
			return errSampleOverflow
		}
		binary.NativeEndian.PutUint32(w.buf[w.off:], uint32(v))
		w.off += 4
	default:
		return fmt.Errorf("bmp280: unsupported storage width %d", t.StorageBits)
	}
	return nil
}

func (w *sampleWriter) bytes() []byte {
	return w.buf[:w.off]
}
