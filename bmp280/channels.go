package bmp280

import "fmt"

// Domain identifies the physical quantity a channel belongs to.
type Domain uint8

const (
	Temperature Domain = iota
	Pressure
)

func (d Domain) String() string {
	switch d {
	case Temperature:
		return "temperature"
	case Pressure:
		return "pressure"
	}
	return fmt.Sprintf("Domain(%d)", uint8(d))
}

// Kind identifies what a channel carries: a factory calibration
// coefficient, a raw register value, or a compensated value.
type Kind uint8

const (
	Calibration Kind = iota
	Raw
	Processed
)

func (k Kind) String() string {
	switch k {
	case Calibration:
		return "calibration"
	case Raw:
		return "raw"
	case Processed:
		return "processed"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ScanType describes how a channel's value is stored inside a packed
// capture sample: signedness, significant bits, storage width and the
// count of low padding bits. Byte order is always host-native.
type ScanType struct {
	Signed      bool
	RealBits    uint8
	StorageBits uint8
	Shift       uint8
}

// Channel describes one of the sensor's 16 addressable channels.
type Channel struct {
	Domain Domain
	Kind   Kind
	// Index is the kind-local index: 0-2 for temperature calibration, 0-8
	// for pressure calibration, and the per-domain channel number for raw
	// channels. It is -1 for processed channels.
	Index int
	// ScanPos is the slot the channel occupies within a packed capture
	// sample. Positions are unique across the table.
	ScanPos int
	Scan    ScanType
	// Register is the source register base address, or 0 for channels
	// whose value is computed rather than read.
	Register byte
}

func (ch Channel) String() string {
	return fmt.Sprintf("%s/%s@%d", ch.Domain, ch.Kind, ch.ScanPos)
}

// calChannel builds a calibration-coefficient descriptor. Coefficients are
// 16-bit values stored without padding, hence the address stride of 2 on
// the caller side.
func calChannel(dom Domain, index, scanPos int, signed bool, reg byte) Channel {
	return Channel{
		Domain:   dom,
		Kind:     Calibration,
		Index:    index,
		ScanPos:  scanPos,
		Scan:     ScanType{Signed: signed, RealBits: 16, StorageBits: 16},
		Register: reg,
	}
}

// rawChannel builds a raw-value descriptor. Raw values are 20-bit
// two's-complement quantities stored in a 32-bit field with 4 low padding
// bits.
func rawChannel(dom Domain, index, scanPos int, reg byte) Channel {
	return Channel{
		Domain:   dom,
		Kind:     Raw,
		Index:    index,
		ScanPos:  scanPos,
		Scan:     ScanType{Signed: true, RealBits: 20, StorageBits: 32, Shift: 4},
		Register: reg,
	}
}

// Scan positions of the non-calibration channels. The calibration groups
// occupy positions 0-2 (temperature) and 5-13 (pressure).
const (
	PosRawTemp        = 3
	PosProcessedTemp  = 4
	PosRawPress       = 14
	PosProcessedPress = 15
)

// Channels is the device's full channel table, in scan-position order:
// three temperature calibration coefficients, the raw and processed
// temperature, nine pressure calibration coefficients, and the raw and
// processed pressure.
var Channels = []Channel{
	// dig_T1 is unsigned, dig_T2 and dig_T3 are signed.
	calChannel(Temperature, 0, 0, false, AddrTempCalBase),
	calChannel(Temperature, 1, 1, true, AddrTempCalBase+2),
	calChannel(Temperature, 2, 2, true, AddrTempCalBase+4),
	rawChannel(Temperature, 3, PosRawTemp, AddrTempMSB),
	{
		Domain:  Temperature,
		Kind:    Processed,
		Index:   -1,
		ScanPos: PosProcessedTemp,
		Scan:    ScanType{Signed: true, RealBits: 32, StorageBits: 32},
	},
	// dig_P1 is unsigned, dig_P2 through dig_P9 are signed.
	calChannel(Pressure, 0, 5, false, AddrPressCalBase),
	calChannel(Pressure, 1, 6, true, AddrPressCalBase+2),
	calChannel(Pressure, 2, 7, true, AddrPressCalBase+4),
	calChannel(Pressure, 3, 8, true, AddrPressCalBase+6),
	calChannel(Pressure, 4, 9, true, AddrPressCalBase+8),
	calChannel(Pressure, 5, 10, true, AddrPressCalBase+10),
	calChannel(Pressure, 6, 11, true, AddrPressCalBase+12),
	calChannel(Pressure, 7, 12, true, AddrPressCalBase+14),
	calChannel(Pressure, 8, 13, true, AddrPressCalBase+16),
	rawChannel(Pressure, 9, PosRawPress, AddrPressMSB),
	{
		Domain:  Pressure,
		Kind:    Processed,
		Index:   -1,
		ScanPos: PosProcessedPress,
		Scan:    ScanType{Signed: false, RealBits: 32, StorageBits: 32},
	},
}

// ChannelByScanPos returns the descriptor occupying the given scan
// position.
func ChannelByScanPos(pos int) (Channel, bool) {
	if pos < 0 || pos >= len(Channels) {
		return Channel{}, false
	}
	// The table is kept in scan-position order; validateChannels enforces
	// this at device registration.
	return Channels[pos], true
}

// validateChannels verifies the channel table at device registration time:
// scan positions must be exactly the ascending sequence 0..15 and every
// storage width must be one the capture assembler can pack. A malformed
// table is a programming error and must never surface at capture time.
func validateChannels() error {
	if len(Channels) != 16 {
		return fmt.Errorf("bmp280: channel table has %d entries, expected 16", len(Channels))
	}
	for i, ch := range Channels {
		if ch.ScanPos != i {
			return fmt.Errorf("bmp280: channel %s out of order at table index %d", ch, i)
		}
		switch ch.Scan.StorageBits {
		case 16, 32:
		default:
			return fmt.Errorf("bmp280: channel %s has unsupported storage width %d", ch, ch.Scan.StorageBits)
		}
	}
	return nil
}

// ScanMask selects which channels participate in a triggered capture, one
// bit per scan position.
type ScanMask uint16

// AllChannels enables every channel in the table.
const AllChannels ScanMask = 1<<16 - 1

// Enable marks the channel at the given scan position as part of captures.
func (m *ScanMask) Enable(pos int) {
	*m |= 1 << uint(pos)
}

// Disable removes the channel at the given scan position from captures.
func (m *ScanMask) Disable(pos int) {
	*m &^= 1 << uint(pos)
}

// Enabled reports whether the channel at the given scan position is part
// of captures.
func (m ScanMask) Enabled(pos int) bool {
	return m&(1<<uint(pos)) != 0
}
