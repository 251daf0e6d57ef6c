package main

import (
	"time"

	"BaroServer/bmp280"
)

type SensorReading struct {
	Temperature float64   `json:"temperature"`
	Pressure    float64   `json:"pressure"`
	Updated     time.Time `json:"-"`
	UpdatedStr  string    `json:"updated"`
}

func NewSensorReading(date time.Time) SensorReading {
	return SensorReading{
		Updated:    date,
		UpdatedStr: date.Format("2006-01-02 15:04:05"), // ISO 8601 without timezone
	}
}

// ChannelInfo is the descriptor export for the /channels endpoint: the
// scan position, the storage format of the packed segment, and whether the
// channel currently participates in captures.
type ChannelInfo struct {
	Position    int    `json:"position"`
	Domain      string `json:"domain"`
	Kind        string `json:"kind"`
	Index       int    `json:"index"`
	Signed      bool   `json:"signed"`
	RealBits    uint8  `json:"realBits"`
	StorageBits uint8  `json:"storageBits"`
	Shift       uint8  `json:"shift"`
	Enabled     bool   `json:"enabled"`
}

func NewChannelInfo(ch bmp280.Channel, enabled bool) ChannelInfo {
	return ChannelInfo{
		Position:    ch.ScanPos,
		Domain:      ch.Domain.String(),
		Kind:        ch.Kind.String(),
		Index:       ch.Index,
		Signed:      ch.Scan.Signed,
		RealBits:    ch.Scan.RealBits,
		StorageBits: ch.Scan.StorageBits,
		Shift:       ch.Scan.Shift,
		Enabled:     enabled,
	}
}

// ChannelValue is the sync-read result: a plain integer for raw and
// calibration channels, or a (value, scale) pair for processed channels
// where the physical value is value/scale.
type ChannelValue struct {
	Value int64 `json:"value"`
	Scale int32 `json:"scale,omitempty"`
}
