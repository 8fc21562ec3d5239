package protocol

import (
	"encoding/binary"
	"math"
)

// Logical payload builders. Each returns the bytes handed to the transmitter,
// which frames them for the link.

// EncodeLabel packs a label name into exactly LabelSize bytes.
// Longer names are truncated, shorter ones padded with zero bytes.
// A leading '$' is not part of the name.
func EncodeLabel(name string) [LabelSize]byte {
	var out [LabelSize]byte
	for i := 0; i < LabelSize && i < len(name); i++ {
		out[i] = name[i]
	}
	return out
}

// PercentageValue clamps p to [-100, 100] and remaps it onto
// [PercentageMin, PercentageMax], truncating toward zero.
func PercentageValue(p float64) int32 {
	if math.IsNaN(p) {
		return 0
	}
	p = max(-100.0, min(100.0, p))
	remapped := (p+100.0)*(float64(PercentageMax)-float64(PercentageMin))/200.0 + float64(PercentageMin)
	return int32(remapped)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// SetTimelineMessage builds
// [FlagSetTimeline, clock(4), timestamp(4), flags(1)] where flags carries the
// timeline index in bits 0-3 and the paused state in bit 4.
func SetTimelineMessage(clock, timestamp int64, index uint8, paused bool) []byte {
	flags := index & TimelineIndexMask
	if paused {
		flags |= TimelinePaused
	}
	b := make([]byte, 0, 10)
	b = append(b, FlagSetTimeline)
	b = appendUint32(b, uint32(clock))
	b = appendUint32(b, uint32(timestamp))
	return append(b, flags)
}

// SyncMessage is the 4-byte clock value pushed on the sync channel.
func SyncMessage(clock int64) []byte {
	return appendUint32(make([]byte, 0, TimestampSize), uint32(clock))
}

func eventHeader(flag byte, deviceID uint8, label string, size int) []byte {
	b := make([]byte, 0, 2+LabelSize+size+TimestampSize)
	l := EncodeLabel(label)
	b = append(b, flag, deviceID)
	return append(b, l[:]...)
}

// ColorEventMessage builds [flag, device, label(5), r, g, b, timestamp(4)].
func ColorEventMessage(deviceID uint8, label string, r, g, b uint8, timestamp int64) []byte {
	m := eventHeader(FlagEmitColorEvent, deviceID, label, 3)
	m = append(m, r, g, b)
	return appendUint32(m, uint32(timestamp))
}

// PercentageEventMessage builds [flag, device, label(5), value(4), timestamp(4)].
func PercentageEventMessage(deviceID uint8, label string, percent float64, timestamp int64) []byte {
	m := eventHeader(FlagEmitPercentageEvent, deviceID, label, 4)
	m = appendUint32(m, uint32(PercentageValue(percent)))
	return appendUint32(m, uint32(timestamp))
}

// TimestampEventMessage builds [flag, device, label(5), millis(4), timestamp(4)].
func TimestampEventMessage(deviceID uint8, label string, millis int64, timestamp int64) []byte {
	m := eventHeader(FlagEmitTimestampEvent, deviceID, label, 4)
	m = appendUint32(m, uint32(millis))
	return appendUint32(m, uint32(timestamp))
}

// LabelEventMessage builds [flag, device, label(5), value(5), timestamp(4)].
func LabelEventMessage(deviceID uint8, label, value string, timestamp int64) []byte {
	m := eventHeader(FlagEmitLabelEvent, deviceID, label, LabelSize)
	v := EncodeLabel(value)
	m = append(m, v[:]...)
	return appendUint32(m, uint32(timestamp))
}

func otaPhase(flag byte, arg uint32) []byte {
	return appendUint32([]byte{flag, 0x00}, arg)
}

// OTAResetMessage clears any partial update on the device.
func OTAResetMessage() []byte { return otaPhase(FlagOTAReset, 0) }

// OTABeginMessage announces the total image length.
func OTABeginMessage(total uint32) []byte { return otaPhase(FlagOTABegin, total) }

// OTAEndMessage announces the number of bytes written.
func OTAEndMessage(written uint32) []byte { return otaPhase(FlagOTAEnd, written) }

// OTAWriteMessage carries one image chunk at offset.
func OTAWriteMessage(offset uint32, chunk []byte) []byte {
	b := make([]byte, 0, 6+len(chunk))
	b = append(b, FlagOTAWrite, 0x00)
	b = appendUint32(b, offset)
	return append(b, chunk...)
}

// ConfigUpdateMessage carries a whole configuration blob.
func ConfigUpdateMessage(config []byte) []byte {
	b := make([]byte, 0, 6+len(config))
	b = append(b, FlagConfigUpdateRequest, 0x00)
	b = appendUint32(b, uint32(len(config)))
	return append(b, config...)
}
