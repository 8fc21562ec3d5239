package protocol

// Wire constants shared by every layer. All higher layers should depend on this file.
// Changing any value breaks compatibility with deployed devices.
const (
	// Frame sizing
	// Layout:
	//   TransferID (4) | Offset (4) | TotalLength (4) | Chunk (0..WriteLimit-12)
	// All header fields are little-endian.
	TransferIDSize  = 4
	OffsetSize      = 4
	TotalLengthSize = 4

	FrameHeaderSize = TransferIDSize + OffsetSize + TotalLengthSize // 12 bytes

	// A write limit must leave room for at least one chunk byte.
	MinWriteLimit = FrameHeaderSize + 1

	// Largest compiled program a device accepts.
	MaxProgramSize = 65535

	// Labels are always carried as exactly this many bytes.
	LabelSize = 5

	// Timestamps on the wire are signed 32-bit milliseconds.
	TimestampSize = 4
)

// Command flags. The first byte of every logical payload is one of these.
const (
	FlagOTAWrite            byte = 0x00
	FlagConfigUpdateRequest byte = 0xEF
	FlagEmitLabelEvent      byte = 0xF4
	FlagEmitTimestampEvent  byte = 0xF5
	FlagEmitColorEvent      byte = 0xF6
	FlagEmitPercentageEvent byte = 0xF7
	FlagTnglBytes           byte = 0xF8
	FlagSetTimeline         byte = 0xF9
	FlagOTAReset            byte = 0xFD
	FlagOTAEnd              byte = 0xFE
	FlagOTABegin            byte = 0xFF
)

// Timeline flags byte of a FlagSetTimeline message.
const (
	TimelineIndexMask byte = 0x0F
	TimelinePaused    byte = 0x10
)

// Percentages are remapped linearly onto this symmetric int32 range.
const (
	PercentageMax = 2147483647
	PercentageMin = -2147483647
)
