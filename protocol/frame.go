package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame is one chunk of a logical payload plus the header needed to reassemble it.
// Layout: TransferID(4) | Offset(4) | TotalLength(4) | Chunk
// Every frame of a payload shares TransferID and TotalLength; Offset is the
// position of Chunk inside the payload.
type Frame struct {
	TransferID  uint32
	Offset      uint32
	TotalLength uint32
	Chunk       []byte
}

// Encode serialises the frame into on-air bytes.
func (f *Frame) Encode() []byte {
	data := make([]byte, FrameHeaderSize+len(f.Chunk))
	binary.LittleEndian.PutUint32(data[0:4], f.TransferID)
	binary.LittleEndian.PutUint32(data[4:8], f.Offset)
	binary.LittleEndian.PutUint32(data[8:12], f.TotalLength)
	copy(data[FrameHeaderSize:], f.Chunk)
	return data
}

// Last reports whether the frame completes its payload.
func (f *Frame) Last() bool {
	return uint64(f.Offset)+uint64(len(f.Chunk)) == uint64(f.TotalLength)
}

// DecodeFrame parses on-air bytes. The chunk is copied out of data.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, ErrShortFrame
	}
	f := &Frame{
		TransferID:  binary.LittleEndian.Uint32(data[0:4]),
		Offset:      binary.LittleEndian.Uint32(data[4:8]),
		TotalLength: binary.LittleEndian.Uint32(data[8:12]),
	}
	chunkLen := len(data) - FrameHeaderSize
	if uint64(f.Offset)+uint64(chunkLen) > uint64(f.TotalLength) {
		return nil, fmt.Errorf("%w: offset %d + %d > %d", ErrFrameOverrun, f.Offset, chunkLen, f.TotalLength)
	}
	f.Chunk = make([]byte, chunkLen)
	copy(f.Chunk, data[FrameHeaderSize:])
	return f, nil
}

// ChunkSize returns the payload bytes that fit in one write of writeLimit bytes.
func ChunkSize(writeLimit int) (int, error) {
	if writeLimit < MinWriteLimit {
		return 0, fmt.Errorf("%w: %d < %d", ErrInvalidWriteLimit, writeLimit, MinWriteLimit)
	}
	return writeLimit - FrameHeaderSize, nil
}

// Split cuts payload into ceil(len/chunkSize) frames with offsets 0, C, 2C, ...
// Chunks alias payload; callers must not mutate it until the frames are written.
func Split(transferID uint32, payload []byte, chunkSize int) ([]Frame, error) {
	if chunkSize < 1 {
		return nil, ErrInvalidWriteLimit
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, ErrPayloadTooLarge
	}
	total := uint32(len(payload))
	frames := make([]Frame, 0, (len(payload)+chunkSize-1)/chunkSize)
	for off := 0; off < len(payload); off += chunkSize {
		end := min(off+chunkSize, len(payload))
		frames = append(frames, Frame{
			TransferID:  transferID,
			Offset:      uint32(off),
			TotalLength: total,
			Chunk:       payload[off:end],
		})
	}
	return frames, nil
}

// Assembler reassembles frames of one connection back into payloads.
// Frames must arrive in order; a frame at offset 0 always starts a new transfer.
type Assembler struct {
	active bool
	id     uint32
	total  uint32
	buf    []byte
}

// Push consumes a frame. It returns the payload and true once the transfer completes.
// An out-of-sequence frame drops the partial transfer and returns ErrUnexpectedFrame.
func (a *Assembler) Push(f *Frame) ([]byte, bool, error) {
	if f.Offset == 0 {
		a.active = true
		a.id = f.TransferID
		a.total = f.TotalLength
		a.buf = make([]byte, 0, f.TotalLength)
	} else if !a.active || f.TransferID != a.id || f.TotalLength != a.total || int(f.Offset) != len(a.buf) {
		a.Reset()
		return nil, false, fmt.Errorf("%w: transfer %08x offset %d", ErrUnexpectedFrame, f.TransferID, f.Offset)
	}
	if uint64(len(a.buf))+uint64(len(f.Chunk)) > uint64(a.total) {
		a.Reset()
		return nil, false, ErrFrameOverrun
	}
	a.buf = append(a.buf, f.Chunk...)
	if uint32(len(a.buf)) < a.total {
		return nil, false, nil
	}
	out := a.buf
	a.Reset()
	return out, true, nil
}

// Reset drops any partial transfer.
func (a *Assembler) Reset() {
	a.active = false
	a.id, a.total = 0, 0
	a.buf = nil
}
