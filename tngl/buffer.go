package tngl

import (
	"encoding/binary"
	"fmt"
)

// Buffer is an append-only bytecode sink bounded by a byte limit.
// The first append that would cross the limit sets a sticky error and every
// later append is ignored; check Err once compilation is done.
type Buffer struct {
	data  []byte
	limit int
	err   error
}

// NewBuffer returns an empty buffer holding at most limit bytes.
func NewBuffer(limit int) *Buffer {
	return &Buffer{data: make([]byte, 0, min(limit, 256)), limit: limit}
}

func (b *Buffer) reserve(n int) bool {
	if b.err != nil {
		return false
	}
	if len(b.data)+n > b.limit {
		b.err = fmt.Errorf("%w: %d bytes", ErrProgramTooLarge, b.limit)
		return false
	}
	return true
}

func (b *Buffer) FillFlag(op Opcode) { b.FillUInt8(uint8(op)) }

func (b *Buffer) FillUInt8(v uint8) {
	if b.reserve(1) {
		b.data = append(b.data, v)
	}
}

func (b *Buffer) FillUInt16(v uint16) {
	if b.reserve(2) {
		b.data = binary.LittleEndian.AppendUint16(b.data, v)
	}
}

func (b *Buffer) FillInt16(v int16) { b.FillUInt16(uint16(v)) }

func (b *Buffer) FillInt32(v int32) {
	if b.reserve(4) {
		b.data = binary.LittleEndian.AppendUint32(b.data, uint32(v))
	}
}

func (b *Buffer) FillBytes(p []byte) {
	if b.reserve(len(p)) {
		b.data = append(b.data, p...)
	}
}

// Len is the append cursor.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the compiled bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Err() error { return b.err }

// Reset empties the buffer and clears the error.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.err = nil
}
