package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// TransferIDs hands out transfer ids for one sender. It starts at a random
// value so a reconnecting host does not reuse the ids of its last session,
// then counts up, so ids from one sender repeat only after 2^32 payloads.
type TransferIDs struct {
	last atomic.Uint32
}

// NewTransferIDs seeds a sequence from crypto/rand, or from the clock when
// no entropy is available.
func NewTransferIDs() *TransferIDs {
	var seed uint32
	var b [4]byte
	if _, err := rand.Read(b[:]); err == nil {
		seed = binary.LittleEndian.Uint32(b[:])
	} else {
		now := uint64(time.Now().UnixNano())
		seed = uint32(now) ^ uint32(now>>32)
	}
	g := &TransferIDs{}
	g.last.Store(seed)
	return g
}

// Next returns the id for the next payload.
func (g *TransferIDs) Next() uint32 {
	return g.last.Add(1)
}
