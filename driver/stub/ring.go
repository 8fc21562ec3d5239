package stub

const ringCapacity = 64

// ringBuffer keeps the most recent payloads, overwriting the oldest when full.
type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int // head = oldest, tail = next push
	count      int
}

func (rb *ringBuffer) push(p []byte) {
	if rb.count == ringCapacity {
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = p
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) snapshot() [][]byte {
	out := make([][]byte, 0, rb.count)
	for c, i := 0, rb.head; c < rb.count; c, i = c+1, (i+1)%ringCapacity {
		out = append(out, append([]byte(nil), rb.data[i]...))
	}
	return out
}
