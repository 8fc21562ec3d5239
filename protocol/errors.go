package protocol

import "errors"

var (
	ErrShortFrame        = errors.New("frame shorter than header")
	ErrFrameOverrun      = errors.New("frame chunk runs past total length")
	ErrUnexpectedFrame   = errors.New("frame out of sequence")
	ErrInvalidWriteLimit = errors.New("write limit leaves no room for payload")
	ErrPayloadTooLarge   = errors.New("payload exceeds 32-bit length")
)
