package transport

import "errors"

var (
	ErrNotConnected      = errors.New("link not connected")
	ErrEmptyPayload      = errors.New("empty payload")
	ErrTransferAborted   = errors.New("transfer aborted by reset")
	ErrConnectFailed     = errors.New("connect failed")
	ErrConnectCancelled  = errors.New("connect cancelled by disconnect")
	ErrConnectInProgress = errors.New("connect already in progress")
)
