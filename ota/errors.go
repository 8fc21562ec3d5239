package ota

import "errors"

var (
	ErrUpdateInProgress = errors.New("update already in progress")
	ErrUpdateFailed     = errors.New("update failed")
	ErrEmptyImage       = errors.New("empty update image")
	ErrImageTooLarge    = errors.New("update image exceeds 4 GiB")
)
