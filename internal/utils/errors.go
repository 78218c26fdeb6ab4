package utils

import "errors"

// Every fetch failure except ErrToolUnavailable costs an attempt; that one triggers a strategy downgrade instead.
var (
	ErrToolUnavailable = errors.New("external download tool unavailable")
	ErrNetwork         = errors.New("network error")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrHashMismatch    = errors.New("hash mismatch")
	ErrProbeTimeout    = errors.New("mirror probe timed out")
	ErrUnexpected      = errors.New("unexpected failure")
)
