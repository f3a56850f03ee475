package model

import "errors"

// Provider error classes. Adapters wrap transport errors with these so callers
// can branch with errors.Is regardless of vendor.
var (
	ErrRateLimited     = errors.New("model rate limited")
	ErrUnauthorized    = errors.New("model credentials rejected")
	ErrContextOverflow = errors.New("model context window exceeded")
	ErrUnavailable     = errors.New("model temporarily unavailable")
)
