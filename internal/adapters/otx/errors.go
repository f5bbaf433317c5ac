package otx

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrUnavailable marks a non-200 feed response. The pulse iterator
	// stops producing items when it occurs.
	ErrUnavailable = errors.New("otx feed unavailable")

	// ErrDecode marks a feed payload that could not be parsed.
	ErrDecode = errors.New("otx response decode failed")
)
