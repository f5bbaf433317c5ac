package crits

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrQuery marks a failed repository read (the dedup count query).
	ErrQuery = errors.New("crits query failed")

	// ErrEventCreate marks a failed event creation call.
	ErrEventCreate = errors.New("crits event creation failed")

	// ErrNoEventID marks an event creation response that carried no usable
	// identifier. The pulse must be abandoned.
	ErrNoEventID = errors.New("no id in crits event response")

	// ErrTicketAdd marks a failed ticket attachment. Non-fatal for the
	// pulse, but the dedup marker is missing afterwards.
	ErrTicketAdd = errors.New("crits ticket add failed")

	// ErrIndicatorCreate marks an indicator creation the repository
	// rejected, including success responses with a non-zero return code.
	ErrIndicatorCreate = errors.New("crits indicator creation failed")

	// ErrRelationship marks a failed relationship forge.
	ErrRelationship = errors.New("crits relationship failed")
)
