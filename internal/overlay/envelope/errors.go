package envelope

import "errors"

var (
	// ErrOversize is returned when a wire message exceeds the configured cap.
	ErrOversize = errors.New("envelope: message exceeds size cap")
	// ErrMalformed is returned when a wire message fails to parse or violates
	// a structural bound (e.g. type string too long).
	ErrMalformed = errors.New("envelope: malformed message")
)
