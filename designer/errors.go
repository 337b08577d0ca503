package designer

import "errors"

var (
	// ErrCaptureUnavailable means the render surface is not ready.
	ErrCaptureUnavailable = errors.New("capture surface unavailable")
	// ErrUploadFailed wraps file-storage failures while finishing a design.
	ErrUploadFailed = errors.New("image upload failed")
	// ErrPersistFailed wraps document-persistence failures while finishing a design.
	ErrPersistFailed = errors.New("design persist failed")
	// ErrMalformedDesign is returned when serialized elements cannot be parsed.
	ErrMalformedDesign = errors.New("malformed serialized design")
	// ErrNotAuthenticated is returned when finishing without an identity.
	ErrNotAuthenticated = errors.New("not authenticated")

	ErrElementNotFound   = errors.New("element not found")
	ErrGestureInProgress = errors.New("another gesture is in progress")
	ErrNoGesture         = errors.New("no gesture in progress")
	ErrInvalidColor      = errors.New("invalid hex color")
	ErrInvalidContent    = errors.New("invalid element content")
)
