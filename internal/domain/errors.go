package domain

import "errors"

// Failure taxonomy. None of these ever escape Generate; they are wrapped
// into GenerationResult.ErrorDetail so the caller always gets an envelope.
var (
	// ErrModelNotFound indicates the model id does not resolve in the catalog.
	ErrModelNotFound = errors.New("model not found")

	// ErrModelDisabled indicates the model resolves but is administratively
	// disabled for new requests.
	ErrModelDisabled = errors.New("model disabled")

	// ErrAdapterNotRegistered indicates no adapter is configured for the
	// resolved model's provider.
	ErrAdapterNotRegistered = errors.New("no adapter registered for provider")

	// ErrStreamTruncated indicates a stream closed before delivering its
	// terminal usage event. Accumulated text is still usable; usage falls
	// back to estimation.
	ErrStreamTruncated = errors.New("stream ended before usage metadata")
)
