package errors

import "errors"

// This package defines a centralized set of sentinel errors for the application.
// Using sentinel errors allows services to return specific, recognizable error types
// without coupling them to implementation details like HTTP status codes. The API
// layer can then use `errors.Is()` to check for these specific errors and map
// them to the correct HTTP responses.

var (
	// ErrNotFound signifies that a requested resource could not be located.
	// Typically mapped to a 404 Not Found HTTP status.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input data provided by a client failed
	// business rule validation.
	// Typically mapped to a 400 Bad Request HTTP status.
	ErrValidation = errors.New("validation failed")

	// ErrInternal signifies an unexpected error on the server. This is a generic
	// error used to prevent leaking sensitive implementation details to the client.
	ErrInternal = errors.New("internal server error")

	// ErrConflict signifies that the request is valid but collides with the
	// current state of the resource, such as opening a second streaming turn
	// on a conversation that already has one in flight.
	// Typically mapped to a 409 Conflict HTTP status.
	ErrConflict = errors.New("resource conflict")

	// ErrProviderNotFound is returned when a completion names a provider id
	// that is not registered. Distinct from ErrProviderNotAvailable so the
	// client can tell "unknown backend" apart from "known but unreachable".
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderNotAvailable is returned when the requested provider is
	// registered but its availability probe reports it cannot serve requests.
	ErrProviderNotAvailable = errors.New("provider not available")

	// ErrNotConfigured is returned by a cloud adapter that has no API key.
	// It is always raised before any network attempt.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrStreamTimeout signifies that a streaming session saw no fragment
	// activity within the configured inactivity window. Surfaced distinctly
	// from transport errors so the UI can say "the provider stopped
	// responding" rather than "the provider rejected the request".
	ErrStreamTimeout = errors.New("stream inactivity timeout")

	// ErrStreamCapped signifies that a session emitted more bytes than the
	// configured hard cap and was forcibly terminated to protect the client
	// from unbounded growth.
	ErrStreamCapped = errors.New("stream size cap exceeded")
)
