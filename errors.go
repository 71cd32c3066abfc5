package trellis

import "errors"

var (
	// Queue errors.
	ErrNoExecutor   = errors.New("trellis: no executor configured")
	ErrNoTransport  = errors.New("trellis: no transport configured for reads")
	ErrQueueCleared = errors.New("trellis: queue cleared")
	ErrUnknownKind  = errors.New("trellis: unknown operation kind")
	ErrNotSettled   = errors.New("trellis: operation not settled")

	// Validation errors.
	ErrMissingNodeID = errors.New("trellis: missing node id")
	ErrMissingName   = errors.New("trellis: missing node name")

	// Journal errors.
	ErrEntryNotFound = errors.New("trellis: journal entry not found")

	// API errors.
	ErrNodeNotFound = errors.New("trellis: node not found")
	ErrUnauthorized = errors.New("trellis: unauthorized")
	ErrRateLimited  = errors.New("trellis: rate limited")

	// Auth errors.
	ErrNoCredentials = errors.New("trellis: no credentials configured")
)
