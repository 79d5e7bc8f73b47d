package store

import "errors"

var (
	// ErrNoProvenance is returned by ConnectExisting when the base path has
	// no provenance directory.
	ErrNoProvenance = errors.New("there is no provenance store in the current directory")

	// ErrNotConnected is returned by operations that need a database on a
	// store that has not been connected (or has been closed).
	ErrNotConnected = errors.New("store not connected")

	// ErrAlreadyConnected is returned when a connected store is asked to
	// connect to a different base path.
	ErrAlreadyConnected = errors.New("store already connected to another base path")

	// ErrQueryConsumed is yielded when a Query result is ranged over twice.
	ErrQueryConsumed = errors.New("query result already consumed")

	// ErrTrialNotFound is returned when no trial has the requested id.
	ErrTrialNotFound = errors.New("trial not found")
)
