package resolver

import "errors"

var (
	// ErrInvalidInput marks a request rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a commune unknown to the store.
	ErrNotFound = errors.New("not found")
	// ErrScrapeFailed marks a portal lookup that did not yield a postal code.
	ErrScrapeFailed = errors.New("scrape failed")
	// ErrHandleUnavailable marks a lookup that could not obtain a browser handle.
	ErrHandleUnavailable = errors.New("scrape handle unavailable")
	// ErrPersistence marks a store failure other than a missing record.
	ErrPersistence = errors.New("persistence failed")
	// ErrNoRecord is returned by Store lookups that match nothing.
	ErrNoRecord = errors.New("record not found")
)
