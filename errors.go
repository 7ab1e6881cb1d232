package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by index queries issued before the first Build.
	// Seeing it means the caller sequenced events wrongly.
	ErrNotInitialized = errors.New("cluster: index is not built")

	// ErrClusterNotFound is returned when a cluster id is not known to the live index.
	ErrClusterNotFound = errors.New("cluster: no cluster with such id")

	// ErrSessionClosed is returned for events that arrive after OnTeardown.
	ErrSessionClosed = errors.New("cluster: session is torn down")
)

// ConfigError reports an invalid configuration, detected at construction.
// It is fatal: the session cannot be created.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cluster: invalid config %s: %s", e.Field, e.Reason)
}

// CoordinateError reports an item whose coordinate could not be resolved.
// The conversion pass skips such items and keeps going.
type CoordinateError struct {
	Index  int // position of the item in the snapshot, -1 if unknown
	Reason string
}

func (e *CoordinateError) Error() string {
	if e.Index < 0 {
		return "cluster: bad coordinate: " + e.Reason
	}
	return fmt.Sprintf("cluster: bad coordinate for item %d: %s", e.Index, e.Reason)
}
