// Package domain holds the trade domain model: item entries, offers,
// and the session state machine.
//
// A Session is the unit of synchronization for one trade. All methods
// that touch mutable session state take the session mutex, so two
// operations on the same session never interleave while operations on
// different sessions proceed independently. Registry-level table
// consistency is the registry's concern, not this package's.
package domain
