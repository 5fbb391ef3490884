package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	// suffixScale shifts the Unix timestamp left by four decimal digits.
	suffixScale = 10000
	minSuffix   = 1000
	maxSuffix   = 9999

	// minSnapshotDigits is a 10-digit Unix timestamp plus the 4-digit suffix.
	minSnapshotDigits = 14
)

// ErrInvalidSnapshotID is returned when a value does not have the
// <unix-seconds><4 digits> shape.
var ErrInvalidSnapshotID = errors.New("invalid snapshot id")

// SnapshotID tags every staging row produced by one extraction run.
type SnapshotID int64

// NewSnapshotID generates an ID from the package clock and a random suffix.
func NewSnapshotID() SnapshotID {
	return newSnapshotID(clock.Now(), minSuffix+rand.IntN(maxSuffix-minSuffix+1))
}

// newSnapshotID concatenates the Unix seconds of now with a 4-digit suffix.
func newSnapshotID(now time.Time, suffix int) SnapshotID {
	return SnapshotID(now.Unix()*suffixScale + int64(suffix))
}

// ParseSnapshotID parses a decimal snapshot ID and validates its shape.
func ParseSnapshotID(s string) (SnapshotID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSnapshotID, s)
	}
	id := SnapshotID(n)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSnapshotID, s)
	}
	return id, nil
}

// Valid reports whether the ID is positive, has at least 14 digits and ends
// in a suffix between 1000 and 9999.
func (id SnapshotID) Valid() bool {
	if id <= 0 || len(id.String()) < minSnapshotDigits {
		return false
	}
	suffix := id.Suffix()
	return suffix >= minSuffix && suffix <= maxSuffix
}

// Timestamp returns the run start time encoded in the ID, in UTC.
func (id SnapshotID) Timestamp() time.Time {
	return time.Unix(int64(id)/suffixScale, 0).UTC()
}

// Suffix returns the random 4-digit part of the ID.
func (id SnapshotID) Suffix() int {
	return int(int64(id) % suffixScale)
}

func (id SnapshotID) String() string {
	return strconv.FormatInt(int64(id), 10)
}
