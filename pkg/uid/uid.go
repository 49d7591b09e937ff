// Package uid provides fast manipulation with human-readable unique
// identifiers. Each distinct string is interned once and mapped to a small
// integer, so identifier comparison is an integer comparison.
//
// The interning table is process-wide and unsynchronised: all interning
// happens on the host's main thread, like every other mutation in the
// plugin lifecycle core.
package uid

import (
	"strings"

	"QDataServer/pkg/logger"
)

// ID is an interned identifier. The zero value is invalid and differs from
// every interned value. Two IDs are equal iff the strings they were interned
// from are byte-equal.
type ID int

const invalidID ID = 0

var (
	idsByString = map[string]ID{}
	stringsByID = []string{""}
)

// New interns the given string and returns its identifier. Interning is
// monotonic: the first query for a string assigns the next integer, later
// queries return the same value. The id string must not be empty.
func New(id string) ID {
	if id == "" {
		panic("uid: identifier string cannot be empty")
	}
	if existing, ok := idsByString[id]; ok {
		return existing
	}
	if strings.ContainsAny(id, " \t\n\r") {
		logger.L().Warn("identifier contains whitespace", "id", id)
	}
	uid := ID(len(stringsByID))
	idsByString[id] = uid
	stringsByID = append(stringsByID, id)
	return uid
}

// Has reports whether an identifier has already been interned for the string.
func Has(id string) bool {
	_, ok := idsByString[id]
	return ok
}

// FromInt converts a raw integer back to an ID. The second return value is
// false when the integer does not denote an interned identifier.
func FromInt(raw int) (ID, bool) {
	if raw <= 0 || raw >= len(stringsByID) {
		return invalidID, false
	}
	return ID(raw), true
}

// IsValid reports whether the ID denotes an interned identifier.
func (id ID) IsValid() bool {
	return id != invalidID && int(id) < len(stringsByID)
}

// String returns the human-readable form the ID was interned from, or the
// empty string for an invalid ID.
func (id ID) String() string {
	if !id.IsValid() {
		return ""
	}
	return stringsByID[id]
}

// Int exposes the raw integer value, for storage in compact structures.
func (id ID) Int() int {
	return int(id)
}
