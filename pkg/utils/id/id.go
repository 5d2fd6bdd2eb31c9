// Package id generates lexicographically sortable identifiers.
package id

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string, e.g. "01ARZ3NDEKTSV4RRFFQ69G5FAV".
func NewULID() string {
	return ulid.Make().String()
}

// NewLowerULID returns a lowercase ULID, used where identifiers appear in keys.
func NewLowerULID() string {
	return strings.ToLower(ulid.Make().String())
}
