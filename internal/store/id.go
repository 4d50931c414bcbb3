package store

import "github.com/google/uuid"

// newID mints a 128-bit opaque task/message identifier (spec §3).
func newID() string {
	return uuid.NewString()
}
