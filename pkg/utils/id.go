package utils

import "github.com/google/uuid"

// GenID returns a new opaque record id. Store backends use it for
// internal keys; it never replaces provider-assigned message ids.
func GenID() string {
	return uuid.NewString()
}
