package core

import "github.com/google/uuid"

// NewID returns a random UUID string used for message and tool call identifiers.
func NewID() string {
	return uuid.NewString()
}
