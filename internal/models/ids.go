package models

import (
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes the name based ids of this service.
var idNamespace = uuid.MustParse("5b0e4f5c-3f7a-4c55-9d7e-2a61c6a1f0b3")

// DeterministicID derives a stable id from its parts, so a redelivered event
// maps onto the documents it already produced.
func DeterministicID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "|"))).String()
}

// NewEventID is used when the trigger supplies no delivery key.
func NewEventID() string {
	return uuid.NewString()
}
