package scheduling

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionCode returns the short code handed to the patient when an
// appointment is first confirmed: the first eight hex characters of a
// fresh UUID, uppercased.
func NewSessionCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
