// Package domain contains entity without logic, just meta-data
package domain

import (
	"github.com/google/uuid"
)

// ConnID identifies one live transport session. It is what peers see as
// "userId" on the wire.
type ConnID string

// NewConnID assigns a fresh identifier at connect time.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

func (id ConnID) String() string { return string(id) }
