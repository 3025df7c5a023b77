package core

import (
	"encoding/json"

	"github.com/dkeye/Rendezvous/internal/domain"
)

// Event is an inbound event from one connection.
// The set is closed: Join, Signal, Leave and Disconnect.
type Event interface {
	isEvent()
}

type Join struct {
	Room domain.RoomID
}

// Signal carries an opaque negotiation payload (SDP or ICE candidate).
type Signal struct {
	Room domain.RoomID
	Data json.RawMessage
}

type Leave struct {
	Room domain.RoomID
}

// Disconnect is produced by the transport when the connection ends,
// gracefully or not.
type Disconnect struct{}

func (Join) isEvent()       {}
func (Signal) isEvent()     {}
func (Leave) isEvent()      {}
func (Disconnect) isEvent() {}

// HasData reports whether the payload has content. A JSON null counts as absent.
func (s Signal) HasData() bool {
	if len(s.Data) == 0 {
		return false
	}
	return string(s.Data) != "null"
}
