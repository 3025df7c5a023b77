package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
)

// Inbound event names.
const (
	typeJoinRoom  = "join-room"
	typeSignal    = "signal"
	typeLeaveRoom = "leave-room"
)

type inbound struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

// decodeEvent turns one text frame into a core event. The signal data is
// kept as raw bytes and never inspected.
func decodeEvent(frame []byte) (core.Event, error) {
	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}

	switch in.Type {
	case typeJoinRoom:
		room, err := domain.ParseRoomID(in.RoomID)
		if err != nil {
			return nil, err
		}
		return core.Join{Room: room}, nil
	case typeSignal:
		room, err := domain.ParseRoomID(in.RoomID)
		if err != nil {
			return nil, err
		}
		return core.Signal{Room: room, Data: in.Data}, nil
	case typeLeaveRoom:
		room, err := domain.ParseRoomID(in.RoomID)
		if err != nil {
			return nil, err
		}
		return core.Leave{Room: room}, nil
	default:
		return nil, fmt.Errorf("%q: %w", in.Type, domain.ErrUnknownEvent)
	}
}
