package domain

import "unicode/utf8"

const (
	// RoomCapacity is the number of members that makes a room ready.
	RoomCapacity = 2
	MaxRoomIDLen = 64
)

type RoomID string

func (id RoomID) String() string { return string(id) }

// ParseRoomID validates a caller supplied room identifier.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	if !utf8.ValidString(raw) {
		return "", ErrRoomIDInvalid
	}
	return RoomID(raw), nil
}
