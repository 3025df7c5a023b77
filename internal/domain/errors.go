package domain

import "errors"

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
	ErrRoomIDInvalid = errors.New("room id is not valid utf-8")

	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyMember       = errors.New("already a member of the room")
	ErrNotMember           = errors.New("not a member of the room")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrMissingPayload      = errors.New("signal data missing")
	ErrUnknownEvent        = errors.New("unknown event")
)
