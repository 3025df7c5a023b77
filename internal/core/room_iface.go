package core

import (
	"github.com/dkeye/Rendezvous/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}

// RoomSnapshot lists members in join order; the first one is the initiator.
type RoomSnapshot struct {
	ID      domain.RoomID   `json:"roomId"`
	Members []domain.ConnID `json:"members"`
	Ready   bool            `json:"ready"`
}
