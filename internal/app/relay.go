package app

import (
	"encoding/json"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Relay forwards opaque signal payloads between room members.
// It keeps no state of its own; membership is read at delivery time.
type Relay struct {
	Rooms   *RoomRegistry
	Conns   *Registry
	Metrics *metrics.Metrics
}

func NewRelay(rooms *RoomRegistry, conns *Registry, m *metrics.Metrics) *Relay {
	return &Relay{Rooms: rooms, Conns: conns, Metrics: m}
}

// Relay delivers data to every member of room except sender. An unknown room
// or a sender outside the room yields an empty fan-out.
func (r *Relay) Relay(room domain.RoomID, sender domain.ConnID, data json.RawMessage) core.PublishResult {
	res := core.PublishResult{}
	n := core.SignalFrom(sender, data)
	for _, dst := range r.Rooms.MembersExcept(room, sender) {
		c, ok := r.Conns.Get(dst)
		if !ok {
			res.Dropped = append(res.Dropped, dst)
			continue
		}
		if err := c.TrySend(n); err != nil {
			log.Warn().Err(err).Str("module", "app.relay").Str("room", string(room)).Str("dst", string(dst)).Msg("signal dropped")
			res.Dropped = append(res.Dropped, dst)
			continue
		}
		res.SentTo++
	}
	r.Metrics.Relayed(res.SentTo, len(res.Dropped))
	log.Debug().Str("module", "app.relay").Str("room", string(room)).Str("from", string(sender)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("relay result")
	return res
}
