package orch

import (
	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) join(c *app.Connection, room domain.RoomID) error {
	// Both room sets change under the room lock so a concurrent rejoin by an
	// evicted member cannot interleave with the bookkeeping.
	res, err := o.Rooms.JoinWith(room, c.ID, func(evicted []domain.ConnID) {
		c.AddRoom(room)
		for _, id := range evicted {
			if ec, ok := o.Registry.Get(id); ok {
				ec.RemoveRoom(room)
			}
		}
	})
	if err != nil {
		return err
	}

	// A connection sits in one room at a time: joining elsewhere moves it.
	for _, prev := range c.Rooms() {
		if prev != room {
			log.Info().Str("module", "orch").Str("conn", string(c.ID)).Str("from_room", string(prev)).Str("room", string(room)).Msg("moving to another room")
			o.leave(c, prev)
		}
	}

	for _, ev := range res.Evicted {
		o.evict(ev, room, res.Members, c.ID)
	}
	for _, m := range res.Members {
		if m != c.ID {
			o.notify(m, core.UserJoined(c.ID))
		}
	}
	if res.BecameReady {
		for _, m := range res.Members {
			o.notify(m, core.Ready(room))
		}
		log.Info().Str("module", "orch").Str("room", string(room)).Msg("room ready")
	}
	return nil
}

// evict tells the pushed-out member and the members that stay behind.
func (o *Orchestrator) evict(evicted domain.ConnID, room domain.RoomID, members []domain.ConnID, joiner domain.ConnID) {
	o.notify(evicted, core.Error(core.CodeEvicted, "evicted from room "+string(room)))
	for _, m := range members {
		if m != joiner {
			o.notify(m, core.UserLeft(evicted))
		}
	}
	o.Metrics.Left()
}

func (o *Orchestrator) signal(c *app.Connection, s core.Signal) error {
	if !s.HasData() {
		return domain.ErrMissingPayload
	}
	res := o.Relay.Relay(s.Room, c.ID, s.Data)
	for _, dst := range res.Dropped {
		if dc, ok := o.Registry.Get(dst); ok {
			o.onSlow(dc)
		}
	}
	return nil
}

func (o *Orchestrator) leave(c *app.Connection, room domain.RoomID) {
	res := o.Rooms.Leave(room, c.ID)
	c.RemoveRoom(room)
	if !res.Removed || res.Deleted {
		return
	}
	o.Metrics.Left()
	for _, m := range res.Remaining {
		o.notify(m, core.UserLeft(c.ID))
	}
}

func (o *Orchestrator) disconnect(c *app.Connection) {
	rooms := o.Registry.Unregister(c.ID)
	c.MarkClosed()
	for _, room := range rooms {
		o.leave(c, room)
	}
	o.Metrics.ConnClosed()
	log.Info().Str("module", "orch").Str("conn", string(c.ID)).Int("rooms", len(rooms)).Msg("disconnected")
}
