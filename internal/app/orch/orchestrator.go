package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the session coordinator: it turns inbound events into
// registry changes and outbound notifications.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomRegistry
	Relay    *app.Relay
	Policy   app.Policy
	Metrics  *metrics.Metrics
}

func New(reg *app.Registry, rooms *app.RoomRegistry, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Relay:    app.NewRelay(rooms, reg, m),
		Policy:   policy,
		Metrics:  m,
	}
}

// Connect registers a new transport session. It emits nothing.
func (o *Orchestrator) Connect(id domain.ConnID, sig core.SignalConnection, clientToken string) (*app.Connection, error) {
	c, err := o.Registry.Register(id, sig, clientToken)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("connect refused")
		return nil, err
	}
	o.Metrics.ConnOpened()
	log.Info().Str("module", "orch").Str("conn", string(id)).Msg("connected")
	return c, nil
}

// Handle runs one inbound event for connection id. Events of the same
// connection are applied one at a time.
func (o *Orchestrator) Handle(id domain.ConnID, ev core.Event) error {
	c, ok := o.Registry.Get(id)
	if !ok {
		if _, isDisconnect := ev.(core.Disconnect); isDisconnect {
			return nil
		}
		return fmt.Errorf("handle %s: %w", id, domain.ErrUnknownConnection)
	}

	c.Lock()
	defer c.Unlock()
	if c.Closed() {
		if _, isDisconnect := ev.(core.Disconnect); isDisconnect {
			return nil
		}
		return fmt.Errorf("handle %s: %w", id, domain.ErrUnknownConnection)
	}

	switch ev := ev.(type) {
	case core.Join:
		return o.join(c, ev.Room)
	case core.Signal:
		return o.signal(c, ev)
	case core.Leave:
		o.leave(c, ev.Room)
		return nil
	case core.Disconnect:
		o.disconnect(c)
		return nil
	default:
		return fmt.Errorf("handle %T: %w", ev, domain.ErrUnknownEvent)
	}
}

// notify pushes n to one connection and applies the back-pressure policy
// when the outbox refuses it.
func (o *Orchestrator) notify(to domain.ConnID, n core.Notification) {
	c, ok := o.Registry.Get(to)
	if !ok {
		return
	}
	if err := c.TrySend(n); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(to)).Str("type", string(n.Type)).Msg("notification dropped")
		if errors.Is(err, core.ErrBackpressure) {
			o.onSlow(c)
		}
	}
}

func (o *Orchestrator) onSlow(c *app.Connection) {
	if o.Policy == nil || o.Policy.OnBackPressure() != app.KickMember {
		return
	}
	log.Warn().Str("module", "orch").Str("conn", string(c.ID)).Msg("kicking slow consumer")
	// Closing the transport ends its read loop, which then disconnects it.
	if c.Signal != nil {
		c.Signal.Close()
	}
}
