package app

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connection is one live signaling session and the rooms it belongs to.
type Connection struct {
	ID          domain.ConnID
	Signal      core.SignalConnection
	ClientToken string

	// seq serializes the inbound events of this connection so that the room
	// table and the room set below change together.
	seq    sync.Mutex
	closed bool // guarded by seq

	mu    sync.Mutex
	rooms []domain.RoomID
}

// Lock takes the per-connection event lock.
func (c *Connection) Lock()   { c.seq.Lock() }
func (c *Connection) Unlock() { c.seq.Unlock() }

// MarkClosed and Closed must be called with the event lock held.
func (c *Connection) MarkClosed()  { c.closed = true }
func (c *Connection) Closed() bool { return c.closed }

func (c *Connection) AddRoom(id domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.rooms, id) {
		c.rooms = append(c.rooms, id)
	}
}

func (c *Connection) RemoveRoom(id domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = slices.DeleteFunc(c.rooms, func(r domain.RoomID) bool { return r == id })
}

func (c *Connection) InRoom(id domain.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.rooms, id)
}

// Rooms returns the joined rooms in join order.
func (c *Connection) Rooms() []domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rooms)
}

// TrySend delivers to the transport, treating a missing transport as closed.
func (c *Connection) TrySend(n core.Notification) error {
	if c.Signal == nil {
		return core.ErrConnClosed
	}
	return c.Signal.TrySend(n)
}

// Registry tracks every live connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*Connection),
	}
}

func (r *Registry) Register(id domain.ConnID, sig core.SignalConnection, clientToken string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return nil, fmt.Errorf("register %s: %w", id, domain.ErrDuplicateConnection)
	}
	c := &Connection{ID: id, Signal: sig, ClientToken: clientToken}
	r.conns[id] = c
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("client", clientToken).Msg("registered connection")
	return c, nil
}

// Unregister removes the connection and returns the rooms it was in.
func (r *Registry) Unregister(id domain.ConnID) []domain.RoomID {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	rooms := c.Rooms()
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Int("rooms", len(rooms)).Msg("unregistered connection")
	return rooms
}

func (r *Registry) Get(id domain.ConnID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every transport; read loops then run the usual disconnect.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		if c.Signal != nil {
			c.Signal.Close()
		}
	}
	log.Info().Str("module", "app.registry").Int("count", len(conns)).Msg("closed all connections")
}
