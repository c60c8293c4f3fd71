package realtime

import (
	"log/slog"
	"sync"
)

// Registry tracks every live connection plus which connections are bound to
// which room. Rooms are named after usernames; a room normally holds a single
// connection but is modeled as a set so multiple devices per user remain
// possible.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	logger  *slog.Logger
}

// NewRegistry constructs an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a freshly accepted connection. It receives broadcasts from
// this point on, even before it binds to an identity.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes the connection entirely, including any room binding.
func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, client)
	for room, clients := range r.rooms {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(r.rooms, room)
			}
		}
	}
}

// Bind associates the client with the room, superseding any previous binding
// for that room. Earlier connections are detached but not closed; they simply
// stop receiving room-addressed events.
func (r *Registry) Bind(room string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room] = map[*Client]struct{}{client: {}}
}

// Unbind detaches the client from the room if it is still bound there.
func (r *Registry) Unbind(room string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(r.rooms, room)
	}
}

// Online reports whether at least one connection is bound to the room.
func (r *Registry) Online(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room]) > 0
}

// EmitTo delivers the event to every connection bound to the room. Delivery
// is best-effort: a slow client is skipped and logged, never blocked on.
func (r *Registry) EmitTo(room string, event Event) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.rooms[room]))
	for client := range r.rooms[room] {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		if !client.Send(event) {
			r.logger.Warn("dropped room event", "room", room, "event", event.Name, "client", client.ID())
		}
	}
}

// EmitAll delivers the event to every live connection, bound or not.
func (r *Registry) EmitAll(event Event) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		if !client.Send(event) {
			r.logger.Warn("dropped broadcast event", "event", event.Name, "client", client.ID())
		}
	}
}

// ClientCount returns the number of live connections.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
