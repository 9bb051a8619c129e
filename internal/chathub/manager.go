package chathub

import (
	"context"
	"sync"

	"pairlive/backend/internal/metrics"
	"pairlive/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broker fans envelopes out to every instance, including this one.
type Broker interface {
	PublishEvent(ctx context.Context, env models.Envelope) error
	SubscribeEvents(ctx context.Context) *redis.PubSub
}

// ManagerService is the realtime hub. It owns the local connections and
// session rooms; only the Run goroutine mutates them.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client
	Rooms   map[string]map[string]struct{}
	// superseded holds connections replaced by a newer one for the same
	// user until their unregister arrives.
	superseded map[Client]struct{}
	stopped    chan struct{}

	RegisterCh   chan Client
	UnregisterCh chan Client
	DeliverCh    chan models.Envelope

	// Broker is nil for a single-instance hub; Emit then delivers locally.
	Broker Broker
	Logger *zap.Logger
}

// NewManagerService creates a hub. broker may be nil.
func NewManagerService(broker Broker, logger *zap.Logger) *ManagerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManagerService{
		Clients:      make(map[string]Client),
		Rooms:        make(map[string]map[string]struct{}),
		superseded:   make(map[Client]struct{}),
		stopped:      make(chan struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		DeliverCh:    make(chan models.Envelope, 256),
		Broker:       broker,
		Logger:       logger,
	}
}

// Run processes registrations and deliveries until ctx is done. With a
// Broker, call StartPubSubListener first so remote envelopes reach DeliverCh.
func (m *ManagerService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.stopped)
			m.closeAll()
			return
		case c := <-m.RegisterCh:
			m.register(c)
		case c := <-m.UnregisterCh:
			m.unregister(c)
		case env := <-m.DeliverCh:
			m.deliver(env)
		}
	}
}

// Emit routes env to its recipients, through the broker when there is one.
func (m *ManagerService) Emit(ctx context.Context, env models.Envelope) error {
	if m.Broker != nil {
		return m.Broker.PublishEvent(ctx, env)
	}
	select {
	case m.DeliverCh <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister hands c to the Run loop. It returns without effect once Run
// has exited, since closeAll already released every connection.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.stopped:
	}
}

// IsCurrent reports whether c is the registered connection for its user.
func (m *ManagerService) IsCurrent(c Client) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Clients[c.GetUserID()] == c
}

// Superseded reports whether c was replaced by a newer connection for the
// same user. Such a connection must not tear down the user's session; one
// that was dropped or closed must.
func (m *ManagerService) Superseded(c Client) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.superseded[c]
	return ok
}

// ClientCount returns the number of local connections.
func (m *ManagerService) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients)
}

// RoomMembers returns the local members of room.
func (m *ManagerService) RoomMembers(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make([]string, 0, len(m.Rooms[room]))
	for id := range m.Rooms[room] {
		members = append(members, id)
	}
	return members
}

func (m *ManagerService) register(c Client) {
	m.mu.Lock()
	old, replaced := m.Clients[c.GetUserID()]
	m.Clients[c.GetUserID()] = c
	if replaced && old != c {
		m.superseded[old] = struct{}{}
	}
	m.mu.Unlock()

	if replaced && old != c {
		// A newer connection for the same user takes over.
		old.Close()
	} else {
		metrics.ConnectedClients.Inc()
	}
	m.Logger.Debug("client registered", zap.String("user_id", c.GetUserID()), zap.Bool("replaced", replaced))
}

func (m *ManagerService) unregister(c Client) {
	m.mu.Lock()
	if m.Clients[c.GetUserID()] != c {
		delete(m.superseded, c)
		m.mu.Unlock()
		return
	}
	delete(m.Clients, c.GetUserID())
	for room, members := range m.Rooms {
		delete(members, c.GetUserID())
		if len(members) == 0 {
			delete(m.Rooms, room)
		}
	}
	m.mu.Unlock()

	c.Close()
	metrics.ConnectedClients.Dec()
	m.Logger.Debug("client unregistered", zap.String("user_id", c.GetUserID()))
}

func (m *ManagerService) closeAll() {
	m.mu.Lock()
	clients := m.Clients
	m.Clients = make(map[string]Client)
	m.Rooms = make(map[string]map[string]struct{})
	m.superseded = make(map[Client]struct{})
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
		metrics.ConnectedClients.Dec()
	}
}

func (m *ManagerService) deliver(env models.Envelope) {
	var targets []Client

	m.mu.Lock()
	if env.Room != "" && len(env.Join) > 0 {
		members, ok := m.Rooms[env.Room]
		for _, id := range env.Join {
			if _, local := m.Clients[id]; !local {
				continue
			}
			if !ok {
				members = make(map[string]struct{})
				m.Rooms[env.Room] = members
				ok = true
			}
			members[id] = struct{}{}
		}
	}
	if env.Event.Type != "" {
		if env.UserID != "" {
			if c, ok := m.Clients[env.UserID]; ok {
				targets = append(targets, c)
			}
		} else if env.Room != "" {
			for id := range m.Rooms[env.Room] {
				if id == env.Except {
					continue
				}
				if c, ok := m.Clients[id]; ok {
					targets = append(targets, c)
				}
			}
		}
	}
	if env.CloseRoom && env.Room != "" {
		delete(m.Rooms, env.Room)
	}
	m.mu.Unlock()

	for _, c := range targets {
		select {
		case c.GetSendChannel() <- env.Event:
		default:
			// Slow consumer; drop the connection rather than block the hub.
			m.Logger.Warn("send buffer full, dropping client", zap.String("user_id", c.GetUserID()))
			m.unregister(c)
		}
	}
}
