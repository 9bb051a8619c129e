package chathub

import (
	"context"
	"encoding/json"
	"sync"

	"pairlive/backend/internal/media"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/session"

	"github.com/stretchr/testify/mock"
)

// MockMatcher is a testify mock of Matcher.
type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Join(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMatcher) Leave(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockMatcher) Status(ctx context.Context, userID string) (models.QueueStatus, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.QueueStatus), args.Error(1)
}

func (m *MockMatcher) IsQueued(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMatcher) FindMatch(ctx context.Context, userID string) (*models.QueueEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}

func (m *MockMatcher) Claim(ctx context.Context, userID, partnerID string) ([]models.QueueEntry, error) {
	args := m.Called(ctx, userID, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QueueEntry), args.Error(1)
}

func (m *MockMatcher) Restore(ctx context.Context, entries []models.QueueEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

// MockSessions is a testify mock of Sessions.
type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Create(ctx context.Context, userA, userB string) (*models.Session, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockSessions) Skip(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockSessions) End(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockSessions) Disconnect(ctx context.Context, sessionID, userID string) (*models.Session, bool, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Session), args.Bool(1), args.Error(2)
}

func (m *MockSessions) SendGift(ctx context.Context, sessionID, senderID, receiverID, giftType string, amount int64) (*session.GiftResult, error) {
	args := m.Called(ctx, sessionID, senderID, receiverID, giftType, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.GiftResult), args.Error(1)
}

func (m *MockSessions) ActiveSession(ctx context.Context, userID string) (*session.Active, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Active), args.Error(1)
}

func (m *MockSessions) MediaToken(ctx context.Context, sessionID, userID string) (media.Credential, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Get(0).(media.Credential), args.Error(1)
}

// recordingEmitter captures every envelope.
type recordingEmitter struct {
	mu   sync.Mutex
	envs []models.Envelope
}

func (r *recordingEmitter) Emit(_ context.Context, env models.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingEmitter) all() []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Envelope(nil), r.envs...)
}

// ofType returns the envelopes carrying an event of eventType.
func (r *recordingEmitter) ofType(eventType string) []models.Envelope {
	var out []models.Envelope
	for _, env := range r.all() {
		if env.Event.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

// MockClient is an in-memory Client.
type MockClient struct {
	userID string
	send   chan models.Event
	once   sync.Once
	closed chan struct{}
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID: userID,
		send:   make(chan models.Event, 10),
		closed: make(chan struct{}),
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.send }
func (c *MockClient) Run()                                {}
func (c *MockClient) Close()                              { c.once.Do(func() { close(c.closed) }) }

func (c *MockClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func decode[T any](t interface{ Fatalf(string, ...any) }, raw json.RawMessage) T {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return v
}
