package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey       = "matching:queue"
	queueEntryKey  = "matching:user:"
	sessionUserKey = "session:user:"
	cooldownKey    = "skip_cooldown:"

	// EventsChannel carries realtime envelopes between instances.
	EventsChannel = "realtime:events"
)

// Ephemeral is the TTL-backed keyed store: the waiting pool, in-session
// markers, skip cooldowns and the cross-instance event bus.
type Ephemeral interface {
	EnqueueEntry(ctx context.Context, entry models.QueueEntry, ttl time.Duration) (bool, error)
	GetQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error)
	RemoveQueueEntry(ctx context.Context, userID string) error
	QueuePosition(ctx context.Context, userID string) (int64, error)
	ListQueueEntries(ctx context.Context) ([]models.QueueEntry, error)
	ClaimQueueEntries(ctx context.Context, userA, userB string) ([]models.QueueEntry, error)

	GetSessionMarker(ctx context.Context, userID string) (string, error)
	SetSessionMarkers(ctx context.Context, sessionID, userA, userB string, ttl time.Duration) (bool, error)
	ClearSessionMarkers(ctx context.Context, sessionID string, userIDs ...string) error

	SetSkipCooldown(ctx context.Context, sessionID, userID string, startedAt time.Time, ttl time.Duration) (bool, error)
	ClearSkipCooldown(ctx context.Context, sessionID, userID string) error
	GetSkipCooldown(ctx context.Context, sessionID, userID string) (time.Time, bool, error)

	PublishEvent(ctx context.Context, env models.Envelope) error
	SubscribeEvents(ctx context.Context) *redis.PubSub
}

func entryKey(userID string) string  { return queueEntryKey + userID }
func markerKey(userID string) string { return sessionUserKey + userID }
func skipKey(sessionID, userID string) string {
	return cooldownKey + sessionID + ":" + userID
}

// KEYS[1] entry key, KEYS[2] pool; ARGV[1] entry JSON, ARGV[2] ttl ms,
// ARGV[3] rank score, ARGV[4] user id.
var enqueueScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
  return 1
end
return 0
`)

// KEYS[1], KEYS[2] entry keys, KEYS[3] pool; ARGV[1], ARGV[2] user ids.
// Removes both entries only if both are still present.
var claimScript = redis.NewScript(`
local a = redis.call('GET', KEYS[1])
local b = redis.call('GET', KEYS[2])
if not a or not b then
  return false
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[1], ARGV[2])
return {a, b}
`)

// KEYS[1], KEYS[2] marker keys; ARGV[1] session id, ARGV[2] ttl ms.
var markScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
return 1
`)

// KEYS marker keys; ARGV[1] session id. Deletes only markers that still
// point at this session.
var unmarkScript = redis.NewScript(`
local n = 0
for i, k in ipairs(KEYS) do
  if redis.call('GET', k) == ARGV[1] then
    n = n + redis.call('DEL', k)
  end
end
return n
`)

// EnqueueEntry inserts entry unless the user already has one. It reports
// whether the entry was inserted.
func (s *Service) EnqueueEntry(ctx context.Context, entry models.QueueEntry, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal queue entry: %w", err)
	}
	n, err := enqueueScript.Run(ctx, s.Redis,
		[]string{entryKey(entry.UserID), queueKey},
		string(payload), ttl.Milliseconds(), entry.RankScore, entry.UserID,
	).Int()
	if err != nil {
		return false, apperr.Transient(fmt.Errorf("enqueue %s: %w", entry.UserID, err))
	}
	return n == 1, nil
}

// GetQueueEntry returns nil, nil when the user is not waiting.
func (s *Service) GetQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	raw, err := s.Redis.Get(ctx, entryKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient(err)
	}
	var entry models.QueueEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode queue entry for %s: %w", userID, err)
	}
	return &entry, nil
}

// RemoveQueueEntry deletes the user's entry and pool membership. Removing a
// missing entry is not an error.
func (s *Service) RemoveQueueEntry(ctx context.Context, userID string) error {
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKey(userID))
		pipe.ZRem(ctx, queueKey, userID)
		return nil
	})
	return apperr.Transient(err)
}

// QueuePosition returns the 1-based rank of userID in the pool, or 0 if absent.
func (s *Service) QueuePosition(ctx context.Context, userID string) (int64, error) {
	rank, err := s.Redis.ZRank(ctx, queueKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Transient(err)
	}
	return rank + 1, nil
}

// ListQueueEntries returns live entries in rank order. Pool members whose
// entry key has expired are pruned on the way.
func (s *Service) ListQueueEntries(ctx context.Context) ([]models.QueueEntry, error) {
	members, err := s.Redis.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, apperr.Transient(err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = entryKey(m)
	}
	values, err := s.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Transient(err)
	}

	entries := make([]models.QueueEntry, 0, len(members))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			stale = append(stale, members[i])
			continue
		}
		entries = append(entries, entry)
	}
	if len(stale) > 0 {
		if err := s.Redis.ZRem(ctx, queueKey, stale...).Err(); err != nil {
			return nil, apperr.Transient(err)
		}
	}
	return entries, nil
}

// ClaimQueueEntries atomically removes both users from the pool. It returns
// nil, nil when either entry is already gone, meaning another matcher won.
func (s *Service) ClaimQueueEntries(ctx context.Context, userA, userB string) ([]models.QueueEntry, error) {
	res, err := claimScript.Run(ctx, s.Redis,
		[]string{entryKey(userA), entryKey(userB), queueKey},
		userA, userB,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("claim %s/%s: %w", userA, userB, err))
	}

	entries := make([]models.QueueEntry, 0, len(res))
	for _, raw := range res {
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode claimed entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetSessionMarker returns the session the user is in, or "".
func (s *Service) GetSessionMarker(ctx context.Context, userID string) (string, error) {
	id, err := s.Redis.Get(ctx, markerKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Transient(err)
	}
	return id, nil
}

// SetSessionMarkers marks both users as in sessionID. It writes nothing and
// returns false if either user already carries a marker.
func (s *Service) SetSessionMarkers(ctx context.Context, sessionID, userA, userB string, ttl time.Duration) (bool, error) {
	n, err := markScript.Run(ctx, s.Redis,
		[]string{markerKey(userA), markerKey(userB)},
		sessionID, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, apperr.Transient(fmt.Errorf("mark session %s: %w", sessionID, err))
	}
	return n == 1, nil
}

// ClearSessionMarkers removes the markers of userIDs that still reference
// sessionID. Markers pointing elsewhere are left alone.
func (s *Service) ClearSessionMarkers(ctx context.Context, sessionID string, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = markerKey(id)
	}
	if err := unmarkScript.Run(ctx, s.Redis, keys, sessionID).Err(); err != nil {
		return apperr.Transient(fmt.Errorf("clear markers for %s: %w", sessionID, err))
	}
	return nil
}

// SetSkipCooldown records that userID may not skip sessionID again for ttl
// after startedAt. It returns false, without touching the existing expiry,
// if a cooldown is already running.
func (s *Service) SetSkipCooldown(ctx context.Context, sessionID, userID string, startedAt time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	until := startedAt.Add(ttl)
	ok, err := s.Redis.SetNX(ctx, skipKey(sessionID, userID), strconv.FormatInt(until.UnixMilli(), 10), ttl).Result()
	if err != nil {
		return false, apperr.Transient(err)
	}
	return ok, nil
}

// ClearSkipCooldown drops a running cooldown.
func (s *Service) ClearSkipCooldown(ctx context.Context, sessionID, userID string) error {
	if err := s.Redis.Del(ctx, skipKey(sessionID, userID)).Err(); err != nil {
		return apperr.Transient(err)
	}
	return nil
}

// GetSkipCooldown returns the cooldown expiry and whether one is active.
func (s *Service) GetSkipCooldown(ctx context.Context, sessionID, userID string) (time.Time, bool, error) {
	raw, err := s.Redis.Get(ctx, skipKey(sessionID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperr.Transient(err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode skip cooldown: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// PublishEvent fans env out to every instance subscribed to EventsChannel.
func (s *Service) PublishEvent(ctx context.Context, env models.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return apperr.Transient(s.Redis.Publish(ctx, EventsChannel, payload).Err())
}

// SubscribeEvents subscribes to EventsChannel. The caller closes the PubSub.
func (s *Service) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, EventsChannel)
}
