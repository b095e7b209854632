package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

var _ app.SessionRepository = (*SessionStore)(nil)

const (
	keyPrefix        = "livequiz:"
	maxUpdateRetries = 5
)

// SessionStore keeps each session as one JSON document.
//
// Keys:
//
//	livequiz:session:{sessionID}      session JSON
//	livequiz:quiz:{quizID}:sessions   set of session ids started from the quiz
//	livequiz:owner:{ownerID}:sessions set of session ids started by the owner
//	livequiz:players                  hash player id -> session id
//
// Update serializes writers of a session in-process with a keyed lock and uses
// WATCH so a writer in another process forces a retry instead of a lost update.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	locks  *keyedMutex
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		locks:  newKeyedMutex(),
	}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	created, err := s.client.SetNX(ctx, sessionKey(session.ID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return domain.Conflictf("session %s already exists", session.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, quizSessionsKey(session.QuizID), session.ID)
		s.expire(ctx, pipe, quizSessionsKey(session.QuizID))
		pipe.SAdd(ctx, ownerSessionsKey(session.OwnerID), session.ID)
		s.expire(ctx, pipe, ownerSessionsKey(session.OwnerID))
		indexPlayers(ctx, pipe, session)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.read(ctx, s.client, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) read(ctx context.Context, c getter, sessionID string) (*domain.Session, error) {
	raw, err := c.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (*domain.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	key := sessionKey(sessionID)
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var next *domain.Session
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.read(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if err := fn(current); err != nil {
				return err
			}
			current.Revision++
			raw, err := json.Marshal(current)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, s.ttl)
				indexPlayers(ctx, pipe, current)
				return nil
			})
			if err != nil {
				return err
			}
			next = current
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("update session %s: too many concurrent writers", sessionID)
}

func (s *SessionStore) SessionIDForPlayer(ctx context.Context, playerID string) (string, error) {
	sessionID, err := s.client.HGet(ctx, playersKey, playerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrPlayerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup player: %w", err)
	}
	return sessionID, nil
}

func (s *SessionStore) ListByQuiz(ctx context.Context, quizID string) ([]*domain.Session, error) {
	return s.listSet(ctx, quizSessionsKey(quizID))
}

func (s *SessionStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	return s.listSet(ctx, ownerSessionsKey(ownerID))
}

// listSet loads the sessions named in an index set, skipping ids whose document expired.
func (s *SessionStore) listSet(ctx context.Context, setKey string) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*domain.Session, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// Clear deletes every key owned by the store.
func (s *SessionStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (s *SessionStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func decodeSession(raw []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.Responses == nil {
		session.Responses = make(map[string][]domain.PlayerResponse)
	}
	if session.RoundStarts == nil {
		session.RoundStarts = make(map[string]time.Time)
	}
	return &session, nil
}

func indexPlayers(ctx context.Context, pipe redis.Pipeliner, session *domain.Session) {
	if len(session.Players) == 0 {
		return
	}
	values := make([]any, 0, 2*len(session.Players))
	for _, p := range session.Players {
		values = append(values, p.ID, session.ID)
	}
	pipe.HSet(ctx, playersKey, values...)
}

const playersKey = keyPrefix + "players"

func sessionKey(sessionID string) string {
	return keyPrefix + "session:" + sessionID
}

func quizSessionsKey(quizID string) string {
	return keyPrefix + "quiz:" + quizID + ":sessions"
}

func ownerSessionsKey(ownerID string) string {
	return keyPrefix + "owner:" + ownerID + ":sessions"
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
