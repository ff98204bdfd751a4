package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"channel-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions run in-process, so the live *app.Session values stay in a local map.
//   - A SETNX claim key per channel keeps two instances from running a quiz
//     in the same channel. The owner refreshes the claim every ttl/3; it
//     expires after ttl only if the instance dies.
//   - If Redis is unreachable the store degrades to local-only claims.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.Mutex
	sessions map[string]*app.Session
	keepers  map[string]chan struct{}
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
		keepers:  make(map[string]chan struct{}),
	}
}

func (s *SessionStore) Insert(channelID string, session *app.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[channelID]; ok {
		return false
	}

	claimed, err := s.client.SetNX(context.Background(), s.key(channelID), session.ID(), s.ttl).Result()
	if err != nil {
		log.Printf("redis claim for channel %s failed, using local claim: %v", channelID, err)
	} else if !claimed {
		return false
	}

	s.sessions[channelID] = session
	if err == nil && s.ttl > 0 {
		stop := make(chan struct{})
		s.keepers[channelID] = stop
		go s.keepClaim(channelID, session.ID(), stop)
	}
	return true
}

func (s *SessionStore) Get(channelID string) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[channelID]
	return session, ok
}

func (s *SessionStore) Release(channelID string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[channelID]
	if !ok || current != session {
		return
	}
	delete(s.sessions, channelID)
	if stop, ok := s.keepers[channelID]; ok {
		close(stop)
		delete(s.keepers, channelID)
	}

	// Only drop the claim if it still names this session.
	ctx := context.Background()
	if owner, err := s.client.Get(ctx, s.key(channelID)).Result(); err == nil && owner == session.ID() {
		_ = s.client.Del(ctx, s.key(channelID)).Err()
	}
}

// keepClaim extends the channel claim while this instance still owns it.
func (s *SessionStore) keepClaim(channelID, sessionID string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			owner, err := s.client.Get(ctx, s.key(channelID)).Result()
			if err != nil {
				log.Printf("refresh claim for channel %s: %v", channelID, err)
				continue
			}
			if owner != sessionID {
				return
			}
			if err := s.client.Expire(ctx, s.key(channelID), s.ttl).Err(); err != nil {
				log.Printf("refresh claim for channel %s: %v", channelID, err)
			}
		}
	}
}

func (s *SessionStore) key(channelID string) string {
	return "quiz:session:" + channelID
}
