package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BankStore keeps banks in Redis and optionally writes through to a durable
// backing store. Layout:
//
//	SADD quiz:groups {groupID}
//	HSET quiz:banks:{groupID} {name} {json questions}
//
// With a backing store the Redis keys are a cache. Only a full warm-up from
// the backing store sets the quiz:banks-complete marker; without it ListAll
// reads the backing store. The marker expires before the cached hashes.
type BankStore struct {
	client  *redis.Client
	backing app.BankStore
	ttl     time.Duration
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewBankStore(client *redis.Client, backing app.BankStore, ttl time.Duration) *BankStore {
	return &BankStore{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *BankStore) Put(ctx context.Context, groupID, name string, items []domain.Question) error {
	if s.backing != nil {
		if err := s.backing.Put(ctx, groupID, name, items); err != nil {
			return err
		}
	}
	if err := s.write(ctx, []domain.StoredBank{{GroupID: groupID, Name: name, Items: items}}); err != nil {
		if s.backing != nil {
			// The durable copy is already written; the cache will be refilled.
			_ = s.client.Del(ctx, s.banksKey(groupID), s.completeKey()).Err()
			return nil
		}
		return err
	}
	return nil
}

func (s *BankStore) ListAll(ctx context.Context) ([]domain.StoredBank, error) {
	if s.backing == nil {
		return s.read(ctx)
	}
	if banks, ok := s.cached(ctx); ok {
		return banks, nil
	}

	result, err, _ := s.sf.Do("banks", func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if banks, ok := s.cached(ctx); ok {
			return banks, nil
		}
		banks, err := s.backing.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.warm(ctx, banks); err != nil {
			log.Printf("warm bank cache: %v", err)
		}
		return banks, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.StoredBank), nil
}

// cached returns the cached banks only when a full warm-up is still live.
func (s *BankStore) cached(ctx context.Context) ([]domain.StoredBank, bool) {
	n, err := s.client.Exists(ctx, s.completeKey()).Result()
	if err != nil || n == 0 {
		return nil, false
	}
	banks, err := s.read(ctx)
	if err != nil {
		return nil, false
	}
	return banks, true
}

func (s *BankStore) warm(ctx context.Context, banks []domain.StoredBank) error {
	if err := s.write(ctx, banks); err != nil {
		return err
	}
	return s.client.Set(ctx, s.completeKey(), "1", s.markerTTL()).Err()
}

func (s *BankStore) read(ctx context.Context) ([]domain.StoredBank, error) {
	groups, err := s.client.SMembers(ctx, s.groupsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	sort.Strings(groups)

	var out []domain.StoredBank
	for _, groupID := range groups {
		fields, err := s.client.HGetAll(ctx, s.banksKey(groupID)).Result()
		if err != nil {
			return nil, fmt.Errorf("load banks of %s: %w", groupID, err)
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			var items []domain.Question
			if err := json.Unmarshal([]byte(fields[name]), &items); err != nil {
				return nil, fmt.Errorf("unmarshal bank %s/%s: %w", groupID, name, err)
			}
			out = append(out, domain.StoredBank{GroupID: groupID, Name: name, Items: items})
		}
	}
	return out, nil
}

func (s *BankStore) write(ctx context.Context, banks []domain.StoredBank) error {
	if len(banks) == 0 {
		return nil
	}
	ttl := s.ttlWithJitter()
	pipe := s.client.Pipeline()
	for _, bank := range banks {
		data, err := json.Marshal(bank.Items)
		if err != nil {
			return fmt.Errorf("marshal bank %s: %w", bank.Name, err)
		}
		pipe.SAdd(ctx, s.groupsKey(), bank.GroupID)
		pipe.HSet(ctx, s.banksKey(bank.GroupID), bank.Name, data)
		if ttl > 0 {
			pipe.Expire(ctx, s.banksKey(bank.GroupID), ttl)
			pipe.Expire(ctx, s.groupsKey(), ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write banks: %w", err)
	}
	return nil
}

func (s *BankStore) groupsKey() string {
	return "quiz:groups"
}

func (s *BankStore) completeKey() string {
	return "quiz:banks-complete"
}

func (s *BankStore) banksKey(groupID string) string {
	return "quiz:banks:" + groupID
}

// ttlWithJitter only applies when Redis fronts a backing store.
func (s *BankStore) ttlWithJitter() time.Duration {
	if s.backing == nil || s.ttl <= 0 {
		return 0
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}

// markerTTL is below the shortest hash TTL, so the marker never outlives a
// bank it vouches for.
func (s *BankStore) markerTTL() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	return s.ttl - s.ttl/10
}
