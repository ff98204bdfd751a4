package memory

import (
	"context"
	"sort"
	"sync"

	"channel-quiz-service/internal/domain"
)

type bankKey struct {
	group string
	name  string
}

// BankStore keeps banks in process memory (useful for tests/demos).
type BankStore struct {
	mu    sync.RWMutex
	banks map[bankKey][]domain.Question
}

func NewBankStore(seed ...domain.StoredBank) *BankStore {
	s := &BankStore{banks: make(map[bankKey][]domain.Question)}
	for _, b := range seed {
		s.banks[bankKey{b.GroupID, b.Name}] = domain.CloneQuestions(b.Items)
	}
	return s
}

func (s *BankStore) Put(_ context.Context, groupID, name string, items []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banks[bankKey{groupID, name}] = domain.CloneQuestions(items)
	return nil
}

// ListAll returns stored banks sorted by group then name.
func (s *BankStore) ListAll(_ context.Context) ([]domain.StoredBank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StoredBank, 0, len(s.banks))
	for key, items := range s.banks {
		out = append(out, domain.StoredBank{GroupID: key.group, Name: key.name, Items: domain.CloneQuestions(items)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
