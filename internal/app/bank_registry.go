package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"channel-quiz-service/internal/domain"
)

// SampleBankName is the bank every group starts with.
const SampleBankName = "sample"

// BankStore durably keeps banks keyed by (group, name).
type BankStore interface {
	Put(ctx context.Context, groupID, name string, items []domain.Question) error
	ListAll(ctx context.Context) ([]domain.StoredBank, error)
}

type groupBanks struct {
	names []string
	banks map[string][]domain.Question
	last  string
}

// BankRegistry holds every group's banks in memory and writes through to a BankStore.
type BankRegistry struct {
	store BankStore

	mu     sync.RWMutex
	groups map[string]*groupBanks
}

func NewBankRegistry(store BankStore) *BankRegistry {
	return &BankRegistry{
		store:  store,
		groups: make(map[string]*groupBanks),
	}
}

// EnsureGroup seeds a group that has no banks with the sample bank.
func (r *BankRegistry) EnsureGroup(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(groupID)
}

func (r *BankRegistry) ensureLocked(groupID string) *groupBanks {
	g, ok := r.groups[groupID]
	if !ok {
		g = &groupBanks{banks: make(map[string][]domain.Question)}
		r.groups[groupID] = g
	}
	if len(g.banks) == 0 {
		g.setLocked(SampleBankName, SampleBank())
		g.last = SampleBankName
	}
	return g
}

func (g *groupBanks) setLocked(name string, items []domain.Question) {
	if _, ok := g.banks[name]; !ok {
		g.names = append(g.names, name)
	}
	g.banks[name] = items
}

// List returns bank names and sizes in insertion order.
func (r *BankRegistry) List(groupID string) []domain.BankSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.ensureLocked(groupID)
	out := make([]domain.BankSummary, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, domain.BankSummary{Name: name, Size: len(g.banks[name])})
	}
	return out
}

// Get returns a copy of a bank.
func (r *BankRegistry) Get(groupID, name string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return nil, false
	}
	items, ok := g.banks[name]
	if !ok {
		return nil, false
	}
	return domain.CloneQuestions(items), true
}

// Put replaces a bank wholesale, marks it last used and persists it.
// The in-memory bank is kept even when persistence fails.
func (r *BankRegistry) Put(ctx context.Context, groupID, name string, items []domain.Question) error {
	items = domain.CloneQuestions(items)

	r.mu.Lock()
	g := r.ensureLocked(groupID)
	g.setLocked(name, items)
	g.last = name
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := r.store.Put(ctx, groupID, name, items); err != nil {
		return fmt.Errorf("%w: store bank %q: %w", domain.ErrPersistence, name, err)
	}
	return nil
}

// LastUsed returns the bank a group used most recently.
func (r *BankRegistry) LastUsed(groupID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.groups[groupID]; ok {
		return g.last
	}
	return ""
}

// MarkUsed records name as the group's last used bank.
func (r *BankRegistry) MarkUsed(groupID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok {
		g.last = name
	}
}

// Hydrate loads every persisted non-empty bank into memory.
func (r *BankRegistry) Hydrate(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	stored, err := r.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored banks: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, bank := range stored {
		if len(bank.Items) == 0 {
			continue
		}
		g, ok := r.groups[bank.GroupID]
		if !ok {
			g = &groupBanks{banks: make(map[string][]domain.Question)}
			r.groups[bank.GroupID] = g
		}
		g.setLocked(bank.Name, domain.CloneQuestions(bank.Items))
		if g.last == "" {
			g.last = bank.Name
		}
		loaded++
	}
	log.Printf("hydrated %d banks", loaded)
	return loaded, nil
}

// SampleBank returns the built-in demo bank, one question per kind.
func SampleBank() []domain.Question {
	return []domain.Question{
		{
			Prompt:    "Which planet is known as the Red Planet?",
			Kind:      domain.KindSingle,
			Options:   []string{"Venus", "Mars", "Jupiter", "Mercury"},
			Correct:   []int{1},
			Rationale: "Iron oxide on its surface gives Mars its reddish color.",
		},
		{
			Prompt:    "Which of these are prime numbers?",
			Kind:      domain.KindMulti,
			Options:   []string{"2", "4", "7", "9"},
			Correct:   []int{0, 2},
			Rationale: "2 and 7 have no divisors other than 1 and themselves.",
		},
		{
			Prompt:    "Water boils at 100°C at sea level.",
			Kind:      domain.KindTrueFalse,
			Options:   []string{"True", "False"},
			Correct:   []int{0},
			Rationale: "At 1 atm, pure water boils at 100°C.",
		},
	}
}
