package app_test

import (
	"context"
	"errors"
	"testing"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	"channel-quiz-service/internal/infra/memory"
)

func TestRegistrySeedsSampleBank(t *testing.T) {
	registry := app.NewBankRegistry(memory.NewBankStore())

	banks := registry.List("group-1")
	if len(banks) != 1 || banks[0].Name != app.SampleBankName || banks[0].Size != 3 {
		t.Fatalf("expected seeded sample bank, got %+v", banks)
	}
	if got := registry.LastUsed("group-1"); got != app.SampleBankName {
		t.Fatalf("expected sample as last used, got %q", got)
	}

	sample := app.SampleBank()
	kinds := map[domain.Kind]bool{}
	for _, q := range sample {
		if issues := domain.Validate(q); len(issues) > 0 {
			t.Fatalf("sample question %q invalid: %v", q.Prompt, issues)
		}
		kinds[q.Kind] = true
	}
	if len(kinds) != 3 {
		t.Fatalf("sample bank should cover every kind, got %v", kinds)
	}
}

func TestRegistryPutKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	registry := app.NewBankRegistry(nil)

	q := question("q", 0)
	for _, name := range []string{"zeta", "alpha", "zeta"} {
		if err := registry.Put(ctx, "g", name, []domain.Question{q}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}

	banks := registry.List("g")
	want := []string{app.SampleBankName, "zeta", "alpha"}
	if len(banks) != len(want) {
		t.Fatalf("expected %d banks, got %+v", len(want), banks)
	}
	for i, name := range want {
		if banks[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, banks[i].Name)
		}
	}
	if got := registry.LastUsed("g"); got != "zeta" {
		t.Fatalf("expected last put bank to be last used, got %q", got)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	registry := app.NewBankRegistry(nil)
	if err := registry.Put(context.Background(), "g", "b", []domain.Question{question("q", 1)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	items, _ := registry.Get("g", "b")
	items[0].Options[0] = "mutated"
	items[0].Correct[0] = 2

	again, _ := registry.Get("g", "b")
	if again[0].Options[0] != "zero" || again[0].Correct[0] != 1 {
		t.Fatalf("stored bank was mutated through a copy: %+v", again[0])
	}
}

func TestRegistryPersistenceFailureKeepsMemory(t *testing.T) {
	registry := app.NewBankRegistry(failingStore{})

	err := registry.Put(context.Background(), "g", "b", []domain.Question{question("q", 0)})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if items, ok := registry.Get("g", "b"); !ok || len(items) != 1 {
		t.Fatalf("bank should stay usable in memory")
	}
}

func TestRegistryHydrate(t *testing.T) {
	store := memory.NewBankStore(
		domain.StoredBank{GroupID: "g1", Name: "history", Items: []domain.Question{question("q", 0)}},
		domain.StoredBank{GroupID: "g1", Name: "empty"},
		domain.StoredBank{GroupID: "g2", Name: "math", Items: []domain.Question{question("q", 0), question("r", 1)}},
	)
	registry := app.NewBankRegistry(store)

	loaded, err := registry.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if loaded != 2 {
		t.Fatalf("expected 2 banks loaded, got %d", loaded)
	}
	if _, ok := registry.Get("g1", "empty"); ok {
		t.Fatalf("empty banks must be skipped")
	}
	if got := registry.LastUsed("g2"); got != "math" {
		t.Fatalf("expected math as last used, got %q", got)
	}

	banks := registry.List("g2")
	if len(banks) != 1 || banks[0].Name != "math" || banks[0].Size != 2 {
		t.Fatalf("hydrated group must not get the sample bank, got %+v", banks)
	}
}
