package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"channel-quiz-service/internal/domain"
)

type ack struct {
	userID  string
	outcome domain.Outcome
}

type fakePresenter struct {
	mu        sync.Mutex
	count     int
	prefill   map[int][]domain.Response
	failWith  error
	acks      []ack
	reasons   []domain.CloseReason
	presented chan int
	closed    chan domain.CloseReason
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{
		prefill:   make(map[int][]domain.Response),
		presented: make(chan int, 64),
		closed:    make(chan domain.CloseReason, 64),
	}
}

func (p *fakePresenter) Present(_ context.Context, channelID string, _ domain.Question, index, _ int) (domain.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return domain.MessageRef{}, p.failWith
	}
	p.count++
	p.presented <- index
	return domain.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", index)}, nil
}

func (p *fakePresenter) OpenWindow(_ context.Context, ref domain.MessageRef, _ time.Duration) (<-chan domain.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var index int
	fmt.Sscanf(ref.MessageID, "m%d", &index)
	ch := make(chan domain.Response, 16)
	for _, resp := range p.prefill[index] {
		ch <- resp
	}
	return ch, nil
}

func (p *fakePresenter) CloseWindow(_ context.Context, _ domain.MessageRef, reason domain.CloseReason) error {
	p.mu.Lock()
	p.reasons = append(p.reasons, reason)
	p.mu.Unlock()
	p.closed <- reason
	return nil
}

func (p *fakePresenter) Acknowledge(_ context.Context, _ domain.MessageRef, resp domain.Response, outcome domain.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, ack{userID: resp.UserID, outcome: outcome})
	if resp.Token == "expired" {
		return domain.ErrInteractionExpired
	}
	return nil
}

func (p *fakePresenter) snapshot() ([]ack, []domain.CloseReason, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ack(nil), p.acks...), append([]domain.CloseReason(nil), p.reasons...), p.count
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (n *fakeNotifier) Notify(_ context.Context, _ string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, text)
	return nil
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notes...)
}

func (n *fakeNotifier) find(substr string) (string, bool) {
	for _, note := range n.all() {
		if strings.Contains(note, substr) {
			return note, true
		}
	}
	return "", false
}

type fakeIdentities map[string]string

func (f fakeIdentities) DisplayName(_ context.Context, userID string) (string, error) {
	if name, ok := f[userID]; ok {
		return name, nil
	}
	return "", errors.New("unknown user")
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []domain.Question) error {
	return errors.New("disk full")
}

func (failingStore) ListAll(context.Context) ([]domain.StoredBank, error) {
	return nil, nil
}

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(context.Context, string) (string, error) {
	f.calls++
	return f.body, f.err
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish in time")
	}
}

func waitPresented(t *testing.T, p *fakePresenter, want int) {
	t.Helper()
	for {
		select {
		case idx := <-p.presented:
			if idx == want {
				return
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("question %d was not presented", want)
		}
	}
}

func noShuffle(int, func(i, j int)) {}

func intPtr(v int) *int { return &v }

// gatePresenter holds the first Acknowledge until gate is closed, so a test
// can stop the session while the driver is busy.
type gatePresenter struct {
	mu        sync.Mutex
	responses chan domain.Response
	presented chan struct{}
	entered   chan struct{}
	gate      chan struct{}
	gated     bool
	acks      []ack
	reasons   []domain.CloseReason
}

func newGatePresenter() *gatePresenter {
	return &gatePresenter{
		responses: make(chan domain.Response, 8),
		presented: make(chan struct{}, 1),
		entered:   make(chan struct{}, 1),
		gate:      make(chan struct{}),
	}
}

func (p *gatePresenter) Present(_ context.Context, channelID string, _ domain.Question, index, _ int) (domain.MessageRef, error) {
	p.presented <- struct{}{}
	return domain.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", index)}, nil
}

func (p *gatePresenter) OpenWindow(context.Context, domain.MessageRef, time.Duration) (<-chan domain.Response, error) {
	return p.responses, nil
}

func (p *gatePresenter) CloseWindow(_ context.Context, _ domain.MessageRef, reason domain.CloseReason) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons = append(p.reasons, reason)
	return nil
}

func (p *gatePresenter) Acknowledge(_ context.Context, _ domain.MessageRef, resp domain.Response, outcome domain.Outcome) error {
	p.mu.Lock()
	first := !p.gated
	p.gated = true
	p.acks = append(p.acks, ack{userID: resp.UserID, outcome: outcome})
	p.mu.Unlock()
	if first {
		p.entered <- struct{}{}
		<-p.gate
	}
	return nil
}

func (p *gatePresenter) snapshot() ([]ack, []domain.CloseReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ack(nil), p.acks...), append([]domain.CloseReason(nil), p.reasons...)
}
