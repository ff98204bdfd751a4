package app

import (
	"context"
	"sync"
	"time"

	"channel-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// Session is the live quiz run of one channel. The driver goroutine is the
// only writer of index/state; the mutex lets Score and Stop read concurrently.
type Session struct {
	id        string
	channelID string
	groupID   string
	bank      string
	createdAt time.Time

	mu        sync.RWMutex
	questions []domain.Question
	index     int
	state     domain.SessionState
	answered  bool
	stopped   bool
	window    *domain.MessageRef
	scores    map[string]int
	order     []string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession builds a session over an already shuffled/truncated snapshot.
func NewSession(channelID, groupID, bank string, questions []domain.Question) *Session {
	return newSessionWithClock(channelID, groupID, bank, questions, time.Now)
}

func newSessionWithClock(channelID, groupID, bank string, questions []domain.Question, now func() time.Time) *Session {
	return &Session{
		id:        uuid.NewString(),
		channelID: channelID,
		groupID:   groupID,
		bank:      bank,
		createdAt: now(),
		questions: questions,
		state:     domain.StateIdle,
		scores:    make(map[string]int),
		cancel:    func() {},
		done:      make(chan struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// ChannelID returns the channel the session runs in.
func (s *Session) ChannelID() string { return s.channelID }

// Done is closed once the driver has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a read-only snapshot of the session position.
func (s *Session) Info() domain.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.SessionInfo{
		ID:        s.id,
		ChannelID: s.channelID,
		GroupID:   s.groupID,
		Bank:      s.bank,
		Index:     s.index,
		Total:     len(s.questions),
		State:     s.state,
		StartedAt: s.createdAt,
	}
}

// Standings returns scoreboard entries in first-scored order.
func (s *Session) Standings() []domain.ScoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.ScoreEntry, 0, len(s.order))
	for _, userID := range s.order {
		entries = append(entries, domain.ScoreEntry{UserID: userID, Score: s.scores[userID]})
	}
	return entries
}

// current returns the question at the cursor, or ok=false past the end.
func (s *Session) current() (q domain.Question, index, total int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total = len(s.questions)
	if s.index >= total {
		return domain.Question{}, s.index, total, false
	}
	return s.questions[s.index], s.index, total, true
}

func (s *Session) advance() {
	s.mu.Lock()
	s.index++
	s.mu.Unlock()
}

func (s *Session) openWindow(ref domain.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered = false
	s.window = &ref
	s.state = domain.StateAwaitingAnswer
}

func (s *Session) closeWindow() {
	s.mu.Lock()
	s.window = nil
	s.mu.Unlock()
}

func (s *Session) finish() {
	s.mu.Lock()
	s.state = domain.StateFinished
	s.window = nil
	s.mu.Unlock()
}

// answer applies first-response-wins. accepted is true only for the response
// that closes the window.
func (s *Session) answer(q domain.Question, resp domain.Response) (domain.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := domain.Outcome{
		CorrectLetters: domain.Letters(q.Correct),
		Rationale:      q.Rationale,
		Score:          s.scores[resp.UserID],
	}
	if s.answered || s.stopped {
		outcome.Verdict = domain.VerdictAlreadyAdvanced
		return outcome, false
	}
	if resp.Choice < 0 || resp.Choice >= len(q.Options) {
		outcome.Verdict = domain.VerdictInvalid
		return outcome, false
	}

	s.answered = true
	if q.IsCorrect(resp.Choice) {
		if _, seen := s.scores[resp.UserID]; !seen {
			s.order = append(s.order, resp.UserID)
		}
		s.scores[resp.UserID]++
		outcome.Verdict = domain.VerdictCorrect
		outcome.Score = s.scores[resp.UserID]
		return outcome, true
	}
	outcome.Verdict = domain.VerdictIncorrect
	return outcome, true
}

// stop rejects every later response before cancelling the driver.
func (s *Session) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}
