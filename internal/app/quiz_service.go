package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"channel-quiz-service/internal/domain"
)

// DefaultWindow is how long a question accepts responses.
const DefaultWindow = 20 * time.Second

// SessionRepository abstracts where live sessions are tracked (in-memory, Redis, etc).
type SessionRepository interface {
	// Insert stores the session unless the channel already has one.
	Insert(channelID string, session *Session) bool
	Get(channelID string) (*Session, bool)
	// Release frees the channel slot if session still owns it.
	Release(channelID string, session *Session)
}

// Presenter renders questions and collects responses on the chat platform.
type Presenter interface {
	Present(ctx context.Context, channelID string, q domain.Question, index, total int) (domain.MessageRef, error)
	OpenWindow(ctx context.Context, ref domain.MessageRef, timeout time.Duration) (<-chan domain.Response, error)
	CloseWindow(ctx context.Context, ref domain.MessageRef, reason domain.CloseReason) error
	Acknowledge(ctx context.Context, ref domain.MessageRef, resp domain.Response, outcome domain.Outcome) error
}

// Notifier posts fire-and-forget status messages to a channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, text string) error
}

// IdentityResolver maps user ids to display names.
type IdentityResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// StartRequest asks for a new session in a channel.
type StartRequest struct {
	GroupID   string
	ChannelID string
	Bank      string
	// Count truncates the shuffled bank; nil means the whole bank.
	Count *int
}

// StartResult describes the session that was started.
type StartResult struct {
	SessionID string
	Bank      string
	Total     int
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions   SessionRepository
	banks      *BankRegistry
	presenter  Presenter
	notifier   Notifier
	identities IdentityResolver

	window  time.Duration
	shuffle func(n int, swap func(i, j int))
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithWindow overrides the per-question collection window.
func WithWindow(d time.Duration) Option {
	return func(s *QuizService) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithShuffle replaces the Fisher-Yates shuffle, mainly for deterministic tests.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(s *QuizService) {
		if fn != nil {
			s.shuffle = fn
		}
	}
}

func NewQuizService(store SessionRepository, banks *BankRegistry, presenter Presenter, notifier Notifier, identities IdentityResolver, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:   store,
		banks:      banks,
		presenter:  presenter,
		notifier:   notifier,
		identities: identities,
		window:     DefaultWindow,
		shuffle:    rand.Shuffle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resolves a bank, snapshots it and launches the session driver.
func (s *QuizService) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if existing, ok := s.sessions.Get(req.ChannelID); ok {
		return StartResult{SessionID: existing.ID()}, domain.ErrSessionExists
	}

	s.banks.EnsureGroup(req.GroupID)
	name := strings.TrimSpace(req.Bank)
	if name == "" {
		name = s.banks.LastUsed(req.GroupID)
	}
	if name == "" {
		name = SampleBankName
	}
	bank, ok := s.banks.Get(req.GroupID, name)
	if !ok {
		return StartResult{}, fmt.Errorf("%w: %q", domain.ErrBankNotFound, name)
	}
	if len(bank) == 0 {
		return StartResult{}, domain.ErrEmptyBank
	}

	questions := s.snapshot(bank, req.Count)
	session := NewSession(req.ChannelID, req.GroupID, name, questions)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session.cancel = cancel

	if !s.sessions.Insert(req.ChannelID, session) {
		cancel()
		return StartResult{}, domain.ErrSessionExists
	}
	s.banks.MarkUsed(req.GroupID, name)

	log.Printf("session %s started in channel %s with bank %q (%d questions)", session.ID(), req.ChannelID, name, len(questions))
	go s.run(runCtx, session)

	return StartResult{SessionID: session.ID(), Bank: name, Total: len(questions)}, nil
}

// snapshot shuffles a copy of the bank and applies the requested count.
func (s *QuizService) snapshot(bank []domain.Question, count *int) []domain.Question {
	questions := domain.CloneQuestions(bank)
	s.shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	if count == nil {
		return questions
	}
	n := *count
	if n < 1 {
		n = 1
	}
	if n > len(questions) {
		n = len(questions)
	}
	return questions[:n]
}

// Stop cancels the channel's session. The caller owns any user-facing message.
func (s *QuizService) Stop(_ context.Context, channelID string) error {
	session, ok := s.sessions.Get(channelID)
	if !ok {
		return domain.ErrNothingRunning
	}
	session.stop()
	s.sessions.Release(channelID, session)
	log.Printf("session %s stopped in channel %s", session.ID(), channelID)
	return nil
}

// Scoreboard renders the live scoreboard of a channel.
func (s *QuizService) Scoreboard(ctx context.Context, channelID string) string {
	entries, _ := s.Standings(channelID)
	return RenderScoreboard(ctx, entries, s.identities)
}

// Standings returns raw scoreboard entries and whether a session is live.
func (s *QuizService) Standings(channelID string) ([]domain.ScoreEntry, bool) {
	session, ok := s.sessions.Get(channelID)
	if !ok {
		return nil, false
	}
	return session.Standings(), true
}

// Session returns a snapshot of the channel's running session.
func (s *QuizService) Session(channelID string) (domain.SessionInfo, bool) {
	session, ok := s.sessions.Get(channelID)
	if !ok {
		return domain.SessionInfo{}, false
	}
	return session.Info(), true
}

// Window is the per-question collection window.
func (s *QuizService) Window() time.Duration { return s.window }

// ListBanks lists the banks of a group.
func (s *QuizService) ListBanks(groupID string) []domain.BankSummary {
	return s.banks.List(groupID)
}

// run drives a session from the first question to its end.
func (s *QuizService) run(ctx context.Context, session *Session) {
	defer close(session.done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s panicked: %v", session.ID(), r)
			session.finish()
			s.sessions.Release(session.channelID, session)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		q, index, total, ok := session.current()
		if !ok {
			s.finish(ctx, session)
			return
		}

		if issues := domain.Validate(q); len(issues) > 0 {
			s.notify(ctx, session.channelID, fmt.Sprintf("Skipping question %d: %s.", index+1, strings.Join(issues, ", ")))
			session.advance()
			continue
		}

		reason, err := s.collect(ctx, session, q, index, total)
		if err != nil {
			log.Printf("session %s stalled on question %d: %v", session.ID(), index+1, err)
			s.notify(ctx, session.channelID, "Something went wrong showing the next question. Stop the quiz to reset.")
			<-ctx.Done()
			return
		}
		if reason == domain.CloseManualStop {
			return
		}
		session.advance()
	}
}

// collect presents one question and waits for the first valid response,
// the window deadline, or a stop.
func (s *QuizService) collect(ctx context.Context, session *Session, q domain.Question, index, total int) (domain.CloseReason, error) {
	ref, err := s.presenter.Present(ctx, session.channelID, q, index, total)
	if err != nil {
		return "", fmt.Errorf("present question: %w", err)
	}
	responses, err := s.presenter.OpenWindow(ctx, ref, s.window)
	if err != nil {
		return "", fmt.Errorf("open window: %w", err)
	}
	session.openWindow(ref)

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	stopped := func() (domain.CloseReason, error) {
		s.closeWindow(ctx, session, ref, domain.CloseManualStop)
		return domain.CloseManualStop, nil
	}

	for {
		// A stop wins over anything already queued.
		if ctx.Err() != nil {
			return stopped()
		}
		select {
		case <-ctx.Done():
			return stopped()

		case <-timer.C:
			if ctx.Err() != nil {
				return stopped()
			}
			s.closeWindow(ctx, session, ref, domain.CloseTimeout)
			s.notify(ctx, session.channelID, fmt.Sprintf("⏰ Time's up! Correct answer: %s", domain.Letters(q.Correct)))
			return domain.CloseTimeout, nil

		case resp, ok := <-responses:
			if !ok {
				// Stream ended early; the deadline still decides.
				responses = nil
				continue
			}
			if ctx.Err() != nil {
				return stopped()
			}
			outcome, accepted := session.answer(q, resp)
			if !accepted && outcome.Verdict == domain.VerdictAlreadyAdvanced {
				// Only a stop rejects a response while the window is open.
				return stopped()
			}
			s.acknowledge(ctx, ref, resp, outcome)
			if !accepted {
				continue
			}
			s.closeWindow(ctx, session, ref, domain.CloseAnswered)
			s.drainLate(ctx, session, q, ref, responses)
			return domain.CloseAnswered, nil
		}
	}
}

// drainLate answers responses that were already queued when the window closed.
func (s *QuizService) drainLate(ctx context.Context, session *Session, q domain.Question, ref domain.MessageRef, responses <-chan domain.Response) {
	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			outcome, _ := session.answer(q, resp)
			s.acknowledge(ctx, ref, resp, outcome)
		default:
			return
		}
	}
}

func (s *QuizService) finish(ctx context.Context, session *Session) {
	session.finish()
	board := RenderScoreboard(ctx, session.Standings(), s.identities)
	s.notify(ctx, session.channelID, "🏁 Quiz finished!\n"+board)
	s.sessions.Release(session.channelID, session)
	log.Printf("session %s finished in channel %s", session.ID(), session.channelID)
}

func (s *QuizService) closeWindow(ctx context.Context, session *Session, ref domain.MessageRef, reason domain.CloseReason) {
	session.closeWindow()
	// Closing must still reach the platform after a stop cancelled ctx.
	if err := s.presenter.CloseWindow(context.WithoutCancel(ctx), ref, reason); err != nil && !errors.Is(err, domain.ErrInteractionExpired) {
		log.Printf("close window %s (%s): %v", ref.MessageID, reason, err)
	}
}

func (s *QuizService) acknowledge(ctx context.Context, ref domain.MessageRef, resp domain.Response, outcome domain.Outcome) {
	err := s.presenter.Acknowledge(context.WithoutCancel(ctx), ref, resp, outcome)
	if err != nil && !errors.Is(err, domain.ErrInteractionExpired) {
		log.Printf("acknowledge %s for user %s: %v", ref.MessageID, resp.UserID, err)
	}
}

func (s *QuizService) notify(ctx context.Context, channelID, text string) {
	if err := s.notifier.Notify(ctx, channelID, text); err != nil {
		log.Printf("notify channel %s: %v", channelID, err)
	}
}
