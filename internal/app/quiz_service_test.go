package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	"channel-quiz-service/internal/infra/memory"
)

type harness struct {
	service   *app.QuizService
	sessions  *memory.SessionStore
	banks     *app.BankRegistry
	presenter *fakePresenter
	notifier  *fakeNotifier
}

func newHarness(t *testing.T, window time.Duration, questions ...domain.Question) *harness {
	t.Helper()
	h := &harness{
		sessions:  memory.NewSessionStore(),
		banks:     app.NewBankRegistry(memory.NewBankStore()),
		presenter: newFakePresenter(),
		notifier:  &fakeNotifier{},
	}
	if len(questions) > 0 {
		if err := h.banks.Put(context.Background(), "group-1", "test", questions); err != nil {
			t.Fatalf("put bank: %v", err)
		}
	}
	h.service = app.NewQuizService(h.sessions, h.banks, h.presenter, h.notifier,
		fakeIdentities{"u1": "Alice", "u2": "Bob"},
		app.WithWindow(window), app.WithShuffle(noShuffle))
	return h
}

func (h *harness) start(t *testing.T, count *int) *app.Session {
	t.Helper()
	if _, err := h.service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-1", Bank: "test", Count: count}); err != nil {
		t.Fatalf("start: %v", err)
	}
	session, ok := h.sessions.Get("chan-1")
	if !ok {
		t.Fatalf("expected session stored")
	}
	return session
}

func question(prompt string, correct ...int) domain.Question {
	return domain.Question{
		Prompt:  prompt,
		Kind:    domain.KindSingle,
		Options: []string{"zero", "one", "two"},
		Correct: correct,
	}
}

func TestFirstCorrectResponseWins(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 1))
	h.presenter.prefill[0] = []domain.Response{
		{UserID: "u1", Choice: 1},
		{UserID: "u2", Choice: 1},
	}

	session := h.start(t, nil)
	waitDone(t, session.Done())

	acks, reasons, _ := h.presenter.snapshot()
	if len(acks) != 2 {
		t.Fatalf("expected 2 acknowledgements, got %+v", acks)
	}
	if acks[0].userID != "u1" || acks[0].outcome.Verdict != domain.VerdictCorrect || acks[0].outcome.Score != 1 {
		t.Fatalf("expected u1 scored, got %+v", acks[0])
	}
	if acks[1].userID != "u2" || acks[1].outcome.Verdict != domain.VerdictAlreadyAdvanced {
		t.Fatalf("expected u2 already advanced, got %+v", acks[1])
	}
	if len(reasons) != 1 || reasons[0] != domain.CloseAnswered {
		t.Fatalf("expected single answered close, got %v", reasons)
	}

	standings := session.Standings()
	if len(standings) != 1 || standings[0].UserID != "u1" || standings[0].Score != 1 {
		t.Fatalf("unexpected standings %+v", standings)
	}
	final, ok := h.notifier.find("Quiz finished")
	if !ok || !strings.Contains(final, "1. Alice: 1") {
		t.Fatalf("expected final scoreboard, got %v", h.notifier.all())
	}
	if _, ok := h.sessions.Get("chan-1"); ok {
		t.Fatalf("finished session must release the channel")
	}
}

func TestIncorrectFirstResponseStillAdvances(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 2), question("q2", 0))
	h.presenter.prefill[0] = []domain.Response{{UserID: "u1", Choice: 0, Token: "expired"}}
	h.presenter.prefill[1] = []domain.Response{{UserID: "u2", Choice: 0}}

	session := h.start(t, nil)
	waitDone(t, session.Done())

	acks, reasons, presented := h.presenter.snapshot()
	if presented != 2 {
		t.Fatalf("expected both questions presented, got %d", presented)
	}
	if acks[0].outcome.Verdict != domain.VerdictIncorrect || acks[0].outcome.CorrectLetters != "C" {
		t.Fatalf("unexpected first outcome %+v", acks[0].outcome)
	}
	if len(reasons) != 2 || reasons[0] != domain.CloseAnswered || reasons[1] != domain.CloseAnswered {
		t.Fatalf("unexpected close reasons %v", reasons)
	}
	standings := session.Standings()
	if len(standings) != 1 || standings[0].UserID != "u2" {
		t.Fatalf("only u2 should score, got %+v", standings)
	}
}

func TestInvalidChoiceKeepsWindowOpen(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 0))
	h.presenter.prefill[0] = []domain.Response{
		{UserID: "u1", Choice: 9},
		{UserID: "u2", Choice: 0},
	}

	session := h.start(t, nil)
	waitDone(t, session.Done())

	acks, _, _ := h.presenter.snapshot()
	if len(acks) != 2 || acks[0].outcome.Verdict != domain.VerdictInvalid || acks[1].outcome.Verdict != domain.VerdictCorrect {
		t.Fatalf("unexpected acks %+v", acks)
	}
}

func TestTimeoutAutoAdvances(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond, question("q1", 0), question("q2", 1))

	session := h.start(t, nil)
	waitDone(t, session.Done())

	_, reasons, presented := h.presenter.snapshot()
	if presented != 2 {
		t.Fatalf("expected next question presented after timeout, got %d", presented)
	}
	if len(reasons) != 2 || reasons[0] != domain.CloseTimeout || reasons[1] != domain.CloseTimeout {
		t.Fatalf("expected two timeouts, got %v", reasons)
	}
	if len(session.Standings()) != 0 {
		t.Fatalf("timeouts must not score")
	}
	if _, ok := h.notifier.find("Time's up"); !ok {
		t.Fatalf("expected time's up notice, got %v", h.notifier.all())
	}
	final, ok := h.notifier.find("Quiz finished")
	if !ok || !strings.Contains(final, app.EmptyScoreboard) {
		t.Fatalf("expected empty final scoreboard, got %v", h.notifier.all())
	}
}

func TestInvalidQuestionIsSkipped(t *testing.T) {
	broken := domain.Question{Prompt: "broken", Options: []string{"only"}, Correct: []int{0}}
	h := newHarness(t, 20*time.Millisecond, broken, question("q2", 1))

	session := h.start(t, nil)
	waitDone(t, session.Done())

	_, reasons, presented := h.presenter.snapshot()
	if presented != 1 || len(reasons) != 1 {
		t.Fatalf("expected only the valid question presented, got %d presented, %v", presented, reasons)
	}
	if note, ok := h.notifier.find("Skipping question 1"); !ok || !strings.Contains(note, "needs ≥2 options") {
		t.Fatalf("expected skip notice, got %v", h.notifier.all())
	}
}

func TestStartCountClamping(t *testing.T) {
	bank := []domain.Question{question("q1", 0), question("q2", 0), question("q3", 0)}
	cases := []struct {
		name  string
		count *int
		want  int
	}{
		{"absent", nil, 3},
		{"zero", intPtr(0), 1},
		{"negative", intPtr(-4), 1},
		{"too many", intPtr(10), 3},
		{"exact", intPtr(2), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, time.Minute, bank...)
			res, err := h.service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-1", Bank: "test", Count: tc.count})
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if res.Total != tc.want {
				t.Fatalf("expected %d questions, got %d", tc.want, res.Total)
			}
			session, _ := h.sessions.Get("chan-1")
			if err := h.service.Stop(context.Background(), "chan-1"); err != nil {
				t.Fatalf("stop: %v", err)
			}
			waitDone(t, session.Done())
		})
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 0), question("q2", 0))

	if err := h.service.Stop(context.Background(), "chan-1"); !errors.Is(err, domain.ErrNothingRunning) {
		t.Fatalf("expected nothing running, got %v", err)
	}

	session := h.start(t, nil)
	waitPresented(t, h.presenter, 0)

	if err := h.service.Stop(context.Background(), "chan-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := h.service.Stop(context.Background(), "chan-1"); !errors.Is(err, domain.ErrNothingRunning) {
		t.Fatalf("second stop should see no session, got %v", err)
	}
	waitDone(t, session.Done())

	_, reasons, presented := h.presenter.snapshot()
	if presented != 1 {
		t.Fatalf("stop must not advance, presented %d", presented)
	}
	if len(reasons) != 1 || reasons[0] != domain.CloseManualStop {
		t.Fatalf("expected manual-stop close, got %v", reasons)
	}
	if _, ok := h.notifier.find("Quiz finished"); ok {
		t.Fatalf("manual stop must not post a scoreboard")
	}
}

func TestStartRejectsConflictsAndBadBanks(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 0))
	session := h.start(t, nil)
	defer func() {
		_ = h.service.Stop(context.Background(), "chan-1")
		waitDone(t, session.Done())
	}()

	_, err := h.service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-1"})
	if !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got, _ := h.sessions.Get("chan-1"); got != session {
		t.Fatalf("existing session must be untouched")
	}

	_, err = h.service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-2", Bank: "missing"})
	if !errors.Is(err, domain.ErrBankNotFound) {
		t.Fatalf("expected bank not found, got %v", err)
	}

	if err := h.banks.Put(context.Background(), "group-1", "empty", nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, err = h.service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-2", Bank: "empty"})
	if !errors.Is(err, domain.ErrEmptyBank) {
		t.Fatalf("expected empty bank, got %v", err)
	}
	if _, ok := h.sessions.Get("chan-2"); ok {
		t.Fatalf("rejected start must not create state")
	}
}

func TestStartDefaultsToLastUsedBank(t *testing.T) {
	h := newHarness(t, time.Minute)

	res, err := h.service.Start(context.Background(), app.StartRequest{GroupID: "fresh", ChannelID: "chan-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Bank != app.SampleBankName || res.Total != len(app.SampleBank()) {
		t.Fatalf("expected sample bank, got %+v", res)
	}
	session, _ := h.sessions.Get("chan-1")
	_ = h.service.Stop(context.Background(), "chan-1")
	waitDone(t, session.Done())
}

func TestScoreboardWhileRunning(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 1), question("q2", 1))
	h.presenter.prefill[0] = []domain.Response{{UserID: "u2", Choice: 1}}

	if got := h.service.Scoreboard(context.Background(), "chan-1"); got != app.EmptyScoreboard {
		t.Fatalf("expected empty scoreboard without session, got %q", got)
	}

	session := h.start(t, nil)
	waitPresented(t, h.presenter, 1)

	board := h.service.Scoreboard(context.Background(), "chan-1")
	if !strings.Contains(board, "1. Bob: 1") {
		t.Fatalf("unexpected scoreboard %q", board)
	}
	info, ok := h.service.Session("chan-1")
	if !ok || info.Index != 1 || info.State != domain.StateAwaitingAnswer {
		t.Fatalf("unexpected session info %+v", info)
	}

	_ = h.service.Stop(context.Background(), "chan-1")
	waitDone(t, session.Done())
}

func TestPresenterFailureStallsUntilStopped(t *testing.T) {
	h := newHarness(t, time.Minute, question("q1", 0))
	h.presenter.failWith = errors.New("render failed")

	session := h.start(t, nil)

	deadline := time.After(3 * time.Second)
	for {
		if _, ok := h.notifier.find("Something went wrong"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected failure notice, got %v", h.notifier.all())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, ok := h.sessions.Get("chan-1"); !ok {
		t.Fatalf("stalled session should still own the channel")
	}

	if err := h.service.Stop(context.Background(), "chan-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitDone(t, session.Done())
}

func TestShuffleLeavesStoredBankUntouched(t *testing.T) {
	bank := []domain.Question{question("q1", 0), question("q2", 0), question("q3", 0)}
	h := newHarness(t, time.Minute, bank...)
	h.service = app.NewQuizService(h.sessions, h.banks, h.presenter, h.notifier, nil, app.WithWindow(time.Minute))

	res, err := h.service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-1", Bank: "test"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Total != 3 {
		t.Fatalf("shuffle must keep every question, got %d", res.Total)
	}
	original, _ := h.banks.Get("group-1", "test")
	if original[0].Prompt != "q1" || original[2].Prompt != "q3" {
		t.Fatalf("shuffling must not reorder the stored bank")
	}
	session, _ := h.sessions.Get("chan-1")
	_ = h.service.Stop(context.Background(), "chan-1")
	waitDone(t, session.Done())
}

func TestStopDiscardsQueuedResponses(t *testing.T) {
	for i := 0; i < 50; i++ {
		sessions := memory.NewSessionStore()
		banks := app.NewBankRegistry(memory.NewBankStore())
		if err := banks.Put(context.Background(), "group-1", "test", []domain.Question{question("q1", 1)}); err != nil {
			t.Fatalf("put bank: %v", err)
		}
		presenter := newGatePresenter()
		notifier := &fakeNotifier{}
		service := app.NewQuizService(sessions, banks, presenter, notifier, fakeIdentities{},
			app.WithWindow(time.Minute), app.WithShuffle(noShuffle))

		if _, err := service.Start(context.Background(), app.StartRequest{GroupID: "group-1", ChannelID: "chan-1", Bank: "test"}); err != nil {
			t.Fatalf("start: %v", err)
		}
		session, _ := sessions.Get("chan-1")
		<-presenter.presented

		// The driver blocks acknowledging an out-of-range pick.
		presenter.responses <- domain.Response{UserID: "u1", Choice: 9}
		<-presenter.entered

		if err := service.Stop(context.Background(), "chan-1"); err != nil {
			t.Fatalf("stop: %v", err)
		}
		presenter.responses <- domain.Response{UserID: "u2", Choice: 1}
		close(presenter.gate)
		waitDone(t, session.Done())

		acks, reasons := presenter.snapshot()
		for _, a := range acks {
			if a.outcome.Verdict == domain.VerdictCorrect {
				t.Fatalf("run %d: response after stop was scored: %+v", i, acks)
			}
		}
		if len(reasons) != 1 || reasons[0] != domain.CloseManualStop {
			t.Fatalf("run %d: expected a single manual-stop close, got %v", i, reasons)
		}
		if len(session.Standings()) != 0 {
			t.Fatalf("run %d: scoreboard changed after stop: %+v", i, session.Standings())
		}
		if _, ok := notifier.find("Time's up"); ok {
			t.Fatalf("run %d: status message after stop", i)
		}
	}
}
