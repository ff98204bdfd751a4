package domain

import (
	"strings"
	"time"
)

// MaxOptions is the largest number of options a question can be presented with.
const MaxOptions = 25

// Kind is the question type carried by the bank. Scoring ignores it.
type Kind string

const (
	KindSingle    Kind = "single"
	KindMulti     Kind = "multi"
	KindTrueFalse Kind = "tf"
)

// Question is a single presentable quiz item.
type Question struct {
	Prompt    string   `json:"prompt"`
	Kind      Kind     `json:"type"`
	Options   []string `json:"options"`
	Correct   []int    `json:"correct"`
	Rationale string   `json:"explanation,omitempty"`
}

// IsCorrect reports whether choice is one of the correct option indices.
func (q Question) IsCorrect(choice int) bool {
	for _, idx := range q.Correct {
		if idx == choice {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so sessions never share slices with a bank.
func (q Question) Clone() Question {
	out := q
	out.Options = append([]string(nil), q.Options...)
	out.Correct = append([]int(nil), q.Correct...)
	return out
}

// CloneQuestions deep-copies a bank.
func CloneQuestions(items []Question) []Question {
	out := make([]Question, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

// BankSummary is a list-friendly view of a stored bank.
type BankSummary struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// StoredBank is what persistence hands back during hydration.
type StoredBank struct {
	GroupID string
	Name    string
	Items   []Question
}

// Caller identifies who issued a command and whether the host granted admin capability.
type Caller struct {
	UserID    string
	GroupID   string
	ChannelID string
	Admin     bool
}

// MessageRef is the handle of a presented question and its collection window.
type MessageRef struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// Response is one responder's pick during a collection window.
type Response struct {
	UserID string
	Choice int
	// Token is the transport's interaction reference (callback id, message id).
	Token string
}

// CloseReason explains why a collection window ended.
type CloseReason string

const (
	CloseAnswered   CloseReason = "answered"
	CloseTimeout    CloseReason = "timeout"
	CloseManualStop CloseReason = "manual-stop"
)

// Verdict is the per-response result reported back to a responder.
type Verdict string

const (
	VerdictCorrect         Verdict = "correct"
	VerdictIncorrect       Verdict = "incorrect"
	VerdictAlreadyAdvanced Verdict = "already-advanced"
	VerdictInvalid         Verdict = "invalid"
)

// Outcome summarizes how a response was handled.
type Outcome struct {
	Verdict        Verdict `json:"verdict"`
	CorrectLetters string  `json:"correct,omitempty"`
	Rationale      string  `json:"explanation,omitempty"`
	Score          int     `json:"score"`
}

// SessionState is the lifecycle position of a quiz session.
type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateAwaitingAnswer SessionState = "awaiting-answer"
	StateFinished       SessionState = "finished"
)

// ScoreEntry is one row of a session scoreboard.
type ScoreEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// SessionInfo is a read-only snapshot of a running session.
type SessionInfo struct {
	ID        string       `json:"id"`
	ChannelID string       `json:"channelId"`
	GroupID   string       `json:"groupId"`
	Bank      string       `json:"bank"`
	Index     int          `json:"index"`
	Total     int          `json:"total"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"startedAt"`
}

// OptionLetter renders a 0-based option index as A, B, C...
func OptionLetter(i int) string {
	if i < 0 || i >= 26 {
		return "?"
	}
	return string(rune('A' + i))
}

// Letters renders indices as "A, C".
func Letters(indices []int) string {
	parts := make([]string, 0, len(indices))
	for _, idx := range indices {
		parts = append(parts, OptionLetter(idx))
	}
	return strings.Join(parts, ", ")
}

// StorageKey sanitizes a bank or group name for use as a persistence key.
func StorageKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	key := b.String()
	if len(key) > 80 {
		key = key[:80]
	}
	return key
}
