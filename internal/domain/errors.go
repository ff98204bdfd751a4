package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionExists is returned when a channel already runs a quiz.
	ErrSessionExists = errors.New("a quiz is already running in this channel")
	// ErrNothingRunning is returned when stop is requested for an idle channel.
	ErrNothingRunning = errors.New("nothing running")
	// ErrBankNotFound indicates the requested bank does not exist in the group.
	ErrBankNotFound = errors.New("bank not found")
	// ErrEmptyBank indicates a bank without questions was chosen.
	ErrEmptyBank = errors.New("bank has no questions")
	// ErrForbidden is returned when a privileged command lacks admin capability.
	ErrForbidden = errors.New("admin capability required")
	// ErrParseFailure marks CSV header sets that miss required roles.
	ErrParseFailure = errors.New("csv parse failure")
	// ErrEmptyResult marks imports where no row survived validation.
	ErrEmptyResult = errors.New("no valid questions")
	// ErrTransport wraps attachment fetch failures.
	ErrTransport = errors.New("transport failure")
	// ErrPersistence wraps bank store write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrInteractionExpired is returned by transports when the platform already invalidated an interaction.
	ErrInteractionExpired = errors.New("interaction expired")
)

// ParseError reports a header row that cannot be mapped to question fields.
type ParseError struct {
	Headers []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("csv needs question, answer and options columns (a..z or options); found headers: %s",
		strings.Join(e.Headers, ", "))
}

func (e *ParseError) Unwrap() error { return ErrParseFailure }

// EmptyResultError reports a structurally valid CSV whose rows were all dropped.
type EmptyResultError struct {
	Headers []string
	Rows    int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no valid questions in %d rows; headers: %s", e.Rows, strings.Join(e.Headers, ", "))
}

func (e *EmptyResultError) Unwrap() error { return ErrEmptyResult }
