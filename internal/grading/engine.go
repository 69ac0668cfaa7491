package grading

import (
	"context"
	"encoding/json"
	"errors"
)

// Question types understood by the engine.
const (
	TypeSingleChoice = "single_choice"
	TypeTrueFalse    = "true_false"
	TypeShortAnswer  = "short_answer"
	TypeEssay        = "essay"
)

// Outcome is the tri-state verdict for a single answer. Essays stay
// ungraded until a manual grade is recorded.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomeUngraded  Outcome = "ungraded"
)

// ErrMalformedAnswer is returned when the submitted value's JSON shape does
// not match the question type (e.g. an array where an option id is expected).
var ErrMalformedAnswer = errors.New("malformed answer value")

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type      string
	Points    float64
	AnswerKey []string // correct option ids for choice types
	Answer    string   // canonical answer for short_answer
}

// Result is the outcome of grading a single question response.
type Result struct {
	Outcome Outcome
	Points  float64 // points awarded automatically
	Max     float64 // the question's max points
}

// Strategy grades a single question. The response arrives as the raw JSON
// value submitted by the client; each strategy validates the shape itself.
type Strategy interface {
	Grade(ctx context.Context, q Q, response json.RawMessage) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response json.RawMessage) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response json.RawMessage) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		// Unknown types require teacher review rather than silent zeroes.
		return Result{Outcome: OutcomeUngraded, Max: q.Points}, nil
	}
	return s.Grade(ctx, q, response)
}

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeSingleChoice: choiceStrategy{},
			TypeTrueFalse:    choiceStrategy{},
			TypeShortAnswer:  shortAnswerStrategy{},
			TypeEssay:        essayStrategy{},
		},
	}
}

// --- Strategies ---

type choiceStrategy struct{}

func (choiceStrategy) Grade(_ context.Context, q Q, response json.RawMessage) (Result, error) {
	res := Result{Outcome: OutcomeIncorrect, Max: q.Points}
	sel, err := decodeString(response)
	if err != nil {
		return res, err
	}
	// Exact match against the option(s) flagged correct; no partial credit.
	for _, k := range q.AnswerKey {
		if sel == k {
			res.Outcome = OutcomeCorrect
			res.Points = q.Points
			return res, nil
		}
	}
	return res, nil
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(_ context.Context, q Q, response json.RawMessage) (Result, error) {
	res := Result{Outcome: OutcomeIncorrect, Max: q.Points}
	text, err := decodeString(response)
	if err != nil {
		return res, err
	}
	// Single canonical answer, case-insensitive, whitespace-trimmed.
	if normalize(text) == normalize(q.Answer) {
		res.Outcome = OutcomeCorrect
		res.Points = q.Points
	}
	return res, nil
}

type essayStrategy struct{}

func (essayStrategy) Grade(_ context.Context, q Q, response json.RawMessage) (Result, error) {
	if _, err := decodeString(response); err != nil {
		return Result{Outcome: OutcomeIncorrect, Max: q.Points}, err
	}
	return Result{Outcome: OutcomeUngraded, Max: q.Points}, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", ErrMalformedAnswer
	}
	return s, nil
}
