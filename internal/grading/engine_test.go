package grading

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestChoiceGrading(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: TypeSingleChoice, Points: 2, AnswerKey: []string{"b"}}

	tests := []struct {
		name    string
		value   string
		outcome Outcome
		points  float64
	}{
		{"correct option", `"b"`, OutcomeCorrect, 2},
		{"wrong option", `"a"`, OutcomeIncorrect, 0},
		{"unknown option id", `"zzz"`, OutcomeIncorrect, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, json.RawMessage(tc.value))
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if res.Outcome != tc.outcome || res.Points != tc.points {
				t.Fatalf("got outcome=%s points=%v, want %s/%v", res.Outcome, res.Points, tc.outcome, tc.points)
			}
		})
	}
}

func TestChoiceMalformedValue(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: TypeSingleChoice, Points: 1, AnswerKey: []string{"a"}}
	for _, raw := range []string{`["a"]`, `42`, `{"id":"a"}`} {
		_, err := g.Grade(context.Background(), q, json.RawMessage(raw))
		if !errors.Is(err, ErrMalformedAnswer) {
			t.Fatalf("value %s: got err=%v, want ErrMalformedAnswer", raw, err)
		}
	}
}

func TestTrueFalseUsesChoiceStrategy(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: TypeTrueFalse, Points: 1, AnswerKey: []string{"true"}}
	res, err := g.Grade(context.Background(), q, json.RawMessage(`"true"`))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Outcome != OutcomeCorrect || res.Points != 1 {
		t.Fatalf("got %+v, want correct for 1 point", res)
	}
}

func TestShortAnswerNormalization(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: TypeShortAnswer, Points: 3, Answer: "New York"}

	tests := []struct {
		value   string
		outcome Outcome
	}{
		{`"New York"`, OutcomeCorrect},
		{`"new york"`, OutcomeCorrect},
		{`"  NEW   YORK  "`, OutcomeCorrect},
		{`"new jersey"`, OutcomeIncorrect},
		{`"newyork"`, OutcomeIncorrect},
	}
	for _, tc := range tests {
		res, err := g.Grade(context.Background(), q, json.RawMessage(tc.value))
		if err != nil {
			t.Fatalf("grade %s: %v", tc.value, err)
		}
		if res.Outcome != tc.outcome {
			t.Fatalf("value %s: got %s, want %s", tc.value, res.Outcome, tc.outcome)
		}
	}
}

func TestEssayStaysUngraded(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: TypeEssay, Points: 5}
	res, err := g.Grade(context.Background(), q, json.RawMessage(`"my long essay text"`))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Outcome != OutcomeUngraded {
		t.Fatalf("got %s, want ungraded", res.Outcome)
	}
	if res.Points != 0 || res.Max != 5 {
		t.Fatalf("got points=%v max=%v, want 0/5", res.Points, res.Max)
	}
}

func TestUnknownTypeIsUngraded(t *testing.T) {
	g := NewDefaultGrader()
	res, err := g.Grade(context.Background(), Q{Type: "matching", Points: 4}, json.RawMessage(`"x"`))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Outcome != OutcomeUngraded || res.Max != 4 {
		t.Fatalf("got %+v, want ungraded with max 4", res)
	}
}
