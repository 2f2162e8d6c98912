package domain

import (
	"fmt"
	"strings"
)

// QuestionType discriminates question variants.
type QuestionType string

const (
	SingleChoice   QuestionType = "single-choice"
	MultipleChoice QuestionType = "multiple-choice"
	Slider         QuestionType = "slider"
	FreeResponse   QuestionType = "free-response"
	PollSingle     QuestionType = "poll-single"
	PollMultiple   QuestionType = "poll-multiple"
)

// DefaultTimeLimit is used when a question does not carry its own limit.
const DefaultTimeLimit = 20

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, Slider, FreeResponse, PollSingle, PollMultiple:
		return true
	}
	return false
}

// IsPoll reports whether answers of this type are never scored.
func (t QuestionType) IsPoll() bool {
	return t == PollSingle || t == PollMultiple
}

// HasOptions reports whether the type is answered by picking option indices.
func (t QuestionType) HasOptions() bool {
	switch t {
	case SingleChoice, MultipleChoice, PollSingle, PollMultiple:
		return true
	}
	return false
}

// IsMultiSelect reports whether the type accepts a set of indices.
func (t QuestionType) IsMultiSelect() bool {
	return t == MultipleChoice || t == PollMultiple
}

// Question is the authoritative authored question, answer key included.
type Question struct {
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	Options   []string     `json:"options,omitempty"`
	TimeLimit int          `json:"timeLimit,omitempty"`

	CorrectAnswerIndex   int      `json:"correctAnswerIndex,omitempty"`
	CorrectAnswerIndices []int    `json:"correctAnswerIndices,omitempty"`
	CorrectValue         float64  `json:"correctValue,omitempty"`
	MinValue             float64  `json:"minValue,omitempty"`
	MaxValue             float64  `json:"maxValue,omitempty"`
	AcceptableError      float64  `json:"acceptableError,omitempty"`
	CorrectText          string   `json:"correctAnswer,omitempty"`
	AcceptedAnswers      []string `json:"acceptedAnswers,omitempty"`
	CaseSensitive        bool     `json:"caseSensitive,omitempty"`
	AllowTypos           bool     `json:"allowTypos,omitempty"`
}

// AnswerKey is the server-only half of a question.
type AnswerKey struct {
	Type        QuestionType `json:"type"`
	TimeLimit   int          `json:"timeLimit"`
	OptionCount int          `json:"optionCount"`

	CorrectAnswerIndex   int      `json:"correctAnswerIndex"`
	CorrectAnswerIndices []int    `json:"correctAnswerIndices,omitempty"`
	CorrectValue         float64  `json:"correctValue"`
	MinValue             float64  `json:"minValue"`
	MaxValue             float64  `json:"maxValue"`
	AcceptableError      float64  `json:"acceptableError,omitempty"`
	CorrectText          string   `json:"correctAnswer,omitempty"`
	AcceptedAnswers      []string `json:"acceptedAnswers,omitempty"`
	CaseSensitive        bool     `json:"caseSensitive,omitempty"`
	AllowTypos           bool     `json:"allowTypos,omitempty"`
}

// PublicQuestion is what participants see; it carries no correct-answer fields.
type PublicQuestion struct {
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	Options   []string     `json:"options,omitempty"`
	TimeLimit int          `json:"timeLimit"`
	MinValue  float64      `json:"minValue,omitempty"`
	MaxValue  float64      `json:"maxValue,omitempty"`
}

// EffectiveTimeLimit returns the question's limit or the fallback when unset.
func (q Question) EffectiveTimeLimit(fallback int) int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeLimit
}

// Validate rejects question configurations that cannot be scored.
func (q Question) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrQuestionTypeInvalid, q.Type)
	}
	if q.TimeLimit < 0 {
		return fmt.Errorf("%w: negative time limit", ErrInvalidQuestion)
	}
	if q.Type.HasOptions() && len(q.Options) < 2 {
		return fmt.Errorf("%w: at least two options required", ErrInvalidQuestion)
	}
	switch q.Type {
	case SingleChoice:
		if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Options) {
			return fmt.Errorf("%w: correct index %d out of range", ErrInvalidQuestion, q.CorrectAnswerIndex)
		}
	case MultipleChoice:
		if len(q.CorrectAnswerIndices) == 0 {
			return fmt.Errorf("%w: empty correct set", ErrInvalidQuestion)
		}
		seen := make(map[int]struct{}, len(q.CorrectAnswerIndices))
		for _, idx := range q.CorrectAnswerIndices {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("%w: correct index %d out of range", ErrInvalidQuestion, idx)
			}
			if _, dup := seen[idx]; dup {
				return fmt.Errorf("%w: duplicate correct index %d", ErrInvalidQuestion, idx)
			}
			seen[idx] = struct{}{}
		}
	case Slider:
		if q.MaxValue <= q.MinValue {
			return fmt.Errorf("%w: slider range is empty", ErrInvalidQuestion)
		}
		if q.CorrectValue < q.MinValue || q.CorrectValue > q.MaxValue {
			return fmt.Errorf("%w: correct value outside range", ErrInvalidQuestion)
		}
		if q.AcceptableError < 0 {
			return fmt.Errorf("%w: negative acceptable error", ErrInvalidQuestion)
		}
	case FreeResponse:
		if strings.TrimSpace(q.CorrectText) == "" {
			return fmt.Errorf("%w: empty correct answer", ErrInvalidQuestion)
		}
	}
	return nil
}

// Key derives the server-only answer key.
func (q Question) Key(fallbackTimeLimit int) AnswerKey {
	return AnswerKey{
		Type:                 q.Type,
		TimeLimit:            q.EffectiveTimeLimit(fallbackTimeLimit),
		OptionCount:          len(q.Options),
		CorrectAnswerIndex:   q.CorrectAnswerIndex,
		CorrectAnswerIndices: append([]int(nil), q.CorrectAnswerIndices...),
		CorrectValue:         q.CorrectValue,
		MinValue:             q.MinValue,
		MaxValue:             q.MaxValue,
		AcceptableError:      q.AcceptableError,
		CorrectText:          q.CorrectText,
		AcceptedAnswers:      append([]string(nil), q.AcceptedAnswers...),
		CaseSensitive:        q.CaseSensitive,
		AllowTypos:           q.AllowTypos,
	}
}

// Public derives the sanitized participant view.
func (q Question) Public(fallbackTimeLimit int) PublicQuestion {
	pq := PublicQuestion{
		Type:      q.Type,
		Prompt:    q.Prompt,
		Options:   append([]string(nil), q.Options...),
		TimeLimit: q.EffectiveTimeLimit(fallbackTimeLimit),
	}
	if q.Type == Slider {
		pq.MinValue = q.MinValue
		pq.MaxValue = q.MaxValue
	}
	return pq
}
