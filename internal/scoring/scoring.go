// Package scoring holds the pure answer-scoring rules. Nothing here touches storage.
package scoring

import (
	"fmt"
	"math"

	"livequiz/internal/domain"
)

const (
	// MaxPoints is awarded for an instant, fully correct answer.
	MaxPoints = 1000
	// MinCorrectPoints is the floor for a correct single-choice or free-response answer.
	MinCorrectPoints = 100
	// AccuracyWeight and SpeedWeight split the points of proportionally scored types.
	AccuracyWeight = 500
	SpeedWeight    = 500
	// WrongSelectionPenalty is subtracted from the multiple-choice ratio per wrong index.
	WrongSelectionPenalty = 0.2
	// DefaultSliderTolerance is the share of the slider range counted as correct when no error is configured.
	DefaultSliderTolerance = 0.05
)

// Result is the outcome of scoring one answer.
type Result struct {
	Points             int  `json:"points"`
	IsCorrect          bool `json:"isCorrect"`
	IsPartiallyCorrect bool `json:"isPartiallyCorrect"`
}

// Score computes points and correctness for an answer against the server-side answer key.
// timeRemaining is clipped into [0, key.TimeLimit].
func Score(key domain.AnswerKey, answer domain.Answer, timeRemaining float64) (Result, error) {
	if key.TimeLimit <= 0 {
		return Result{}, fmt.Errorf("%w: time limit must be positive", domain.ErrInvalidQuestion)
	}
	if key.Type.IsPoll() {
		return Result{}, nil
	}
	if IsNoAnswer(key.Type, answer) {
		return Result{}, nil
	}

	ratio := timeRatio(timeRemaining, key.TimeLimit)
	switch key.Type {
	case domain.SingleChoice:
		return scoreExact(answer.AnswerIndex == key.CorrectAnswerIndex, ratio), nil
	case domain.MultipleChoice:
		return scoreMultiple(key, answer.AnswerIndices, ratio)
	case domain.Slider:
		return scoreSlider(key, answer.SliderValue, ratio)
	case domain.FreeResponse:
		return scoreExact(MatchText(key, answer.TextAnswer), ratio), nil
	}
	return Result{}, fmt.Errorf("%w: %q", domain.ErrQuestionTypeInvalid, key.Type)
}

// IsNoAnswer reports whether the answer is the "no answer / timeout" sentinel for the type.
func IsNoAnswer(t domain.QuestionType, answer domain.Answer) bool {
	if answer.NoAnswer {
		return true
	}
	switch t {
	case domain.SingleChoice, domain.PollSingle:
		return answer.AnswerIndex == domain.NoAnswerIndex
	case domain.MultipleChoice, domain.PollMultiple:
		return len(answer.AnswerIndices) == 0 ||
			(len(answer.AnswerIndices) == 1 && answer.AnswerIndices[0] == domain.NoAnswerIndex)
	}
	return false
}

func timeRatio(timeRemaining float64, timeLimit int) float64 {
	if timeRemaining <= 0 || math.IsNaN(timeRemaining) {
		return 0
	}
	limit := float64(timeLimit)
	if timeRemaining > limit {
		timeRemaining = limit
	}
	return timeRemaining / limit
}

func scoreExact(correct bool, ratio float64) Result {
	if !correct {
		return Result{}
	}
	points := MinCorrectPoints + int(math.Round(ratio*float64(MaxPoints-MinCorrectPoints)))
	return Result{Points: clamp(points, MinCorrectPoints, MaxPoints), IsCorrect: true}
}

func scoreMultiple(key domain.AnswerKey, submitted []int, ratio float64) (Result, error) {
	totalCorrect := len(key.CorrectAnswerIndices)
	if totalCorrect == 0 {
		return Result{}, fmt.Errorf("%w: empty correct set", domain.ErrInvalidQuestion)
	}
	correctSet := make(map[int]struct{}, totalCorrect)
	for _, idx := range key.CorrectAnswerIndices {
		correctSet[idx] = struct{}{}
	}

	seen := make(map[int]struct{}, len(submitted))
	correctSelected, wrongSelected := 0, 0
	for _, idx := range submitted {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		if _, ok := correctSet[idx]; ok {
			correctSelected++
		} else {
			wrongSelected++
		}
	}

	correctRatio := float64(correctSelected) / float64(totalCorrect)
	penalty := float64(wrongSelected) * WrongSelectionPenalty
	multiplier := math.Max(0, correctRatio-penalty)

	full := correctSelected == totalCorrect && wrongSelected == 0
	return Result{
		Points:             weighted(multiplier, ratio),
		IsCorrect:          full,
		IsPartiallyCorrect: !full && multiplier > 0,
	}, nil
}

func scoreSlider(key domain.AnswerKey, value, ratio float64) (Result, error) {
	span := key.MaxValue - key.MinValue
	if span <= 0 {
		return Result{}, fmt.Errorf("%w: slider range is empty", domain.ErrInvalidQuestion)
	}
	distance := math.Abs(value - key.CorrectValue)
	accuracy := math.Max(0, 1-distance/span)
	return Result{
		Points:    weighted(accuracy*accuracy, ratio),
		IsCorrect: distance <= SliderThreshold(key),
	}, nil
}

// SliderThreshold is the maximum distance from the correct value still counted as correct.
func SliderThreshold(key domain.AnswerKey) float64 {
	if key.AcceptableError > 0 {
		return key.AcceptableError
	}
	return (key.MaxValue - key.MinValue) * 5 / 100
}

func weighted(multiplier, ratio float64) int {
	return int(math.Round(AccuracyWeight*multiplier)) + int(math.Round(SpeedWeight*ratio))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
