package scoring

import "livequiz/internal/domain"

// NextStreak returns the consecutive-correct counter after an answer.
// Polls leave it untouched; any other miss, timeouts included, resets it.
func NextStreak(t domain.QuestionType, isCorrect bool, current int) int {
	if t.IsPoll() {
		return current
	}
	if isCorrect {
		return current + 1
	}
	return 0
}
