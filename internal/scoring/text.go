package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"livequiz/internal/domain"
)

// MatchText reports whether a free-response answer matches the correct answer or an accepted alternate.
//
// Both sides are NFKC-normalised with whitespace collapsed, then case-folded unless the question is
// case sensitive. With typos allowed, a Levenshtein distance within TypoBudget of the candidate also matches.
func MatchText(key domain.AnswerKey, submitted string) bool {
	got := NormalizeText(submitted, key.CaseSensitive)
	if got == "" {
		return false
	}
	candidates := append([]string{key.CorrectText}, key.AcceptedAnswers...)
	for _, c := range candidates {
		want := NormalizeText(c, key.CaseSensitive)
		if want == "" {
			continue
		}
		if got == want {
			return true
		}
		if key.AllowTypos && levenshtein.ComputeDistance(got, want) <= TypoBudget(want) {
			return true
		}
	}
	return false
}

// NormalizeText applies the free-response comparison normalisation.
func NormalizeText(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
	if !caseSensitive {
		s = cases.Fold().String(s)
	}
	return s
}

// TypoBudget is the number of single-rune edits tolerated for an expected answer.
// Answers of three runes or fewer must match exactly.
func TypoBudget(expected string) int {
	n := utf8.RuneCountInString(expected)
	switch {
	case n <= 3:
		return 0
	case n <= 8:
		return 1
	default:
		return 2
	}
}
