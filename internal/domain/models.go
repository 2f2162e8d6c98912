package domain

import "time"

// GameState is the lifecycle state of a game session.
type GameState string

const (
	StateLobby       GameState = "lobby"
	StatePreparing   GameState = "preparing"
	StateQuestion    GameState = "question"
	StateLeaderboard GameState = "leaderboard"
	StateEnded       GameState = "ended"
)

// Game is one live run of a question set.
type Game struct {
	ID                   string           `json:"id"`
	QuizID               string           `json:"quizId"`
	HostID               string           `json:"hostId,omitempty"`
	PIN                  string           `json:"pin"`
	State                GameState        `json:"state"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
	QuestionCount        int              `json:"questionCount"`
	Questions            []PublicQuestion `json:"questions,omitempty"`
	QuestionStartedAt    *time.Time       `json:"questionStartedAt,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// CurrentQuestion returns the sanitized question at the current index.
func (g Game) CurrentQuestion() (PublicQuestion, bool) {
	if g.CurrentQuestionIndex < 0 || g.CurrentQuestionIndex >= len(g.Questions) {
		return PublicQuestion{}, false
	}
	return g.Questions[g.CurrentQuestionIndex], true
}

// Public hides the host id, which doubles as the control credential.
func (g Game) Public() Game {
	g.HostID = ""
	return g
}

// IsLastQuestion reports whether the current question is the final one.
func (g Game) IsLastQuestion() bool {
	return g.CurrentQuestionIndex >= g.QuestionCount-1
}

// Answer is the raw submitted value. Which field is meaningful depends on the question type.
type Answer struct {
	AnswerIndex   int     `json:"answerIndex"`
	AnswerIndices []int   `json:"answerIndices,omitempty"`
	SliderValue   float64 `json:"sliderValue"`
	TextAnswer    string  `json:"textAnswer,omitempty"`
	NoAnswer      bool    `json:"noAnswer,omitempty"`
}

// NoAnswerIndex is the sentinel index for "no answer / timeout".
const NoAnswerIndex = -1

// Timeout is the answer recorded when a player never responded.
func Timeout() Answer {
	return Answer{AnswerIndex: NoAnswerIndex, NoAnswer: true}
}

// AnswerRecord is written once per (player, question) and never mutated.
type AnswerRecord struct {
	QuestionIndex      int       `json:"questionIndex"`
	Answer             Answer    `json:"answer"`
	Points             int       `json:"points"`
	IsCorrect          bool      `json:"isCorrect"`
	IsPartiallyCorrect bool      `json:"isPartiallyCorrect"`
	TimedOut           bool      `json:"timedOut"`
	AnsweredAt         time.Time `json:"answeredAt"`
}

// Player is one participant within a game.
type Player struct {
	ID          string         `json:"id"`
	GameID      string         `json:"gameId"`
	DisplayName string         `json:"displayName"`
	Score       int            `json:"score"`
	Streak      int            `json:"streak"`
	Answers     []AnswerRecord `json:"answers"`
	JoinedAt    time.Time      `json:"joinedAt"`
}

// AnswerFor returns the player's record for a question, if any.
func (p Player) AnswerFor(questionIndex int) (AnswerRecord, bool) {
	for _, rec := range p.Answers {
		if rec.QuestionIndex == questionIndex {
			return rec, true
		}
	}
	return AnswerRecord{}, false
}

// HasAnswered reports whether the player already has a record for the question.
func (p Player) HasAnswered(questionIndex int) bool {
	_, ok := p.AnswerFor(questionIndex)
	return ok
}

// LeaderboardEntry is one row of the top-N summary.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	LastDelta   int    `json:"lastDelta"`
	Streak      int    `json:"streak"`
}

// Leaderboard is the denormalized per-game aggregate. Clients only ever read it.
type Leaderboard struct {
	GameID         string             `json:"gameId"`
	QuestionIndex  int                `json:"questionIndex"`
	Entries        []LeaderboardEntry `json:"entries"`
	TotalPlayers   int                `json:"totalPlayers"`
	AnsweredCount  int                `json:"answeredCount"`
	ResponseCounts []int              `json:"responseCounts"`
	Finalized      bool               `json:"finalized"`
}

// Quiz is a question set authored ahead of time.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}
