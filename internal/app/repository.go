package app

import (
	"context"

	"livequiz/internal/domain"
)

// GameRepository stores game sessions and their server-only answer keys.
// UpdateGame applies fn atomically to the latest stored game; an error from fn aborts without writing.
type GameRepository interface {
	CreateGame(ctx context.Context, game domain.Game) error
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	FindByPIN(ctx context.Context, pin string) (domain.Game, error)
	UpdateGame(ctx context.Context, gameID string, fn func(*domain.Game) error) (domain.Game, error)
	DeleteGame(ctx context.Context, gameID string) error
	SaveAnswerKeys(ctx context.Context, gameID string, keys []domain.AnswerKey) error
	GetAnswerKey(ctx context.Context, gameID string, questionIndex int) (domain.AnswerKey, error)
}

// PlayerRepository stores player documents. UpdatePlayer is the per-player
// compare-and-swap: fn sees the latest committed document and its changes are
// written only if nobody else wrote the player in between.
type PlayerRepository interface {
	AddPlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, gameID, playerID string) (domain.Player, error)
	ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error)
	UpdatePlayer(ctx context.Context, gameID, playerID string, fn func(*domain.Player) error) (domain.Player, error)
	DeletePlayers(ctx context.Context, gameID string) error
}

// LeaderboardRepository stores the per-game aggregate document.
// UpdateLeaderboard returns domain.ErrLeaderboardNotFound when the document does not exist.
type LeaderboardRepository interface {
	GetLeaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error)
	SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error
	UpdateLeaderboard(ctx context.Context, gameID string, fn func(*domain.Leaderboard) error) error
	DeleteLeaderboard(ctx context.Context, gameID string) error
}

// QuizRepository loads question sets (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultArchive keeps final standings after a game ends.
type ResultArchive interface {
	ArchiveResults(ctx context.Context, game domain.Game, players []domain.Player) error
}
