package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"livequiz/internal/app"
	"livequiz/internal/domain"
)

// GameResult is one player's final standing in an ended game.
type GameResult struct {
	bun.BaseModel `bun:"table:game_results"`

	GameID       string    `bun:"game_id,pk"`
	PlayerID     string    `bun:"player_id,pk"`
	QuizID       string    `bun:"quiz_id,notnull"`
	DisplayName  string    `bun:"display_name,notnull"`
	Rank         int       `bun:"rank,notnull"`
	Score        int       `bun:"score,notnull"`
	CorrectCount int       `bun:"correct_count,notnull"`
	EndedAt      time.Time `bun:"ended_at,notnull"`
}

// ResultArchive writes final standings once a game ends.
type ResultArchive struct {
	db *bun.DB
}

func NewResultArchive(db *bun.DB) *ResultArchive {
	return &ResultArchive{db: db}
}

// ArchiveResults upserts one row per player; re-archiving a game overwrites its rows.
func (a *ResultArchive) ArchiveResults(ctx context.Context, game domain.Game, players []domain.Player) error {
	rows := resultRows(game, players)
	if len(rows) == 0 {
		return nil
	}
	_, err := a.db.NewInsert().
		Model(&rows).
		On("CONFLICT (game_id, player_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("rank = EXCLUDED.rank").
		Set("score = EXCLUDED.score").
		Set("correct_count = EXCLUDED.correct_count").
		Set("ended_at = EXCLUDED.ended_at").
		Exec(ctx)
	return err
}

// ListResults returns the archived standings of a game ordered by rank.
func (a *ResultArchive) ListResults(ctx context.Context, gameID string) ([]GameResult, error) {
	var rows []GameResult
	err := a.db.NewSelect().
		Model(&rows).
		Where("game_id = ?", gameID).
		Order("rank ASC", "display_name ASC").
		Scan(ctx)
	return rows, err
}

func resultRows(game domain.Game, players []domain.Player) []GameResult {
	standings := app.BuildLeaderboard(game.ID, players, game.CurrentQuestionIndex, domain.PublicQuestion{}, len(players))
	correct := make(map[string]int, len(players))
	for _, p := range players {
		for _, rec := range p.Answers {
			if rec.IsCorrect {
				correct[p.ID]++
			}
		}
	}
	rows := make([]GameResult, 0, len(standings.Entries))
	for _, e := range standings.Entries {
		rows = append(rows, GameResult{
			GameID:       game.ID,
			PlayerID:     e.PlayerID,
			QuizID:       game.QuizID,
			DisplayName:  e.DisplayName,
			Rank:         e.Rank,
			Score:        e.Score,
			CorrectCount: correct[e.PlayerID],
			EndedAt:      game.UpdatedAt,
		})
	}
	return rows
}
