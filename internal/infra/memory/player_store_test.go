package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"livequiz/internal/domain"
)

func TestPlayerStoreUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore()
	if err := store.AddPlayer(ctx, domain.Player{ID: "p1", GameID: "g1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("add player: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdatePlayer(ctx, "g1", "p1", func(p *domain.Player) error {
				if p.HasAnswered(0) {
					return domain.ErrAlreadyAnswered
				}
				p.Answers = append(p.Answers, domain.AnswerRecord{QuestionIndex: 0, Points: 500})
				p.Score += 500
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrAlreadyAnswered) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	player, err := store.GetPlayer(ctx, "g1", "p1")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if wins != 1 || player.Score != 500 || len(player.Answers) != 1 {
		t.Fatalf("expected exactly one write, got wins=%d score=%d answers=%d", wins, player.Score, len(player.Answers))
	}
}

func TestPlayerStoreRejectsDuplicateNames(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore()
	_ = store.AddPlayer(ctx, domain.Player{ID: "p1", GameID: "g1", DisplayName: "Alice"})
	err := store.AddPlayer(ctx, domain.Player{ID: "p2", GameID: "g1", DisplayName: "Alice"})
	if !errors.Is(err, domain.ErrDisplayNameTaken) {
		t.Fatalf("expected display name taken, got %v", err)
	}
	if err := store.AddPlayer(ctx, domain.Player{ID: "p3", GameID: "g2", DisplayName: "Alice"}); err != nil {
		t.Fatalf("same name in another game should be allowed: %v", err)
	}
}

func TestPlayerStoreDeletedGame(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore()
	_ = store.AddPlayer(ctx, domain.Player{ID: "p1", GameID: "g1", DisplayName: "Alice"})
	_ = store.DeletePlayers(ctx, "g1")

	_, err := store.UpdatePlayer(ctx, "g1", "p1", func(p *domain.Player) error { return nil })
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}
