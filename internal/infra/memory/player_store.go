package memory

import (
	"context"
	"sort"
	"sync"

	"livequiz/internal/domain"
)

// PlayerStore is an in-memory implementation of app.PlayerRepository.
// UpdatePlayer holds the store lock across read, fn and write, which makes it the compare-and-swap.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[string]map[string]domain.Player
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{players: make(map[string]map[string]domain.Player)}
}

func (s *PlayerStore) AddPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.players[player.GameID]
	if byID == nil {
		byID = make(map[string]domain.Player)
		s.players[player.GameID] = byID
	}
	for _, existing := range byID {
		if existing.DisplayName == player.DisplayName {
			return domain.ErrDisplayNameTaken
		}
	}
	byID[player.ID] = clonePlayer(player)
	return nil
}

func (s *PlayerStore) GetPlayer(_ context.Context, gameID, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[gameID][playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return clonePlayer(player), nil
}

// ListPlayers returns players ordered by join time.
func (s *PlayerStore) ListPlayers(_ context.Context, gameID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0, len(s.players[gameID]))
	for _, p := range s.players[gameID] {
		out = append(out, clonePlayer(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *PlayerStore) UpdatePlayer(_ context.Context, gameID, playerID string, fn func(*domain.Player) error) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[gameID][playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	working := clonePlayer(player)
	if err := fn(&working); err != nil {
		return domain.Player{}, err
	}
	s.players[gameID][playerID] = working
	return clonePlayer(working), nil
}

func (s *PlayerStore) DeletePlayers(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, gameID)
	return nil
}

func clonePlayer(p domain.Player) domain.Player {
	answers := make([]domain.AnswerRecord, len(p.Answers))
	for i, rec := range p.Answers {
		rec.Answer.AnswerIndices = append([]int(nil), rec.Answer.AnswerIndices...)
		answers[i] = rec
	}
	p.Answers = answers
	return p
}
