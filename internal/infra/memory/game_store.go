package memory

import (
	"context"
	"sync"

	"livequiz/internal/domain"
)

// GameStore is an in-memory implementation of app.GameRepository.
type GameStore struct {
	mu    sync.RWMutex
	games map[string]domain.Game
	pins  map[string]string
	keys  map[string][]domain.AnswerKey
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[string]domain.Game),
		pins:  make(map[string]string),
		keys:  make(map[string][]domain.AnswerKey),
	}
}

func (s *GameStore) CreateGame(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[game.PIN]; ok {
		return domain.ErrPINTaken
	}
	s.games[game.ID] = cloneGame(game)
	s.pins[game.PIN] = game.ID
	return nil
}

func (s *GameStore) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return cloneGame(game), nil
}

func (s *GameStore) FindByPIN(_ context.Context, pin string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return cloneGame(s.games[id]), nil
}

func (s *GameStore) UpdateGame(_ context.Context, gameID string, fn func(*domain.Game) error) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	working := cloneGame(game)
	if err := fn(&working); err != nil {
		return domain.Game{}, err
	}
	s.games[gameID] = working
	return cloneGame(working), nil
}

func (s *GameStore) DeleteGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game, ok := s.games[gameID]; ok {
		delete(s.pins, game.PIN)
	}
	delete(s.games, gameID)
	delete(s.keys, gameID)
	return nil
}

func (s *GameStore) SaveAnswerKeys(_ context.Context, gameID string, keys []domain.AnswerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.ErrGameNotFound
	}
	s.keys[gameID] = append([]domain.AnswerKey(nil), keys...)
	return nil
}

func (s *GameStore) GetAnswerKey(_ context.Context, gameID string, questionIndex int) (domain.AnswerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.AnswerKey{}, domain.ErrGameNotFound
	}
	keys := s.keys[gameID]
	if questionIndex < 0 || questionIndex >= len(keys) {
		return domain.AnswerKey{}, domain.ErrQuestionNotFound
	}
	return keys[questionIndex], nil
}

func cloneGame(g domain.Game) domain.Game {
	g.Questions = append([]domain.PublicQuestion(nil), g.Questions...)
	if g.QuestionStartedAt != nil {
		started := *g.QuestionStartedAt
		g.QuestionStartedAt = &started
	}
	return g
}
