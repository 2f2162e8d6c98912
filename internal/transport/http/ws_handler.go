package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"livequiz/internal/app"
	"livequiz/internal/domain"
)

// WSHandler streams game state and leaderboard changes to participants and accepts answers
// over the same connection.
type WSHandler struct {
	answers  *app.AnswerService
	games    *app.GameController
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewWSHandler(answers *app.AnswerService, games *app.GameController) *WSHandler {
	return &WSHandler{
		answers:  answers,
		games:    games,
		validate: newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// closeMessage is queued internally to send a close frame in order with events.
const closeMessage = "close"

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades GET /ws?gameId=...&playerId=... and relays hub events for the game.
// playerId is optional; without it the connection is read-only.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	playerID := r.URL.Query().Get("playerId")
	if gameID == "" {
		writeError(w, fmt.Errorf("%w: gameId", domain.ErrMissingField))
		return
	}
	game, err := h.games.GetGame(r.Context(), gameID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Re-read after subscribing so no change between the two is lost.
	updates, cancel := h.games.Hub().Subscribe(gameID)
	defer cancel()
	if latest, err := h.games.GetGame(r.Context(), gameID); err == nil {
		game = latest
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if msg.Type == closeMessage {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game closed"), time.Now().Add(time.Second))
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					// Game cancelled: close after the queued events are written.
					select {
					case send <- outboundMessage[any]{Type: closeMessage}:
					case <-closeSignals:
					}
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: app.EventState, Payload: game}
	if lb, err := h.games.Leaderboard(r.Context(), gameID); err == nil {
		send <- outboundMessage[any]{Type: app.EventLeaderboard, Payload: lb}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			send <- h.handleAnswer(r.Context(), gameID, playerID, inbound.Payload)
		default:
			send <- errorMessage(fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidAnswer, inbound.Type))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handleAnswer submits an answer for the connection's player. Game and player ids come from the
// connection, not the payload.
func (h *WSHandler) handleAnswer(ctx context.Context, gameID, playerID string, raw json.RawMessage) outboundMessage[any] {
	if playerID == "" {
		return errorMessage(fmt.Errorf("%w: playerId", domain.ErrMissingField))
	}
	var req submitAnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorMessage(fmt.Errorf("%w: %v", domain.ErrInvalidAnswer, err))
	}
	req.GameID = gameID
	req.PlayerID = playerID
	if err := h.validate.Struct(&req); err != nil {
		return errorMessage(validationError(err))
	}
	in := req.toDomain()
	res, err := h.answers.SubmitAnswer(ctx, in)
	if err != nil {
		return errorMessage(err)
	}
	go func() {
		if err := h.games.FinishIfAllAnswered(context.Background(), gameID, in.QuestionIndex); err != nil {
			log.Printf("auto finish game=%s question=%d: %v", gameID, in.QuestionIndex, err)
		}
	}()
	return outboundMessage[any]{Type: "answerResult", Payload: res}
}

func errorMessage(err error) outboundMessage[any] {
	code := domain.CodeOf(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		msg = "internal error"
	}
	return outboundMessage[any]{Type: "error", Payload: errorBody{Code: code, Message: msg}}
}
