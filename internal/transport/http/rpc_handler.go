package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"livequiz/internal/app"
	"livequiz/internal/domain"
)

// maxBodyBytes bounds RPC request bodies.
const maxBodyBytes = 64 << 10

// RPCHandler exposes the game operations as JSON-over-HTTP calls.
type RPCHandler struct {
	answers  *app.AnswerService
	games    *app.GameController
	validate *validator.Validate
}

func NewRPCHandler(answers *app.AnswerService, games *app.GameController) *RPCHandler {
	return &RPCHandler{
		answers:  answers,
		games:    games,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Register mounts every RPC route on mux.
func (h *RPCHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rpc/submitAnswer", h.submitAnswer)
	mux.HandleFunc("POST /rpc/computeQuestionResults", h.computeQuestionResults)
	mux.HandleFunc("POST /rpc/createGame", h.createGame)
	mux.HandleFunc("POST /rpc/joinGame", h.joinGame)
	mux.HandleFunc("POST /rpc/startGame", h.hostCall(h.games.StartGame))
	mux.HandleFunc("POST /rpc/startQuestion", h.hostCall(h.games.StartQuestion))
	mux.HandleFunc("POST /rpc/finishQuestion", h.hostCall(h.games.FinishQuestion))
	mux.HandleFunc("POST /rpc/nextQuestion", h.hostCall(h.games.NextQuestion))
	mux.HandleFunc("POST /rpc/cancelGame", h.cancelGame)
	mux.HandleFunc("GET /games/{pin}", h.gameByPIN)
	mux.HandleFunc("GET /leaderboard/{gameId}", h.leaderboard)
}

// submitAnswerRequest carries the answer fields. Answer-key fields sent by older clients
// (correctAnswerIndex, correctValue, ...) are not decoded; the server-side key is authoritative.
type submitAnswerRequest struct {
	GameID            string   `json:"gameId" validate:"required"`
	PlayerID          string   `json:"playerId" validate:"required"`
	QuestionIndex     *int     `json:"questionIndex" validate:"required,min=0"`
	QuestionType      string   `json:"questionType" validate:"required,oneof=single-choice multiple-choice slider free-response poll-single poll-multiple"`
	TimeRemaining     *float64 `json:"timeRemaining" validate:"required,min=0"`
	QuestionTimeLimit int      `json:"questionTimeLimit" validate:"min=0"`
	AnswerIndex       *int     `json:"answerIndex"`
	AnswerIndices     []int    `json:"answerIndices"`
	SliderValue       *float64 `json:"sliderValue"`
	TextAnswer        *string  `json:"textAnswer"`
}

func (r submitAnswerRequest) toDomain() app.SubmitRequest {
	return app.SubmitRequest{
		GameID:            r.GameID,
		PlayerID:          r.PlayerID,
		QuestionIndex:     *r.QuestionIndex,
		QuestionType:      domain.QuestionType(r.QuestionType),
		TimeRemaining:     *r.TimeRemaining,
		QuestionTimeLimit: r.QuestionTimeLimit,
		AnswerIndex:       r.AnswerIndex,
		AnswerIndices:     r.AnswerIndices,
		SliderValue:       r.SliderValue,
		TextAnswer:        r.TextAnswer,
	}
}

type computeResultsRequest struct {
	GameID        string `json:"gameId" validate:"required"`
	QuestionIndex *int   `json:"questionIndex" validate:"required,min=0"`
	QuestionType  string `json:"questionType" validate:"omitempty,oneof=single-choice multiple-choice slider free-response poll-single poll-multiple"`
}

type createGameRequest struct {
	QuizID string `json:"quizId" validate:"required"`
	HostID string `json:"hostId" validate:"required"`
}

type joinGameRequest struct {
	PIN         string `json:"pin" validate:"required,len=6,numeric"`
	DisplayName string `json:"displayName" validate:"required,max=32"`
}

type hostRequest struct {
	GameID string `json:"gameId" validate:"required"`
	HostID string `json:"hostId" validate:"required"`
}

func (h *RPCHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := req.toDomain()
	res, err := h.answers.SubmitAnswer(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)

	go func() {
		if err := h.games.FinishIfAllAnswered(context.Background(), in.GameID, in.QuestionIndex); err != nil {
			log.Printf("auto finish game=%s question=%d: %v", in.GameID, in.QuestionIndex, err)
		}
	}()
}

func (h *RPCHandler) computeQuestionResults(w http.ResponseWriter, r *http.Request) {
	var req computeResultsRequest
	if !h.decode(w, r, &req) {
		return
	}
	lb, err := h.games.ComputeQuestionResults(r.Context(), req.GameID, *req.QuestionIndex, domain.QuestionType(req.QuestionType))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *RPCHandler) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !h.decode(w, r, &req) {
		return
	}
	game, err := h.games.CreateGame(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *RPCHandler) joinGame(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if !h.decode(w, r, &req) {
		return
	}
	player, err := h.games.JoinGame(r.Context(), req.PIN, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

// hostCall adapts a host-only transition to an RPC endpoint.
func (h *RPCHandler) hostCall(fn func(ctx context.Context, gameID, hostID string) (domain.Game, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hostRequest
		if !h.decode(w, r, &req) {
			return
		}
		game, err := fn(r.Context(), req.GameID, req.HostID)
		if errors.Is(err, app.ErrResultsIncomplete) {
			// The transition happened; report it together with the failure.
			log.Printf("game %s transition with incomplete results: %v", req.GameID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"game":  game,
				"error": errorBody{Code: domain.CodeInternal, Message: err.Error()},
			})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, game)
	}
}

func (h *RPCHandler) cancelGame(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.games.CancelGame(r.Context(), req.GameID, req.HostID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *RPCHandler) gameByPIN(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.GetGameByPIN(r.Context(), r.PathValue("pin"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *RPCHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.games.Leaderboard(r.Context(), r.PathValue("gameId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// decode reads and validates a JSON body, writing the error response itself on failure.
func (h *RPCHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidAnswer, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, validationError(err))
		return false
	}
	return true
}

// validationError maps the first failed rule to a categorised error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAnswer, err)
	}
	fe := verrs[0]
	switch {
	case fe.Tag() == "required":
		return fmt.Errorf("%w: %s", domain.ErrMissingField, fe.Field())
	case fe.Field() == "timeRemaining":
		return fmt.Errorf("%w: must not be negative", domain.ErrInvalidTime)
	case fe.Field() == "questionType":
		return fmt.Errorf("%w: %v", domain.ErrQuestionTypeInvalid, fe.Value())
	default:
		return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidAnswer, fe.Field(), fe.Tag())
	}
}

type errorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		log.Printf("internal error: %v", err)
		if !errors.Is(err, domain.ErrConflict) {
			msg = "internal error"
		}
	}
	writeJSON(w, statusFor(code), map[string]errorBody{"error": {Code: code, Message: msg}})
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeFailedPrecondition:
		return http.StatusConflict
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
