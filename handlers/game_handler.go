package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lastholder/button-system/middleware"
	"github.com/lastholder/button-system/services"
)

type GameHandler struct {
	gameService        services.GameService
	eliminationService services.EliminationService
}

func NewGameHandler(gs services.GameService, es services.EliminationService) *GameHandler {
	return &GameHandler{
		gameService:        gs,
		eliminationService: es,
	}
}

// CurrentHandler обрабатывает GET /games/current
// @Summary Сегодняшняя игра (создаётся при первом обращении)
func (h *GameHandler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	game, err := h.gameService.EnsureDailyGame(r.Context(), time.Now())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /games/{gameID}
func (h *GameHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := getGameIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.gameService.GetGame(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// JoinHandler обрабатывает POST /games/{gameID}/join
// @Summary Встать на кнопку (upsert участия, сброс в HOLDING только до старта)
func (h *GameHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := getGameIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	player, err := h.gameService.Join(r.Context(), gameID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"player": player}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartHandler обрабатывает POST /games/{gameID}/start
// @Summary Запуск игры (no-op, если уже RUNNING/FINISHED)
func (h *GameHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := getGameIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	game, err := h.gameService.StartGame(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EliminateHandler обрабатывает POST /games/{gameID}/eliminate
// @Summary Игрок отпустил кнопку
func (h *GameHandler) EliminateHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := getGameIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.eliminationService.Eliminate(r.Context(), gameID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, outcome, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func getGameIDFromURL(r *http.Request) (string, error) {
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		return "", errors.New("missing gameID URL parameter")
	}
	return gameID, nil
}
