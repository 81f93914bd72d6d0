package handlers

import (
	"net/http"

	"github.com/lastholder/button-system/services"
)

type AdminHandler struct {
	gameService services.GameService
}

func NewAdminHandler(gs services.GameService) *AdminHandler {
	return &AdminHandler{gameService: gs}
}

// ResetHandler обрабатывает DELETE /admin/reset
// @Summary Полный сброс (только для тестов и эксплуатации)
func (h *AdminHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.ResetAll(r.Context()); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "all games and players deleted"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
