package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/lastholder/button-system/handlers"
	"github.com/lastholder/button-system/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	identity *middleware.Identity,
	adminKeyHash string,
	gameHandler *handlers.GameHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key"},
		AllowCredentials: false,
	}))

	router.Get("/healthz", healthHandler.LivenessHandler)

	router.Route("/games", func(r chi.Router) {
		r.Use(identity.Assign)

		r.Get("/current", gameHandler.CurrentHandler)
		r.Get("/{gameID}", gameHandler.GetByIDHandler)
		r.Post("/{gameID}/join", gameHandler.JoinHandler)
		r.Post("/{gameID}/start", gameHandler.StartHandler)
		r.Post("/{gameID}/eliminate", gameHandler.EliminateHandler)
	})

	router.Get("/ws/games/{gameID}", webSocketHandler.ServeWs)

	// Административные маршруты только по ключу
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminKey(adminKeyHash))
		r.Delete("/admin/reset", adminHandler.ResetHandler)
	})
}
