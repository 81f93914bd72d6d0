package services

import "errors"

// Общие ошибки сервисного слоя, используемые в маппинге HTTP.
var (
	// Ресурсы не найдены
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")

	// Нарушения жизненного цикла
	ErrGameNotRunning = errors.New("game has not started")
	ErrJoinClosed     = errors.New("joining is closed for this game")

	// ErrStoreUnavailable wraps persistence failures. The mutation must be
	// treated as not applied; callers may safely retry because every core
	// operation is idempotent.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrResolutionUnsettled is returned when winner resolution kept observing
	// a moving holder set beyond its retry budget. Persisted state stays
	// consistent; the next elimination or resolution call settles it.
	ErrResolutionUnsettled = errors.New("winner resolution did not settle")
)
