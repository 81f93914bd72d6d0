package models

import "time"

// GameState представляет состояния игры, соответствующие CHECK-ограничению в БД.
type GameState string

const (
	GameStateWaiting  GameState = "WAITING"
	GameStateRunning  GameState = "RUNNING"
	GameStateFinished GameState = "FINISHED"
)

// Game представляет один ежедневный раунд.
type Game struct {
	ID          string    `json:"id" db:"id"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	State       GameState `json:"state" db:"state"`
	WinnerID    *string   `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Finished reports whether the game reached its terminal state.
func (g *Game) Finished() bool {
	return g.State == GameStateFinished
}
