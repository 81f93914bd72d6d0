package models

import "time"

// PlayerStatus представляет статусы участника в рамках одной игры.
type PlayerStatus string

const (
	PlayerStatusHolding    PlayerStatus = "HOLDING"
	PlayerStatusEliminated PlayerStatus = "ELIMINATED"
	PlayerStatusWinner     PlayerStatus = "WINNER"
)

// Player is one participation row: a user inside one game. A user has at most
// one row per game because the row id is derived from (gameID, userID).
type Player struct {
	ID           string       `json:"id" db:"id"`
	GameID       string       `json:"game_id" db:"game_id"`
	UserID       string       `json:"user_id" db:"user_id"`
	Status       PlayerStatus `json:"status" db:"status"`
	JoinedAt     time.Time    `json:"joined_at" db:"joined_at"`
	EliminatedAt *time.Time   `json:"eliminated_at,omitempty" db:"eliminated_at"`
}

// PlayerID derives the deterministic row id, making joins upsert-safe.
func PlayerID(gameID, userID string) string {
	return gameID + "-" + userID
}
