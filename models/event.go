package models

import "time"

// EventType перечисляет закрытый набор событий, рассылаемых подписчикам.
type EventType string

const (
	EventPlayerUpdate EventType = "player_update"
	EventGameStarted  EventType = "game_started"
	EventGameOver     EventType = "game_over"
)

// GameEvent is the envelope pushed to every subscriber of a game room.
type GameEvent struct {
	Type    EventType   `json:"type"`
	GameID  string      `json:"game_id"`
	Payload interface{} `json:"payload,omitempty"`
}

// PlayerUpdatePayload carries the current holder tally.
type PlayerUpdatePayload struct {
	HoldingCount int `json:"holding_count"`
}

// GameStartedPayload marks the WAITING -> RUNNING transition.
type GameStartedPayload struct {
	StartedAt time.Time `json:"started_at"`
}

// GameOverPayload carries the outcome; both fields are null when everyone
// released before a winner could be promoted.
type GameOverPayload struct {
	WinnerID     *string `json:"winner_id"`
	WinnerUserID *string `json:"winner_user_id"`
}

func NewPlayerUpdateEvent(gameID string, holding int) GameEvent {
	return GameEvent{
		Type:    EventPlayerUpdate,
		GameID:  gameID,
		Payload: PlayerUpdatePayload{HoldingCount: holding},
	}
}

func NewGameStartedEvent(gameID string, startedAt time.Time) GameEvent {
	return GameEvent{
		Type:    EventGameStarted,
		GameID:  gameID,
		Payload: GameStartedPayload{StartedAt: startedAt},
	}
}

func NewGameOverEvent(gameID string, winnerID, winnerUserID *string) GameEvent {
	return GameEvent{
		Type:    EventGameOver,
		GameID:  gameID,
		Payload: GameOverPayload{WinnerID: winnerID, WinnerUserID: winnerUserID},
	}
}
