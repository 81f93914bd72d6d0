package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lastholder/button-system/models"
	"github.com/lib/pq"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameIDConflict = errors.New("game id already exists")

	// ErrGameStateConflict means a conditional state update matched zero rows:
	// the game's current state no longer equals the expected one. Callers that
	// race on the RUNNING -> FINISHED transition treat this as losing the race,
	// re-read the row and report the already-finished result.
	ErrGameStateConflict = errors.New("game state changed concurrently")
)

type GameRepository interface {
	Create(ctx context.Context, game *models.Game) error
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Game, error)
	FindByScheduledRange(ctx context.Context, from, to time.Time) (*models.Game, error)
	UpdateState(ctx context.Context, exec SQLExecutor, id string, from, to models.GameState) error
	Finish(ctx context.Context, exec SQLExecutor, id string, winnerID *string) error
	ListDueForStart(ctx context.Context, now time.Time) ([]*models.Game, error)
	DeleteAll(ctx context.Context) error
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const gameColumns = `id, scheduled_at, state, winner_id, created_at, updated_at`

func (r *postgresGameRepository) scanGame(rowScanner interface {
	Scan(dest ...interface{}) error
}, g *models.Game) error {
	return rowScanner.Scan(
		&g.ID,
		&g.ScheduledAt,
		&g.State,
		&g.WinnerID,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
}

func (r *postgresGameRepository) Create(ctx context.Context, g *models.Game) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO games (id, scheduled_at, state)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := executor.QueryRowContext(ctx, query, g.ID, g.ScheduledAt, g.State).
		Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrGameIDConflict
		}
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (r *postgresGameRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Game, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	g := &models.Game{}
	err := r.scanGame(executor.QueryRowContext(ctx, query, id), g)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// FindByScheduledRange returns the earliest game scheduled inside [from, to).
// Ordering makes it stable when two instances raced on daily creation: every
// reader converges on the same row.
func (r *postgresGameRepository) FindByScheduledRange(ctx context.Context, from, to time.Time) (*models.Game, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at ASC, created_at ASC, id ASC
		LIMIT 1`

	g := &models.Game{}
	err := r.scanGame(executor.QueryRowContext(ctx, query, from, to), g)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to find game by schedule: %w", err)
	}
	return g, nil
}

// UpdateState is the conditional lifecycle transition: the write applies only
// if the current state still equals from.
func (r *postgresGameRepository) UpdateState(ctx context.Context, exec SQLExecutor, id string, from, to models.GameState) error {
	executor := r.getExecutor(exec)
	query := `UPDATE games SET state = $1, updated_at = NOW() WHERE id = $2 AND state = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update game state: %w", err)
	}
	return checkAffectedRows(result, ErrGameStateConflict)
}

// Finish transitions RUNNING -> FINISHED and records the winner (nil when all
// participants were eliminated). Exactly one concurrent caller succeeds; the
// rest get ErrGameStateConflict.
func (r *postgresGameRepository) Finish(ctx context.Context, exec SQLExecutor, id string, winnerID *string) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE games
		SET state = $1, winner_id = $2, updated_at = NOW()
		WHERE id = $3 AND state = $4`
	result, err := executor.ExecContext(ctx, query, models.GameStateFinished, winnerID, id, models.GameStateRunning)
	if err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}
	return checkAffectedRows(result, ErrGameStateConflict)
}

func (r *postgresGameRepository) ListDueForStart(ctx context.Context, now time.Time) ([]*models.Game, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE state = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC`

	rows, err := executor.QueryContext(ctx, query, models.GameStateWaiting, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query games due for start: %w", err)
	}
	defer rows.Close()

	games := make([]*models.Game, 0)
	for rows.Next() {
		var g models.Game
		if scanErr := r.scanGame(rows, &g); scanErr != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", scanErr)
		}
		games = append(games, &g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}
	return games, nil
}

func (r *postgresGameRepository) DeleteAll(ctx context.Context) error {
	executor := r.getExecutor(nil)
	if _, err := executor.ExecContext(ctx, `DELETE FROM games`); err != nil {
		return fmt.Errorf("failed to delete games: %w", err)
	}
	return nil
}
