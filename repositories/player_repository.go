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
	ErrPlayerNotFound    = errors.New("player not found")
	ErrPlayerGameInvalid = errors.New("invalid game reference for player")

	// ErrJoinClosed means the gated upsert matched no WAITING game: either the
	// game does not exist or it already left the WAITING state.
	ErrJoinClosed = errors.New("joining is closed for this game")

	// ErrPlayerNotHolding means a conditional status update matched zero rows:
	// the player is already ELIMINATED or WINNER, or does not exist. For
	// eliminations this is the expected idempotent re-invocation path.
	ErrPlayerNotHolding = errors.New("player is not holding")
)

type PlayerRepository interface {
	JoinWhileWaiting(ctx context.Context, p *models.Player) error
	FindByID(ctx context.Context, exec SQLExecutor, id string) (*models.Player, error)
	ListByGame(ctx context.Context, gameID string) ([]*models.Player, error)
	ListHolders(ctx context.Context, exec SQLExecutor, gameID string) ([]*models.Player, error)
	CountHolders(ctx context.Context, exec SQLExecutor, gameID string) (int, error)
	CountByGame(ctx context.Context, exec SQLExecutor, gameID string) (int, error)
	EliminateIfHolding(ctx context.Context, exec SQLExecutor, id string, eliminatedAt time.Time) error
	PromoteWinnerIfHolding(ctx context.Context, exec SQLExecutor, id string) error
	DeleteAll(ctx context.Context) error
}

type postgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) PlayerRepository {
	return &postgresPlayerRepository{db: db}
}

func (r *postgresPlayerRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const playerColumns = `id, game_id, user_id, status, joined_at, eliminated_at`

func (r *postgresPlayerRepository) scanPlayer(rowScanner interface {
	Scan(dest ...interface{}) error
}, p *models.Player) error {
	return rowScanner.Scan(
		&p.ID,
		&p.GameID,
		&p.UserID,
		&p.Status,
		&p.JoinedAt,
		&p.EliminatedAt,
	)
}

// JoinWhileWaiting upserts the participation row. Both the insert and the
// conflict branch are gated on the game still being WAITING, so a reset back
// to HOLDING can never happen once the game started. Zero rows means the
// game is missing or no longer accepts joins.
func (r *postgresPlayerRepository) JoinWhileWaiting(ctx context.Context, p *models.Player) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO players (id, game_id, user_id, status)
		SELECT $1, g.id, $3, $4
		FROM games g
		WHERE g.id = $2 AND g.state = $5
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, eliminated_at = NULL
		RETURNING ` + playerColumns

	err := r.scanPlayer(executor.QueryRowContext(ctx, query,
		p.ID, p.GameID, p.UserID, models.PlayerStatusHolding, models.GameStateWaiting,
	), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJoinClosed
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrPlayerGameInvalid
		}
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

func (r *postgresPlayerRepository) findOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Player, error) {
	p := &models.Player{}
	err := r.scanPlayer(exec.QueryRowContext(ctx, query, args...), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	return p, nil
}

func (r *postgresPlayerRepository) FindByID(ctx context.Context, exec SQLExecutor, id string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	return r.findOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresPlayerRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Player, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	players := make([]*models.Player, 0)
	for rows.Next() {
		var p models.Player
		if scanErr := r.scanPlayer(rows, &p); scanErr != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", scanErr)
		}
		players = append(players, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player rows: %w", err)
	}
	return players, nil
}

func (r *postgresPlayerRepository) ListByGame(ctx context.Context, gameID string) ([]*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE game_id = $1 ORDER BY joined_at ASC`
	return r.list(ctx, r.getExecutor(nil), query, gameID)
}

func (r *postgresPlayerRepository) ListHolders(ctx context.Context, exec SQLExecutor, gameID string) ([]*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE game_id = $1 AND status = $2 ORDER BY joined_at ASC`
	return r.list(ctx, r.getExecutor(exec), query, gameID, models.PlayerStatusHolding)
}

func (r *postgresPlayerRepository) CountHolders(ctx context.Context, exec SQLExecutor, gameID string) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	query := `SELECT COUNT(*) FROM players WHERE game_id = $1 AND status = $2`
	if err := executor.QueryRowContext(ctx, query, gameID, models.PlayerStatusHolding).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count holders: %w", err)
	}
	return count, nil
}

func (r *postgresPlayerRepository) CountByGame(ctx context.Context, exec SQLExecutor, gameID string) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	query := `SELECT COUNT(*) FROM players WHERE game_id = $1`
	if err := executor.QueryRowContext(ctx, query, gameID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

// EliminateIfHolding is the atomic one-way HOLDING -> ELIMINATED transition.
// eliminated_at is written exactly once because the predicate rejects rows
// that already left HOLDING.
func (r *postgresPlayerRepository) EliminateIfHolding(ctx context.Context, exec SQLExecutor, id string, eliminatedAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE players SET status = $1, eliminated_at = $2 WHERE id = $3 AND status = $4`
	result, err := executor.ExecContext(ctx, query,
		models.PlayerStatusEliminated, eliminatedAt, id, models.PlayerStatusHolding,
	)
	if err != nil {
		return fmt.Errorf("failed to eliminate player: %w", err)
	}
	return checkAffectedRows(result, ErrPlayerNotHolding)
}

// PromoteWinnerIfHolding is the atomic HOLDING -> WINNER transition. Run it
// inside the same transaction as GameRepository.Finish so the two writes are
// observed all-or-nothing.
func (r *postgresPlayerRepository) PromoteWinnerIfHolding(ctx context.Context, exec SQLExecutor, id string) error {
	executor := r.getExecutor(exec)
	query := `UPDATE players SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query,
		models.PlayerStatusWinner, id, models.PlayerStatusHolding,
	)
	if err != nil {
		return fmt.Errorf("failed to promote winner: %w", err)
	}
	return checkAffectedRows(result, ErrPlayerNotHolding)
}

func (r *postgresPlayerRepository) DeleteAll(ctx context.Context) error {
	executor := r.getExecutor(nil)
	if _, err := executor.ExecContext(ctx, `DELETE FROM players`); err != nil {
		return fmt.Errorf("failed to delete players: %w", err)
	}
	return nil
}
