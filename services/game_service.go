package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid"
	"github.com/lastholder/button-system/models"
	"github.com/lastholder/button-system/repositories"
)

// GameView объединяет игру с её участниками для чтения состояния.
type GameView struct {
	Game         *models.Game     `json:"game"`
	Players      []*models.Player `json:"players"`
	HoldingCount int              `json:"holding_count"`
}

// GameService is the lifecycle controller: it owns game creation, joining and
// the WAITING -> RUNNING transition. RUNNING -> FINISHED belongs exclusively
// to the EliminationService.
type GameService interface {
	EnsureDailyGame(ctx context.Context, now time.Time) (*models.Game, error)
	GetGame(ctx context.Context, gameID string) (*GameView, error)
	Join(ctx context.Context, gameID, userID string) (*models.Player, error)
	StartGame(ctx context.Context, gameID string) (*models.Game, error)
	AutoStartDueGames(ctx context.Context, now time.Time) error
	ResetAll(ctx context.Context) error
}

type gameService struct {
	gameRepo    repositories.GameRepository
	playerRepo  repositories.PlayerRepository
	notifier    Notifier
	logger      *slog.Logger
	startOffset time.Duration // time of day new daily games are scheduled at
}

func NewGameService(
	gameRepo repositories.GameRepository,
	playerRepo repositories.PlayerRepository,
	notifier Notifier,
	logger *slog.Logger,
	startOffset time.Duration,
) GameService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &gameService{
		gameRepo:    gameRepo,
		playerRepo:  playerRepo,
		notifier:    notifier,
		logger:      logger,
		startOffset: startOffset,
	}
}

// EnsureDailyGame returns the game scheduled for now's day, creating one at
// the configured start time when none exists yet. Two instances racing on
// creation both insert, but the re-read afterwards picks the earliest row, so
// every caller converges on the same game.
func (s *gameService) EnsureDailyGame(ctx context.Context, now time.Time) (*models.Game, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	game, err := s.gameRepo.FindByScheduledRange(ctx, dayStart, dayEnd)
	if err == nil {
		return game, nil
	}
	if !errors.Is(err, repositories.ErrGameNotFound) {
		return nil, fmt.Errorf("%w: find daily game: %w", ErrStoreUnavailable, err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate game id: %w", err)
	}
	game = &models.Game{
		ID:          id.String(),
		ScheduledAt: dayStart.Add(s.startOffset),
		State:       models.GameStateWaiting,
	}
	if err := s.gameRepo.Create(ctx, game); err != nil {
		return nil, fmt.Errorf("%w: create daily game: %w", ErrStoreUnavailable, err)
	}
	s.logger.Info("daily game created",
		slog.String("game_id", game.ID),
		slog.Time("scheduled_at", game.ScheduledAt))

	canonical, err := s.gameRepo.FindByScheduledRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: re-read daily game: %w", ErrStoreUnavailable, err)
	}
	return canonical, nil
}

func (s *gameService) GetGame(ctx context.Context, gameID string) (*GameView, error) {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	players, err := s.playerRepo.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("%w: list players: %w", ErrStoreUnavailable, err)
	}
	holding := 0
	for _, p := range players {
		if p.Status == models.PlayerStatusHolding {
			holding++
		}
	}
	return &GameView{Game: game, Players: players, HoldingCount: holding}, nil
}

// Join upserts the caller's participation row as HOLDING. The upsert is gated
// in SQL on the game still being WAITING; once the game started, an existing
// row is returned unchanged and new joins are rejected.
func (s *gameService) Join(ctx context.Context, gameID, userID string) (*models.Player, error) {
	player := &models.Player{
		ID:     models.PlayerID(gameID, userID),
		GameID: gameID,
		UserID: userID,
		Status: models.PlayerStatusHolding,
	}

	err := s.playerRepo.JoinWhileWaiting(ctx, player)
	if err == nil {
		s.notifyHolderCount(ctx, gameID)
		return player, nil
	}
	if !errors.Is(err, repositories.ErrJoinClosed) {
		return nil, fmt.Errorf("%w: join game: %w", ErrStoreUnavailable, err)
	}

	// Либо игры нет, либо она уже не принимает новых участников.
	if _, gerr := s.getGame(ctx, gameID); gerr != nil {
		return nil, gerr
	}
	existing, perr := s.playerRepo.FindByID(ctx, nil, player.ID)
	if perr == nil {
		// Rejoin during a RUNNING/FINISHED game: echo the row without any
		// reset, an eliminated player stays eliminated.
		return existing, nil
	}
	if !errors.Is(perr, repositories.ErrPlayerNotFound) {
		return nil, fmt.Errorf("%w: find player: %w", ErrStoreUnavailable, perr)
	}
	return nil, ErrJoinClosed
}

// StartGame performs WAITING -> RUNNING. Starting an already RUNNING or
// FINISHED game is a guarded no-op that reports the current state.
func (s *gameService) StartGame(ctx context.Context, gameID string) (*models.Game, error) {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.State != models.GameStateWaiting {
		return game, nil
	}

	err = s.gameRepo.UpdateState(ctx, nil, gameID, models.GameStateWaiting, models.GameStateRunning)
	if errors.Is(err, repositories.ErrGameStateConflict) {
		// Кто-то стартовал игру параллельно, просто перечитываем.
		return s.getGame(ctx, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: start game: %w", ErrStoreUnavailable, err)
	}

	game, err = s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("game started", slog.String("game_id", gameID))
	s.notifier.Notify(models.NewGameStartedEvent(gameID, game.UpdatedAt))
	return game, nil
}

// AutoStartDueGames starts every WAITING game whose scheduled time has
// passed. Safe to run concurrently on multiple instances because each start
// is an individually conditional update.
func (s *gameService) AutoStartDueGames(ctx context.Context, now time.Time) error {
	due, err := s.gameRepo.ListDueForStart(ctx, now)
	if err != nil {
		return fmt.Errorf("%w: list due games: %w", ErrStoreUnavailable, err)
	}

	var errs []error
	for _, game := range due {
		if _, err := s.StartGame(ctx, game.ID); err != nil {
			s.logger.Error("failed to auto-start game",
				slog.String("game_id", game.ID),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetAll wipes every game and player row. Administrative/test use only.
func (s *gameService) ResetAll(ctx context.Context) error {
	if err := s.playerRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: delete players: %w", ErrStoreUnavailable, err)
	}
	if err := s.gameRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: delete games: %w", ErrStoreUnavailable, err)
	}
	s.logger.Info("all games and players deleted")
	return nil
}

func (s *gameService) getGame(ctx context.Context, gameID string) (*models.Game, error) {
	game, err := s.gameRepo.GetByID(ctx, nil, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("%w: get game: %w", ErrStoreUnavailable, err)
	}
	return game, nil
}

func (s *gameService) notifyHolderCount(ctx context.Context, gameID string) {
	count, err := s.playerRepo.CountHolders(ctx, nil, gameID)
	if err != nil {
		s.logger.Warn("failed to count holders for notification",
			slog.String("game_id", gameID),
			slog.Any("error", err))
		return
	}
	s.notifier.Notify(models.NewPlayerUpdateEvent(gameID, count))
}
