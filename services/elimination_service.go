package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lastholder/button-system/models"
	"github.com/lastholder/button-system/repositories"
	"golang.org/x/sync/singleflight"
)

// resolveAttempts bounds re-resolution when the holder set keeps moving
// between the snapshot and the promotion (a provisional winner releasing in
// that window). Each retry starts from a fresh snapshot.
const resolveAttempts = 3

// EliminationOutcome reports the game state after processing a release.
type EliminationOutcome struct {
	GameID           string           `json:"game_id"`
	State            models.GameState `json:"state"`
	Finished         bool             `json:"finished"`
	RemainingHolders int              `json:"remaining_holders"`
	WinnerID         *string          `json:"winner_id,omitempty"`
	WinnerUserID     *string          `json:"winner_user_id,omitempty"`
}

// EliminationService processes "I let go" events: it atomically eliminates
// the player and resolves whether the game concluded. Concurrent, unordered
// and duplicate invocations coordinate only through the store's conditional
// updates; no in-process state is authoritative.
type EliminationService interface {
	Eliminate(ctx context.Context, gameID, userID string) (*EliminationOutcome, error)
}

type eliminationService struct {
	txRunner   TxRunner
	gameRepo   repositories.GameRepository
	playerRepo repositories.PlayerRepository
	notifier   Notifier
	logger     *slog.Logger

	// resolveGroup collapses redundant concurrent resolutions inside one
	// process. Correctness does not depend on it: cross-process races are
	// settled by the conditional RUNNING -> FINISHED update.
	resolveGroup singleflight.Group
}

func NewEliminationService(
	txRunner TxRunner,
	gameRepo repositories.GameRepository,
	playerRepo repositories.PlayerRepository,
	notifier Notifier,
	logger *slog.Logger,
) EliminationService {
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &eliminationService{
		txRunner:   txRunner,
		gameRepo:   gameRepo,
		playerRepo: playerRepo,
		notifier:   notifier,
		logger:     logger,
	}
}

// Eliminate marks the player as released and resolves the game.
//
// The status mutation is a single conditional update, so re-invocation after
// the player already left HOLDING is a no-op, never an error. Calls against a
// WAITING game mutate nothing and report ErrGameNotRunning; calls against a
// FINISHED game mutate nothing and report the recorded result.
func (s *eliminationService) Eliminate(ctx context.Context, gameID, userID string) (*EliminationOutcome, error) {
	game, err := s.gameRepo.GetByID(ctx, nil, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("%w: get game: %w", ErrStoreUnavailable, err)
	}

	switch game.State {
	case models.GameStateWaiting:
		return nil, ErrGameNotRunning
	case models.GameStateFinished:
		return s.reportFinished(ctx, gameID)
	}

	playerID := models.PlayerID(gameID, userID)
	eliminated := true
	err = s.playerRepo.EliminateIfHolding(ctx, nil, playerID, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repositories.ErrPlayerNotHolding) {
			return nil, fmt.Errorf("%w: eliminate player: %w", ErrStoreUnavailable, err)
		}
		// Zero rows: either the player never joined, or this is a duplicate
		// release. Only the former is an error.
		if _, ferr := s.playerRepo.FindByID(ctx, nil, playerID); ferr != nil {
			if errors.Is(ferr, repositories.ErrPlayerNotFound) {
				return nil, ErrPlayerNotFound
			}
			return nil, fmt.Errorf("%w: find player: %w", ErrStoreUnavailable, ferr)
		}
		eliminated = false
	}

	outcome, err := s.resolve(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if eliminated && !outcome.Finished {
		s.notifier.Notify(models.NewPlayerUpdateEvent(gameID, outcome.RemainingHolders))
	}
	return outcome, nil
}

// resolve decides, from the current holder count, whether the game finished
// and who (if anyone) won.
//
// A shared singleflight result may come from a snapshot taken before this
// caller's own elimination landed. In that case one more flight is enough:
// it can only start after the shared one completed, so its snapshot includes
// our write.
func (s *eliminationService) resolve(ctx context.Context, gameID string) (*EliminationOutcome, error) {
	outcome, shared, err := s.resolveOnce(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if shared && !outcome.Finished {
		outcome, _, err = s.resolveOnce(ctx, gameID)
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func (s *eliminationService) resolveOnce(ctx context.Context, gameID string) (*EliminationOutcome, bool, error) {
	v, err, shared := s.resolveGroup.Do(gameID, func() (interface{}, error) {
		for attempt := 0; attempt < resolveAttempts; attempt++ {
			outcome, retry, err := s.tryResolve(ctx, gameID)
			if err != nil {
				return nil, err
			}
			if !retry {
				return outcome, nil
			}
		}
		return nil, fmt.Errorf("%w: game %s", ErrResolutionUnsettled, gameID)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*EliminationOutcome), shared, nil
}

// tryResolve performs one resolution pass over a fresh holder snapshot.
// retry=true means the snapshot went stale mid-transition and the pass must
// be repeated.
func (s *eliminationService) tryResolve(ctx context.Context, gameID string) (*EliminationOutcome, bool, error) {
	holders, err := s.playerRepo.ListHolders(ctx, nil, gameID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: list holders: %w", ErrStoreUnavailable, err)
	}

	switch {
	case len(holders) > 1:
		return &EliminationOutcome{
			GameID:           gameID,
			State:            models.GameStateRunning,
			RemainingHolders: len(holders),
		}, false, nil

	case len(holders) == 1:
		total, err := s.playerRepo.CountByGame(ctx, nil, gameID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: count participants: %w", ErrStoreUnavailable, err)
		}
		if total < 2 {
			// An uncontested game never auto-declares its lone joiner the
			// winner; it keeps running until more players were involved.
			return &EliminationOutcome{
				GameID:           gameID,
				State:            models.GameStateRunning,
				RemainingHolders: 1,
			}, false, nil
		}
		return s.finishWithWinner(ctx, gameID, holders[0])

	default:
		return s.finishWithoutWinner(ctx, gameID)
	}
}

// finishWithWinner performs the atomic multi-row transition: FINISHED +
// winner_id on the game, WINNER on the player, in one transaction. The
// conditional game update serializes concurrent resolvers: exactly one
// commits, the rest read back the recorded result.
func (s *eliminationService) finishWithWinner(ctx context.Context, gameID string, winner *models.Player) (*EliminationOutcome, bool, error) {
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.gameRepo.Finish(ctx, exec, gameID, &winner.ID); err != nil {
			return err
		}
		return s.playerRepo.PromoteWinnerIfHolding(ctx, exec, winner.ID)
	})

	switch {
	case err == nil:
		s.logger.Info("game finished",
			slog.String("game_id", gameID),
			slog.String("winner_id", winner.ID))
		s.notifier.Notify(models.NewGameOverEvent(gameID, &winner.ID, &winner.UserID))
		return &EliminationOutcome{
			GameID:       gameID,
			State:        models.GameStateFinished,
			Finished:     true,
			WinnerID:     &winner.ID,
			WinnerUserID: &winner.UserID,
		}, false, nil

	case errors.Is(err, repositories.ErrGameStateConflict):
		// Lost the race to a concurrent resolver.
		outcome, rerr := s.reportFinished(ctx, gameID)
		return outcome, false, rerr

	case errors.Is(err, repositories.ErrPlayerNotHolding):
		// The provisional winner released between the snapshot and the
		// promotion; the whole transaction rolled back. Re-resolve.
		return nil, true, nil

	default:
		return nil, false, fmt.Errorf("%w: finish game: %w", ErrStoreUnavailable, err)
	}
}

func (s *eliminationService) finishWithoutWinner(ctx context.Context, gameID string) (*EliminationOutcome, bool, error) {
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.gameRepo.Finish(ctx, exec, gameID, nil)
	})

	switch {
	case err == nil:
		s.logger.Info("game finished without winner", slog.String("game_id", gameID))
		s.notifier.Notify(models.NewGameOverEvent(gameID, nil, nil))
		return &EliminationOutcome{
			GameID:   gameID,
			State:    models.GameStateFinished,
			Finished: true,
		}, false, nil

	case errors.Is(err, repositories.ErrGameStateConflict):
		outcome, rerr := s.reportFinished(ctx, gameID)
		return outcome, false, rerr

	default:
		return nil, false, fmt.Errorf("%w: finish game: %w", ErrStoreUnavailable, err)
	}
}

// reportFinished reads back and reports a result somebody else recorded. No
// mutation and no notification happen here; the transition's owner already
// broadcast it.
func (s *eliminationService) reportFinished(ctx context.Context, gameID string) (*EliminationOutcome, error) {
	game, err := s.gameRepo.GetByID(ctx, nil, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrGameNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("%w: get game: %w", ErrStoreUnavailable, err)
	}
	if game.State != models.GameStateFinished {
		// The concurrent transition has not landed from our point of view
		// yet; report the game as still running.
		count, cerr := s.playerRepo.CountHolders(ctx, nil, gameID)
		if cerr != nil {
			return nil, fmt.Errorf("%w: count holders: %w", ErrStoreUnavailable, cerr)
		}
		return &EliminationOutcome{
			GameID:           gameID,
			State:            game.State,
			RemainingHolders: count,
		}, nil
	}

	outcome := &EliminationOutcome{
		GameID:   gameID,
		State:    models.GameStateFinished,
		Finished: true,
		WinnerID: game.WinnerID,
	}
	if game.WinnerID != nil {
		winner, werr := s.playerRepo.FindByID(ctx, nil, *game.WinnerID)
		if werr == nil {
			outcome.WinnerUserID = &winner.UserID
		} else if !errors.Is(werr, repositories.ErrPlayerNotFound) {
			return nil, fmt.Errorf("%w: find winner: %w", ErrStoreUnavailable, werr)
		}
	}
	return outcome, nil
}
