package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lastholder/button-system/models"
)

func newGameEnv(t *testing.T, startOffset time.Duration) (*fakeStore, *captureNotifier, GameService) {
	t.Helper()
	store := newFakeStore()
	notifier := &captureNotifier{}
	svc := NewGameService(store, store, notifier, discardLogger(), startOffset)
	return store, notifier, svc
}

func TestEnsureDailyGameCreatesAtConfiguredTime(t *testing.T) {
	_, _, svc := newGameEnv(t, 12*time.Hour)

	now := time.Date(2026, time.August, 27, 9, 30, 0, 0, time.UTC)
	game, err := svc.EnsureDailyGame(context.Background(), now)
	require.NoError(t, err)

	require.Equal(t, models.GameStateWaiting, game.State)
	require.Equal(t, time.Date(2026, time.August, 27, 12, 0, 0, 0, time.UTC), game.ScheduledAt)
	require.Nil(t, game.WinnerID)
}

func TestEnsureDailyGameIsIdempotentWithinDay(t *testing.T) {
	_, _, svc := newGameEnv(t, 12*time.Hour)
	ctx := context.Background()

	morning := time.Date(2026, time.August, 27, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, time.August, 27, 22, 0, 0, 0, time.UTC)

	first, err := svc.EnsureDailyGame(ctx, morning)
	require.NoError(t, err)
	second, err := svc.EnsureDailyGame(ctx, evening)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// Другой день -> другая игра.
	nextDay, err := svc.EnsureDailyGame(ctx, morning.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, nextDay.ID)
}

func TestJoinWhileWaiting(t *testing.T) {
	_, notifier, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)

	player, err := svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.PlayerID(game.ID, "alice"), player.ID)
	require.Equal(t, models.PlayerStatusHolding, player.Status)
	require.Nil(t, player.EliminatedAt)

	view, err := svc.GetGame(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, view.Players, 1)
	require.Equal(t, 1, view.HoldingCount)

	updates := notifier.byType(models.EventPlayerUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, models.PlayerUpdatePayload{HoldingCount: 1}, updates[0].Payload)
}

func TestRejoinWhileWaitingResetsElimination(t *testing.T) {
	store, _, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)

	// A stale elimination left over on the row is cleared by rejoining before
	// the game starts.
	aliceID := models.PlayerID(game.ID, "alice")
	require.NoError(t, store.EliminateIfHolding(ctx, nil, aliceID, time.Now()))

	player, err := svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.PlayerStatusHolding, player.Status)
	require.Nil(t, player.EliminatedAt)

	view, err := svc.GetGame(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, view.Players, 1)
}

func TestJoinAfterStartRejectedForNewcomers(t *testing.T) {
	_, _, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)
	_, err = svc.StartGame(ctx, game.ID)
	require.NoError(t, err)

	_, err = svc.Join(ctx, game.ID, "bob")
	require.ErrorIs(t, err, ErrJoinClosed)
}

func TestRejoinAfterStartEchoesRowWithoutReset(t *testing.T) {
	store, _, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "bob")
	require.NoError(t, err)
	_, err = svc.StartGame(ctx, game.ID)
	require.NoError(t, err)

	aliceID := models.PlayerID(game.ID, "alice")
	require.NoError(t, store.EliminateIfHolding(ctx, nil, aliceID, time.Now()))

	// Reconnecting mid-game must not resurrect an eliminated player.
	player, err := svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.PlayerStatusEliminated, player.Status)
	require.NotNil(t, player.EliminatedAt)
}

func TestJoinMissingGame(t *testing.T) {
	_, _, svc := newGameEnv(t, 0)

	_, err := svc.Join(context.Background(), "missing", "alice")
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestStartGameTransitionsAndNotifiesOnce(t *testing.T) {
	_, notifier, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)

	started, err := svc.StartGame(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, models.GameStateRunning, started.State)
	require.Len(t, notifier.byType(models.EventGameStarted), 1)

	// Повторный старт — no-op.
	again, err := svc.StartGame(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, models.GameStateRunning, again.State)
	require.Len(t, notifier.byType(models.EventGameStarted), 1)
}

func TestStartGameNeverRewindsFinished(t *testing.T) {
	store, notifier, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)
	_, err = svc.StartGame(ctx, game.ID)
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, nil, game.ID, nil))

	got, err := svc.StartGame(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, models.GameStateFinished, got.State)
	require.Len(t, notifier.byType(models.EventGameStarted), 1)
}

func TestStartGameNotFound(t *testing.T) {
	_, _, svc := newGameEnv(t, 0)

	_, err := svc.StartGame(context.Background(), "missing")
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestAutoStartDueGames(t *testing.T) {
	store, _, svc := newGameEnv(t, 0)
	ctx := context.Background()
	now := time.Date(2026, time.August, 27, 12, 0, 0, 0, time.UTC)

	due := &models.Game{ID: "due", ScheduledAt: now.Add(-time.Minute), State: models.GameStateWaiting}
	future := &models.Game{ID: "future", ScheduledAt: now.Add(time.Hour), State: models.GameStateWaiting}
	require.NoError(t, store.Create(ctx, due))
	require.NoError(t, store.Create(ctx, future))

	require.NoError(t, svc.AutoStartDueGames(ctx, now))

	require.Equal(t, models.GameStateRunning, store.game("due").State)
	require.Equal(t, models.GameStateWaiting, store.game("future").State)
}

func TestResetAllWipesGamesAndPlayers(t *testing.T) {
	store, _, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.ResetAll(ctx))

	require.Nil(t, store.game(game.ID))
	require.Nil(t, store.player(models.PlayerID(game.ID, "alice")))

	_, err = svc.GetGame(ctx, game.ID)
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestGetGameCountsHolders(t *testing.T) {
	store, _, svc := newGameEnv(t, 0)
	ctx := context.Background()

	game, err := svc.EnsureDailyGame(ctx, time.Now())
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "alice")
	require.NoError(t, err)
	_, err = svc.Join(ctx, game.ID, "bob")
	require.NoError(t, err)
	_, err = svc.StartGame(ctx, game.ID)
	require.NoError(t, err)
	require.NoError(t, store.EliminateIfHolding(ctx, nil, models.PlayerID(game.ID, "alice"), time.Now()))

	view, err := svc.GetGame(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, view.Players, 2)
	require.Equal(t, 1, view.HoldingCount)
	require.Equal(t, models.GameStateRunning, view.Game.State)
}
