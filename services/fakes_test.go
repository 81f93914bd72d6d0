package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/lastholder/button-system/models"
	"github.com/lastholder/button-system/repositories"
)

// fakeStore is an in-memory stand-in for the postgres repositories. It
// reproduces the semantics the services rely on: conditional updates are
// atomic per call, and RunInTx applies its writes all-or-nothing while
// holding the store lock.
type fakeStore struct {
	mu      sync.Mutex
	games   map[string]*models.Game
	players map[string]*models.Player

	// finishes counts successful RUNNING -> FINISHED transitions per game;
	// race tests assert it never exceeds one.
	finishes map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:    make(map[string]*models.Game),
		players:  make(map[string]*models.Player),
		finishes: make(map[string]int),
	}
}

// txExec marks repository calls that run inside RunInTx's critical section,
// where the store lock is already held.
type txExec struct{}

func (txExec) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (txExec) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (txExec) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func inTx(exec repositories.SQLExecutor) bool {
	_, ok := exec.(txExec)
	return ok
}

// RunInTx serializes transactions against every other store access and rolls
// the snapshot back when fn fails.
func (s *fakeStore) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gamesSnapshot := make(map[string]*models.Game, len(s.games))
	for id, g := range s.games {
		cp := *g
		gamesSnapshot[id] = &cp
	}
	playersSnapshot := make(map[string]*models.Player, len(s.players))
	for id, p := range s.players {
		cp := *p
		playersSnapshot[id] = &cp
	}
	finishesSnapshot := make(map[string]int, len(s.finishes))
	for id, n := range s.finishes {
		finishesSnapshot[id] = n
	}

	if err := fn(txExec{}); err != nil {
		s.games = gamesSnapshot
		s.players = playersSnapshot
		s.finishes = finishesSnapshot
		return err
	}
	return nil
}

// --- GameRepository ---

func (s *fakeStore) Create(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.ID]; exists {
		return repositories.ErrGameIDConflict
	}
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	cp := *g
	s.games[g.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, exec repositories.SQLExecutor, id string) (*models.Game, error) {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	g, ok := s.games[id]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *fakeStore) FindByScheduledRange(ctx context.Context, from, to time.Time) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*models.Game
	for _, g := range s.games {
		if !g.ScheduledAt.Before(from) && g.ScheduledAt.Before(to) {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return nil, repositories.ErrGameNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ScheduledAt.Equal(candidates[j].ScheduledAt) {
			return candidates[i].ScheduledAt.Before(candidates[j].ScheduledAt)
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	cp := *candidates[0]
	return &cp, nil
}

func (s *fakeStore) UpdateState(ctx context.Context, exec repositories.SQLExecutor, id string, from, to models.GameState) error {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	g, ok := s.games[id]
	if !ok || g.State != from {
		return repositories.ErrGameStateConflict
	}
	g.State = to
	g.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) Finish(ctx context.Context, exec repositories.SQLExecutor, id string, winnerID *string) error {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	g, ok := s.games[id]
	if !ok || g.State != models.GameStateRunning {
		return repositories.ErrGameStateConflict
	}
	g.State = models.GameStateFinished
	g.WinnerID = winnerID
	g.UpdatedAt = time.Now()
	s.finishes[id]++
	return nil
}

func (s *fakeStore) ListDueForStart(ctx context.Context, now time.Time) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]*models.Game, 0)
	for _, g := range s.games {
		if g.State == models.GameStateWaiting && !g.ScheduledAt.After(now) {
			cp := *g
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	return due, nil
}

// DeleteAll satisfies both repository interfaces; the reset wipes games and
// players together, so clearing everything matches what the service expects.
func (s *fakeStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = make(map[string]*models.Game)
	s.players = make(map[string]*models.Player)
	s.finishes = make(map[string]int)
	return nil
}

// --- PlayerRepository ---

func (s *fakeStore) JoinWhileWaiting(ctx context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[p.GameID]
	if !ok || g.State != models.GameStateWaiting {
		return repositories.ErrJoinClosed
	}
	if existing, ok := s.players[p.ID]; ok {
		existing.Status = models.PlayerStatusHolding
		existing.EliminatedAt = nil
		*p = *existing
		return nil
	}
	p.Status = models.PlayerStatusHolding
	p.JoinedAt = time.Now()
	cp := *p
	s.players[p.ID] = &cp
	return nil
}

func (s *fakeStore) FindByID(ctx context.Context, exec repositories.SQLExecutor, id string) (*models.Player, error) {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	p, ok := s.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) listByGame(gameID string, statusFilter *models.PlayerStatus) []*models.Player {
	players := make([]*models.Player, 0)
	for _, p := range s.players {
		if p.GameID != gameID {
			continue
		}
		if statusFilter != nil && p.Status != *statusFilter {
			continue
		}
		cp := *p
		players = append(players, &cp)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return players
}

func (s *fakeStore) ListByGame(ctx context.Context, gameID string) ([]*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByGame(gameID, nil), nil
}

func (s *fakeStore) ListHolders(ctx context.Context, exec repositories.SQLExecutor, gameID string) ([]*models.Player, error) {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	holding := models.PlayerStatusHolding
	return s.listByGame(gameID, &holding), nil
}

func (s *fakeStore) CountHolders(ctx context.Context, exec repositories.SQLExecutor, gameID string) (int, error) {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	holding := models.PlayerStatusHolding
	return len(s.listByGame(gameID, &holding)), nil
}

func (s *fakeStore) CountByGame(ctx context.Context, exec repositories.SQLExecutor, gameID string) (int, error) {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return len(s.listByGame(gameID, nil)), nil
}

func (s *fakeStore) EliminateIfHolding(ctx context.Context, exec repositories.SQLExecutor, id string, eliminatedAt time.Time) error {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	p, ok := s.players[id]
	if !ok || p.Status != models.PlayerStatusHolding {
		return repositories.ErrPlayerNotHolding
	}
	p.Status = models.PlayerStatusEliminated
	p.EliminatedAt = &eliminatedAt
	return nil
}

func (s *fakeStore) PromoteWinnerIfHolding(ctx context.Context, exec repositories.SQLExecutor, id string) error {
	if !inTx(exec) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	p, ok := s.players[id]
	if !ok || p.Status != models.PlayerStatusHolding {
		return repositories.ErrPlayerNotHolding
	}
	p.Status = models.PlayerStatusWinner
	return nil
}

// --- test inspection helpers ---

func (s *fakeStore) game(id string) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil
	}
	cp := *g
	return &cp
}

func (s *fakeStore) player(id string) *models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (s *fakeStore) finishCount(gameID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishes[gameID]
}

// captureNotifier records events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []models.GameEvent
}

func (n *captureNotifier) Notify(event models.GameEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) byType(t models.EventType) []models.GameEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []models.GameEvent
	for _, e := range n.events {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}
