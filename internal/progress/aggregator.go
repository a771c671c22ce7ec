package progress

import (
	"sort"
	"sync"

	"quizroom/internal/models"
)

// Aggregator maintains the per-member progress projection for one quiz
// session. It is eventually consistent: remote updates arrive out of order
// and at-least-once, so merges keep each member's question index monotonic
// and ignore stale reports.
type Aggregator struct {
	mu             sync.RWMutex
	sessionID      string
	totalQuestions int
	players        map[string]*models.PlayerProgress
}

func NewAggregator(sessionID string, totalQuestions int) *Aggregator {
	return &Aggregator{
		sessionID:      sessionID,
		totalQuestions: totalQuestions,
		players:        make(map[string]*models.PlayerProgress),
	}
}

func (a *Aggregator) SessionID() string {
	return a.sessionID
}

// Seed initializes every current member at question 0 with zero score.
// Called once at session start; re-seeding an existing member is a no-op so
// late duplicate seeds cannot reset real progress.
func (a *Aggregator) Seed(members []*models.Member) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, m := range members {
		if _, ok := a.players[m.UserID]; ok {
			continue
		}
		a.players[m.UserID] = &models.PlayerProgress{
			UserID:          m.UserID,
			CurrentQuestion: 0,
			Score:           0,
			Active:          true,
		}
	}
}

// Apply merges a progress report. Reports with a question index behind the
// recorded one are stale duplicates and are dropped. Returns whether the
// projection changed.
func (a *Aggregator) Apply(userID string, questionIndex, score, streak int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.players[userID]
	if !ok {
		// Member joined after seeding; admit them at their reported position.
		a.players[userID] = &models.PlayerProgress{
			UserID:          userID,
			CurrentQuestion: questionIndex,
			Score:           score,
			Streak:          streak,
			Active:          true,
		}
		return true
	}

	if questionIndex < p.CurrentQuestion {
		return false
	}
	if questionIndex == p.CurrentQuestion && score == p.Score && streak == p.Streak {
		return false
	}

	p.CurrentQuestion = questionIndex
	p.Score = score
	p.Streak = streak
	return true
}

func (a *Aggregator) SetActive(userID string, active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.players[userID]; ok {
		p.Active = active
	}
}

func (a *Aggregator) Get(userID string) (models.PlayerProgress, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.players[userID]
	if !ok {
		return models.PlayerProgress{}, false
	}
	return *p, true
}

// Percent reports display progress for a member, clamped to [0,1].
func (a *Aggregator) Percent(userID string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.players[userID]
	if !ok || a.totalQuestions <= 0 {
		return 0
	}
	pct := float64(p.CurrentQuestion) / float64(a.totalQuestions)
	if pct < 0 {
		return 0
	}
	if pct > 1 {
		return 1
	}
	return pct
}

// Leaderboard returns a score-ordered snapshot of the projection.
func (a *Aggregator) Leaderboard() []models.PlayerProgress {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries := make([]models.PlayerProgress, 0, len(a.players))
	for _, p := range a.players {
		entries = append(entries, *p)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}
