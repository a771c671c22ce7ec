package progress

import (
	"testing"

	"quizroom/internal/models"
)

func seededAggregator(total int) *Aggregator {
	agg := NewAggregator("session-1", total)
	agg.Seed([]*models.Member{
		{RoomID: "room-1", UserID: "alice"},
		{RoomID: "room-1", UserID: "bob"},
	})
	return agg
}

func TestSeedInitializesMembers(t *testing.T) {
	agg := seededAggregator(10)

	for _, userID := range []string{"alice", "bob"} {
		p, ok := agg.Get(userID)
		if !ok {
			t.Fatalf("%s should be seeded", userID)
		}
		if p.CurrentQuestion != 0 || p.Score != 0 {
			t.Fatalf("%s should start at question 0 with score 0, got %d/%d", userID, p.CurrentQuestion, p.Score)
		}
		if !p.Active {
			t.Fatalf("%s should be seeded active", userID)
		}
	}
}

func TestSeedDoesNotResetProgress(t *testing.T) {
	agg := seededAggregator(10)
	agg.Apply("alice", 4, 300, 2)

	agg.Seed([]*models.Member{{RoomID: "room-1", UserID: "alice"}})

	p, _ := agg.Get("alice")
	if p.CurrentQuestion != 4 {
		t.Fatalf("re-seed should not reset progress, got question %d", p.CurrentQuestion)
	}
}

func TestApplyMonotonicQuestionIndex(t *testing.T) {
	agg := seededAggregator(10)

	if !agg.Apply("alice", 3, 200, 1) {
		t.Fatal("forward progress should be accepted")
	}
	if agg.Apply("alice", 1, 50, 0) {
		t.Fatal("stale report should be dropped")
	}

	p, _ := agg.Get("alice")
	if p.CurrentQuestion != 3 {
		t.Fatalf("question index regressed to %d", p.CurrentQuestion)
	}
	if p.Score != 200 {
		t.Fatalf("stale report should not touch score, got %d", p.Score)
	}
}

func TestApplyDuplicateIsNoop(t *testing.T) {
	agg := seededAggregator(10)
	agg.Apply("bob", 2, 100, 1)

	if agg.Apply("bob", 2, 100, 1) {
		t.Fatal("identical duplicate should report no change")
	}
}

func TestApplyAdmitsLateJoiner(t *testing.T) {
	agg := seededAggregator(10)

	if !agg.Apply("carol", 5, 250, 0) {
		t.Fatal("unseeded member's report should be admitted")
	}
	p, ok := agg.Get("carol")
	if !ok || p.CurrentQuestion != 5 {
		t.Fatalf("late joiner should be tracked at reported position, got %+v", p)
	}
}

func TestPercentClamped(t *testing.T) {
	agg := seededAggregator(10)

	if pct := agg.Percent("alice"); pct != 0 {
		t.Fatalf("expected 0 at start, got %f", pct)
	}

	agg.Apply("alice", 5, 0, 0)
	if pct := agg.Percent("alice"); pct != 0.5 {
		t.Fatalf("expected 0.5, got %f", pct)
	}

	agg.Apply("alice", 15, 0, 0)
	if pct := agg.Percent("alice"); pct != 1 {
		t.Fatalf("expected clamp to 1, got %f", pct)
	}

	if pct := agg.Percent("nobody"); pct != 0 {
		t.Fatalf("unknown member should report 0, got %f", pct)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	agg := seededAggregator(10)
	agg.Apply("alice", 3, 150, 1)
	agg.Apply("bob", 3, 300, 3)

	board := agg.Leaderboard()
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].UserID != "bob" {
		t.Fatalf("expected bob first, got %s", board[0].UserID)
	}
}

func TestSetActive(t *testing.T) {
	agg := seededAggregator(10)
	agg.SetActive("alice", false)

	p, _ := agg.Get("alice")
	if p.Active {
		t.Fatal("alice should be inactive")
	}
}
