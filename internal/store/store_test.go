package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
)

// newTestStore connects to the database named by TEST_DATABASE_URL, applies
// migrations, and removes rows created by this test on cleanup. Tests that
// call this helper skip when no test database is configured.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		t.Skipf("postgres not available: %v", err)
	}

	s := New(db, DefaultAlertThreshold)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		db.ExecContext(ctx, `DELETE FROM moderated_messages WHERE channel_id LIKE 'test_%'`)
		db.ExecContext(ctx, `DELETE FROM users WHERE id LIKE 'test_%'`)
		db.Close()
	})
	return s
}

func testID(prefix string) string {
	return "test_" + prefix + "_" + uuid.New().String()
}

func TestGetUserScoreDefaultsToZero(t *testing.T) {
	s := newTestStore(t)

	score, err := s.GetUserScore(context.Background(), testID("missing"))
	if err != nil {
		t.Fatalf("GetUserScore() error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected 0 for unknown user, got %d", score)
	}
}

func TestUpsertUserScoreAdditive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := testID("additive")

	for i, delta := range []int{1, -2, 1} {
		if _, _, err := s.UpsertUserScore(ctx, userID, "alice", delta); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	score, err := s.GetUserScore(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserScore() error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected +1-2+1 = 0, got %d", score)
	}
}

func TestUpsertUserScoreUpdatesDisplayName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := testID("rename")

	if _, _, err := s.UpsertUserScore(ctx, userID, "old-name", 2); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.UpsertUserScore(ctx, userID, "new-name", 1); err != nil {
		t.Fatal(err)
	}

	var username string
	var score int
	err := s.db.QueryRowContext(ctx, `SELECT username, score FROM users WHERE id = $1`, userID).
		Scan(&username, &score)
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if username != "new-name" {
		t.Errorf("expected last-writer-wins display name %q, got %q", "new-name", username)
	}
	if score != 3 {
		t.Errorf("expected score 3, got %d", score)
	}
}

func TestUpsertUserScoreThresholdFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := testID("threshold")

	_, crossed, err := s.UpsertUserScore(ctx, userID, "alice", -4)
	if err != nil {
		t.Fatal(err)
	}
	if crossed {
		t.Error("score -4 should not be at the -5 threshold")
	}

	newScore, crossed, err := s.UpsertUserScore(ctx, userID, "alice", -1)
	if err != nil {
		t.Fatal(err)
	}
	if newScore != -5 {
		t.Fatalf("expected -5, got %d", newScore)
	}
	if !crossed {
		t.Error("score -5 should be flagged at the threshold")
	}
}

func TestLedgerMarkAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	channelID := testID("chan")

	done, err := s.IsMessageModerated(ctx, "m1", channelID)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("unmarked message reported as moderated")
	}

	if err := s.MarkMessageModerated(ctx, "m1", channelID); err != nil {
		t.Fatalf("MarkMessageModerated() error: %v", err)
	}
	// Marking again is a benign no-op.
	if err := s.MarkMessageModerated(ctx, "m1", channelID); err != nil {
		t.Fatalf("duplicate mark should succeed, got: %v", err)
	}

	done, err = s.IsMessageModerated(ctx, "m1", channelID)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("marked message not reported as moderated")
	}

	// Same message ID in a different channel is a distinct ledger entry.
	done, err = s.IsMessageModerated(ctx, "m1", testID("otherchan"))
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("ledger entry leaked across channels")
	}
}

func TestTopUsersOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	users := []struct {
		name  string
		score int
	}{
		{"top-low", -3},
		{"top-high", 7},
		{"top-mid", 2},
	}
	for _, u := range users {
		if _, _, err := s.UpsertUserScore(ctx, testID(u.name), u.name, u.score); err != nil {
			t.Fatal(err)
		}
	}

	top, err := s.TopUsers(ctx, 100)
	if err != nil {
		t.Fatalf("TopUsers() error: %v", err)
	}

	// Scores must be non-increasing; our three users must appear in order.
	lastScore := int(^uint(0) >> 1)
	seen := make(map[string]int)
	for i, u := range top {
		if u.Score > lastScore {
			t.Fatalf("leaderboard not descending at index %d", i)
		}
		lastScore = u.Score
		seen[u.DisplayName] = i
	}
	for _, name := range []string{"top-high", "top-mid", "top-low"} {
		if _, ok := seen[name]; !ok {
			t.Fatalf("user %s missing from leaderboard", name)
		}
	}
	if !(seen["top-high"] < seen["top-mid"] && seen["top-mid"] < seen["top-low"]) {
		t.Errorf("unexpected relative order: %v", seen)
	}
}

func TestModerationStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	beforeTotal, beforeChannels, err := s.ModerationStats(ctx)
	if err != nil {
		t.Fatalf("ModerationStats() error: %v", err)
	}

	chanA, chanB := testID("statsA"), testID("statsB")
	for i, ch := range []string{chanA, chanA, chanB} {
		if err := s.MarkMessageModerated(ctx, fmt.Sprintf("m%d", i), ch); err != nil {
			t.Fatal(err)
		}
	}

	total, channels, err := s.ModerationStats(ctx)
	if err != nil {
		t.Fatalf("ModerationStats() error: %v", err)
	}
	if total != beforeTotal+3 {
		t.Errorf("expected total %d, got %d", beforeTotal+3, total)
	}
	if channels != beforeChannels+2 {
		t.Errorf("expected channels %d, got %d", beforeChannels+2, channels)
	}
}
