package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/devpulse/internal/types"
)

// setupTestDB creates a temporary test database
func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	storage, err := New(filepath.Join(t.TempDir(), "devpulse.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})
	return storage
}

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return jan1.AddDate(0, 0, n)
}

// startSession creates a running session over [start, end].
func startSession(t *testing.T, s *SQLiteStorage, project string, start, end time.Time) *types.DiscoverySession {
	t.Helper()
	sess := &types.DiscoverySession{
		Project:          project,
		Range:            types.CommitRange{Start: start, End: end},
		AlgorithmVersion: "1.0.0",
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return sess
}

// completedSession creates and completes a session over [start, end].
func completedSession(t *testing.T, s *SQLiteStorage, project string, start, end time.Time) *types.DiscoverySession {
	t.Helper()
	sess := startSession(t, s, project, start, end)
	sess.TotalDuration = time.Second
	sess.PhaseTimings = map[string]time.Duration{types.PhaseMining: 500 * time.Millisecond}
	if _, err := s.CompleteSession(context.Background(), sess); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	return sess
}

func pair(t *testing.T, project, sessionID, a, b string) *types.CooccurrencePattern {
	t.Helper()
	p1, p2, err := types.CanonicalPair(a, b)
	if err != nil {
		t.Fatalf("CanonicalPair failed: %v", err)
	}
	return &types.CooccurrencePattern{
		Project:            project,
		SessionID:          sessionID,
		Path1:              p1,
		Path2:              p2,
		PairHash:           types.PairHash(p1, p2),
		CooccurrenceCount:  3,
		Support:            0.5,
		Confidence1To2:     1,
		Confidence2To1:     0.75,
		Lift:               1.5,
		Strength:           types.StrengthStrong,
		Bidirectional:      true,
		ContributingCommit: []string{"c1", "c2", "c3"},
	}
}

func TestNewAppliesSchema(t *testing.T) {
	s := setupTestDB(t)
	for _, table := range []string{
		"discovery_sessions", "cooccurrence_patterns", "temporal_patterns", "developer_patterns",
		"change_magnitude_patterns", "insights", "metrics", "alerts", "file_change_history",
		"dashboard_rollups", "events", "activity_commits",
	} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// Reopening an existing database is a no-op for migrations
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = first.Close()
	second, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	_ = second.Close()
}

func TestMemoryDatabase(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	sess := startSession(t, s, "mem", day(0), day(7))
	got, err := s.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != types.SessionRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Errorf("placeholders(0) = %q", got)
	}
}
