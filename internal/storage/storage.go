package storage

import (
	"context"
	"time"

	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/storage/sqlite"
	"github.com/steveyegge/devpulse/internal/types"
)

// Storage defines the interface for pattern and metrics storage backends
type Storage interface {
	// Events - audit trail of lifecycle transitions
	RecordEvent(ctx context.Context, event *events.Event) error
	ListEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	CleanupEvents(ctx context.Context, retention time.Duration) (int64, error)

	// Activity - imported commits, file changes and developer sessions
	ImportActivity(ctx context.Context, batch *types.ActivityBatch) (*sqlite.ImportStats, error)
	ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error)
	ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error)
	ListDeveloperSessions(ctx context.Context, project string, rng types.CommitRange) ([]*types.DeveloperSession, error)

	// Discovery sessions
	CreateSession(ctx context.Context, sess *types.DiscoverySession) error
	GetSession(ctx context.Context, id string) (*types.DiscoverySession, error)
	FindSession(ctx context.Context, project string, rng types.CommitRange, version string) (*types.DiscoverySession, error)
	ActiveSession(ctx context.Context, project string) (*types.DiscoverySession, error)
	LatestCompletedSession(ctx context.Context, project string) (*types.DiscoverySession, error)
	PreviousSession(ctx context.Context, project, excludeID string) (*types.DiscoverySession, error)
	ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.DiscoverySession, error)
	CompleteSession(ctx context.Context, sess *types.DiscoverySession) ([]string, error)
	FailSession(ctx context.Context, sess *types.DiscoverySession, cause error) error
	BeginRefresh(ctx context.Context, id string) (*types.DiscoverySession, error)
	ArchiveSession(ctx context.Context, id string) error
	FailStaleSessions(ctx context.Context, cutoff time.Time) ([]string, error)

	// Patterns
	UpsertCooccurrencePatterns(ctx context.Context, patterns []*types.CooccurrencePattern) error
	UpsertTemporalPatterns(ctx context.Context, patterns []*types.TemporalPattern) error
	UpsertDeveloperPatterns(ctx context.Context, patterns []*types.DeveloperPattern) error
	UpsertChangeMagnitudePatterns(ctx context.Context, patterns []*types.ChangeMagnitudePattern) error
	ClearSessionPatterns(ctx context.Context, sessionID string) error
	ListCooccurrencePatterns(ctx context.Context, filter types.PatternFilter) ([]*types.CooccurrencePattern, error)
	ListTemporalPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.TemporalPattern, error)
	ListDeveloperPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.DeveloperPattern, error)
	ListChangeMagnitudePatterns(ctx context.Context, filter types.PatternFilter) ([]*types.ChangeMagnitudePattern, error)
	CountSessionPatterns(ctx context.Context, sessionID string) (map[types.PatternFamily]int, error)

	// Per-file history used for trend classification
	AppendFileHistory(ctx context.Context, points []types.FileHistoryPoint) error
	FileHistories(ctx context.Context, project string, paths []string, excludeSession string) (map[string][]types.FileHistoryPoint, error)

	// Insights
	UpsertInsight(ctx context.Context, in *types.Insight) (bool, error)
	SupersedeInsights(ctx context.Context, replacement *types.Insight) ([]string, error)
	GetInsight(ctx context.Context, id string) (*types.Insight, error)
	ListInsights(ctx context.Context, filter types.InsightFilter) ([]*types.Insight, error)
	TransitionInsight(ctx context.Context, id string, to types.ValidationStatus, notes string) (*types.Insight, error)
	ExpireInsights(ctx context.Context, now time.Time) ([]string, error)
	InsightsNeedingRefresh(ctx context.Context, project string, now time.Time) ([]*types.Insight, error)

	// Metrics and alerts. Metric ingestion runs inside a single write
	// transaction so the active flag, percentile and alert stay consistent.
	WithMetricTx(ctx context.Context, fn func(tx *sqlite.MetricTx) error) error
	GetMetric(ctx context.Context, id string) (*types.Metric, error)
	ListMetrics(ctx context.Context, filter types.MetricFilter) ([]*types.Metric, error)
	GetAlert(ctx context.Context, id string) (*types.Alert, error)
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error)
	TransitionAlert(ctx context.Context, id string, to types.AlertStatus, method, notes string) (*types.Alert, error)
	SaveAlert(ctx context.Context, a *types.Alert, ev *events.Event) error

	// Dashboard
	SaveRollup(ctx context.Context, r *types.DashboardRollup) error
	GetRollup(ctx context.Context, project string) (*types.DashboardRollup, error)
	ReadProjectSnapshot(ctx context.Context, project string) (*types.ProjectSnapshot, error)
	ListProjects(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// DefaultPath is where the database lives relative to the project root
const DefaultPath = ".devpulse/devpulse.db"

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".devpulse/devpulse.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: DefaultPath,
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	return sqlite.New(cfg.Path)
}

var _ Storage = (*sqlite.SQLiteStorage)(nil)
