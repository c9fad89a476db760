package sqlite

import "github.com/steveyegge/devpulse/internal/storage/migrations"

// Times are written in UTC so that the driver's text encoding sorts
// chronologically.

const schemaSessions = `
CREATE TABLE IF NOT EXISTS discovery_sessions (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    range_start DATETIME NOT NULL,
    range_end DATETIME NOT NULL,
    algorithm_version TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('running','completed','failed','outdated','refreshing')),
    phase_timings TEXT NOT NULL DEFAULT '{}',
    miner_durations TEXT NOT NULL DEFAULT '{}',
    total_duration_ms INTEGER NOT NULL DEFAULT 0,
    commits_analyzed INTEGER NOT NULL DEFAULT 0,
    patterns_discovered INTEGER NOT NULL DEFAULT 0 CHECK (patterns_discovered >= 0),
    error_message TEXT NOT NULL DEFAULT '',
    superseded_by TEXT REFERENCES discovery_sessions(id),
    supersedes TEXT NOT NULL DEFAULT '[]',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    archived_at DATETIME,
    CHECK (range_end >= range_start)
);

CREATE INDEX IF NOT EXISTS idx_sessions_project_status ON discovery_sessions(project, status);
CREATE INDEX IF NOT EXISTS idx_sessions_range ON discovery_sessions(project, range_start, range_end, algorithm_version);

-- At most one running (or refreshing) session per project
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_single_writer
    ON discovery_sessions(project) WHERE status IN ('running','refreshing');
`

const schemaPatterns = `
CREATE TABLE IF NOT EXISTS cooccurrence_patterns (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES discovery_sessions(id),
    path1 TEXT NOT NULL,
    path2 TEXT NOT NULL,
    pair_hash TEXT NOT NULL,
    cooccurrence_count INTEGER NOT NULL CHECK (cooccurrence_count > 0),
    support REAL NOT NULL CHECK (support > 0 AND support <= 1),
    confidence_1_to_2 REAL NOT NULL CHECK (confidence_1_to_2 > 0 AND confidence_1_to_2 <= 1),
    confidence_2_to_1 REAL NOT NULL CHECK (confidence_2_to_1 > 0 AND confidence_2_to_1 <= 1),
    lift REAL NOT NULL CHECK (lift > 0),
    pattern_strength TEXT NOT NULL,
    is_bidirectional INTEGER NOT NULL DEFAULT 0,
    contributing_commits TEXT NOT NULL DEFAULT '[]',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    CHECK (path1 < path2),
    UNIQUE (session_id, pair_hash)
);
CREATE INDEX IF NOT EXISTS idx_cooccurrence_project ON cooccurrence_patterns(project, is_active);
CREATE INDEX IF NOT EXISTS idx_cooccurrence_pair ON cooccurrence_patterns(project, pair_hash);

CREATE TABLE IF NOT EXISTS temporal_patterns (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES discovery_sessions(id),
    pattern_type TEXT NOT NULL CHECK (pattern_type IN ('hourly','daily','weekly','monthly','seasonal')),
    observed TEXT NOT NULL,
    expected TEXT NOT NULL,
    total_commits INTEGER NOT NULL,
    chi_square REAL NOT NULL CHECK (chi_square >= 0),
    degrees_of_freedom INTEGER NOT NULL CHECK (degrees_of_freedom > 0),
    p_value REAL NOT NULL CHECK (p_value >= 0 AND p_value <= 1),
    strength_score REAL NOT NULL CHECK (strength_score >= 0 AND strength_score <= 1),
    pattern_strength TEXT NOT NULL,
    coefficient_of_variation REAL NOT NULL DEFAULT 0,
    skewness REAL NOT NULL DEFAULT 0,
    kurtosis REAL NOT NULL DEFAULT 0,
    peak_buckets TEXT NOT NULL DEFAULT '[]',
    stability TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (session_id, pattern_type)
);

CREATE TABLE IF NOT EXISTS developer_patterns (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES discovery_sessions(id),
    developer_hash TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    commit_count INTEGER NOT NULL,
    lines_added INTEGER NOT NULL,
    lines_removed INTEGER NOT NULL,
    avg_commit_size REAL NOT NULL,
    median_commit_size REAL NOT NULL,
    stddev_commit_size REAL NOT NULL,
    unique_files INTEGER NOT NULL,
    exclusive_files INTEGER NOT NULL,
    specialty_files TEXT NOT NULL DEFAULT '[]',
    collaborators TEXT NOT NULL DEFAULT '[]',
    specialization_score REAL NOT NULL CHECK (specialization_score BETWEEN 0 AND 1),
    knowledge_breadth REAL NOT NULL CHECK (knowledge_breadth BETWEEN 0 AND 1),
    change_velocity REAL NOT NULL CHECK (change_velocity >= 0),
    consistency REAL NOT NULL CHECK (consistency BETWEEN 0 AND 1),
    collaboration_score REAL NOT NULL CHECK (collaboration_score BETWEEN 0 AND 1),
    temporal_overlap REAL NOT NULL CHECK (temporal_overlap BETWEEN 0 AND 1),
    knowledge_silo_risk REAL NOT NULL CHECK (knowledge_silo_risk BETWEEN 0 AND 1),
    preferred_hours TEXT NOT NULL DEFAULT '[]',
    work_schedule TEXT NOT NULL CHECK (work_schedule IN ('business_hours','night_owl','flexible')),
    first_commit_at DATETIME NOT NULL,
    last_commit_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (session_id, developer_hash)
);

CREATE TABLE IF NOT EXISTS change_magnitude_patterns (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES discovery_sessions(id),
    file_path TEXT NOT NULL,
    change_count INTEGER NOT NULL,
    lines_added INTEGER NOT NULL,
    lines_removed INTEGER NOT NULL,
    avg_lines_changed REAL NOT NULL,
    median_lines_changed REAL NOT NULL,
    stddev_lines_changed REAL NOT NULL,
    change_frequency REAL NOT NULL CHECK (change_frequency >= 0),
    volatility_score REAL NOT NULL CHECK (volatility_score BETWEEN 0 AND 1),
    stability_score REAL NOT NULL CHECK (stability_score BETWEEN 0 AND 1),
    predictability_score REAL NOT NULL CHECK (predictability_score BETWEEN 0 AND 1),
    anomaly_score REAL NOT NULL CHECK (anomaly_score BETWEEN 0 AND 1),
    hotspot_score REAL NOT NULL CHECK (hotspot_score BETWEEN 0 AND 1),
    technical_debt_indicator REAL NOT NULL CHECK (technical_debt_indicator BETWEEN 0 AND 1),
    contributor_count INTEGER NOT NULL,
    contributor_diversity REAL NOT NULL CHECK (contributor_diversity BETWEEN 0 AND 1),
    trend_direction TEXT NOT NULL,
    trend_slope REAL NOT NULL DEFAULT 0,
    risk_level TEXT NOT NULL CHECK (risk_level IN ('low','medium','high','critical')),
    created_at DATETIME NOT NULL,
    UNIQUE (session_id, file_path)
);
CREATE INDEX IF NOT EXISTS idx_magnitude_risk ON change_magnitude_patterns(session_id, risk_level);
`

const schemaInsights = `
CREATE TABLE IF NOT EXISTS insights (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES discovery_sessions(id),
    insight_type TEXT NOT NULL,
    subject_key TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    recommendations TEXT NOT NULL DEFAULT '[]',
    evidence_count INTEGER NOT NULL DEFAULT 0,
    families TEXT NOT NULL DEFAULT '[]',
    supporting_patterns TEXT NOT NULL DEFAULT '[]',
    confidence_score REAL NOT NULL CHECK (confidence_score BETWEEN 0 AND 1),
    risk_level TEXT NOT NULL,
    business_impact TEXT NOT NULL,
    technical_impact TEXT NOT NULL,
    implementation_complexity TEXT NOT NULL,
    priority_score REAL NOT NULL CHECK (priority_score BETWEEN 0 AND 1),
    priority INTEGER NOT NULL CHECK (priority BETWEEN 0 AND 4),
    validation_status TEXT NOT NULL CHECK (validation_status IN ('pending','validated','rejected','implemented','outdated')),
    review_notes TEXT NOT NULL DEFAULT '',
    expires_at DATETIME NOT NULL,
    refresh_needed_at DATETIME NOT NULL,
    superseded_by TEXT REFERENCES insights(id),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE (session_id, insight_type, subject_key)
);
CREATE INDEX IF NOT EXISTS idx_insights_project ON insights(project, validation_status);
CREATE INDEX IF NOT EXISTS idx_insights_subject ON insights(project, insight_type, subject_key);
CREATE INDEX IF NOT EXISTS idx_insights_expiry ON insights(expires_at);
`

const schemaMetrics = `
CREATE TABLE IF NOT EXISTS metrics (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    metric_type TEXT NOT NULL,
    scope TEXT NOT NULL,
    scope_identifier TEXT NOT NULL DEFAULT '',
    period_start DATETIME,
    period_end DATETIME,
    value REAL NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    baseline_value REAL,
    threshold_value REAL,
    threshold_direction TEXT NOT NULL DEFAULT '',
    percentile_rank REAL NOT NULL CHECK (percentile_rank BETWEEN 0 AND 1),
    percent_change_from_baseline REAL NOT NULL DEFAULT 0,
    change_significance TEXT NOT NULL,
    alert_triggered INTEGER NOT NULL DEFAULT 0,
    alert_severity TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    recorded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_population ON metrics(project, metric_type, is_active);
CREATE UNIQUE INDEX IF NOT EXISTS idx_metrics_active_scope
    ON metrics(project, metric_type, scope, scope_identifier) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('low','medium','high','critical')),
    urgency TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    metric_id TEXT REFERENCES metrics(id),
    metric_type TEXT NOT NULL,
    scope TEXT NOT NULL,
    scope_identifier TEXT NOT NULL DEFAULT '',
    trigger_value REAL NOT NULL,
    threshold_value REAL,
    baseline_value REAL,
    percent_change REAL NOT NULL DEFAULT 0,
    business_impact TEXT NOT NULL DEFAULT 'medium',
    confidence REAL NOT NULL DEFAULT 0.5,
    status TEXT NOT NULL CHECK (status IN ('open','acknowledged','investigating','resolved','false_positive','suppressed')),
    escalation_level INTEGER NOT NULL DEFAULT 0 CHECK (escalation_level BETWEEN 0 AND 3),
    similar_alert_count INTEGER NOT NULL DEFAULT 0,
    related_pattern_ids TEXT NOT NULL DEFAULT '[]',
    related_insight_ids TEXT NOT NULL DEFAULT '[]',
    resolution_method TEXT NOT NULL DEFAULT '',
    resolution_notes TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    last_seen_at DATETIME NOT NULL,
    acknowledged_at DATETIME,
    resolved_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_alerts_project_status ON alerts(project, status);
CREATE INDEX IF NOT EXISTS idx_alerts_signature ON alerts(project, alert_type, metric_type, scope_identifier, status);
`

const schemaHistoryAndRollups = `
CREATE TABLE IF NOT EXISTS file_change_history (
    project TEXT NOT NULL,
    file_path TEXT NOT NULL,
    session_id TEXT NOT NULL REFERENCES discovery_sessions(id),
    period_end DATETIME NOT NULL,
    change_frequency REAL NOT NULL CHECK (change_frequency >= 0),
    PRIMARY KEY (project, file_path, session_id)
);
CREATE INDEX IF NOT EXISTS idx_history_file ON file_change_history(project, file_path, period_end);

CREATE TABLE IF NOT EXISTS dashboard_rollups (
    project TEXT PRIMARY KEY,
    rollup TEXT NOT NULL,
    generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    project TEXT NOT NULL,
    entity_id TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}',
    timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id);
`

const schemaActivity = `
CREATE TABLE IF NOT EXISTS activity_commits (
    project TEXT NOT NULL,
    sha TEXT NOT NULL,
    author TEXT NOT NULL,
    author_email TEXT NOT NULL DEFAULT '',
    committer TEXT NOT NULL,
    committer_email TEXT NOT NULL DEFAULT '',
    author_date DATETIME NOT NULL,
    committer_date DATETIME NOT NULL,
    branch TEXT NOT NULL DEFAULT '',
    parent_shas TEXT NOT NULL DEFAULT '[]',
    files_changed INTEGER NOT NULL DEFAULT 0,
    insertions INTEGER NOT NULL DEFAULT 0,
    deletions INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL CHECK (length(message) > 0),
    PRIMARY KEY (project, sha),
    CHECK (committer_date >= author_date)
);
CREATE INDEX IF NOT EXISTS idx_activity_commits_date ON activity_commits(project, author_date);

CREATE TABLE IF NOT EXISTS activity_file_changes (
    project TEXT NOT NULL,
    commit_sha TEXT NOT NULL,
    file_path TEXT NOT NULL,
    change_type TEXT NOT NULL CHECK (change_type IN ('added','modified','deleted','renamed','copied','typechange')),
    lines_added INTEGER NOT NULL DEFAULT 0,
    lines_removed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (project, commit_sha, file_path)
);

CREATE TABLE IF NOT EXISTS activity_developer_sessions (
    project TEXT NOT NULL,
    developer TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    ended_at DATETIME NOT NULL,
    PRIMARY KEY (project, developer, started_at)
);
`

// schemaMigrations returns the versioned schema. New versions are appended;
// existing entries never change.
func schemaMigrations() *migrations.Manager {
	m := migrations.NewManager()
	m.Register(migrations.Migration{Version: 1, Description: "discovery sessions", Up: schemaSessions,
		Down: "DROP TABLE IF EXISTS discovery_sessions;"})
	m.Register(migrations.Migration{Version: 2, Description: "pattern families", Up: schemaPatterns,
		Down: `DROP TABLE IF EXISTS change_magnitude_patterns; DROP TABLE IF EXISTS developer_patterns;
		       DROP TABLE IF EXISTS temporal_patterns; DROP TABLE IF EXISTS cooccurrence_patterns;`})
	m.Register(migrations.Migration{Version: 3, Description: "insights", Up: schemaInsights,
		Down: "DROP TABLE IF EXISTS insights;"})
	m.Register(migrations.Migration{Version: 4, Description: "metrics and alerts", Up: schemaMetrics,
		Down: "DROP TABLE IF EXISTS alerts; DROP TABLE IF EXISTS metrics;"})
	m.Register(migrations.Migration{Version: 5, Description: "file history, rollups, events", Up: schemaHistoryAndRollups,
		Down: "DROP TABLE IF EXISTS events; DROP TABLE IF EXISTS dashboard_rollups; DROP TABLE IF EXISTS file_change_history;"})
	m.Register(migrations.Migration{Version: 6, Description: "imported activity", Up: schemaActivity,
		Down: `DROP TABLE IF EXISTS activity_developer_sessions; DROP TABLE IF EXISTS activity_file_changes;
		       DROP TABLE IF EXISTS activity_commits;`})
	return m
}
