// Package config loads the devpulse configuration file.
//
// Settings are resolved in three layers: package defaults, then
// .devpulse/config.yaml, then DEVPULSE_* environment variables. The result
// is converted into the Config types of the packages that consume it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/activity/pgsource"
	"github.com/steveyegge/devpulse/internal/alerting"
	"github.com/steveyegge/devpulse/internal/dashboard"
	"github.com/steveyegge/devpulse/internal/deduplication"
	"github.com/steveyegge/devpulse/internal/discovery"
	"github.com/steveyegge/devpulse/internal/insights"
	"github.com/steveyegge/devpulse/internal/logging"
	"github.com/steveyegge/devpulse/internal/scheduler"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/types"
)

// DefaultPath is where the config file lives relative to the project root.
const DefaultPath = ".devpulse/config.yaml"

// Activity sources.
const (
	SourceStore    = "store"
	SourceGit      = "git"
	SourcePostgres = "postgres"
)

// Config is the whole configuration file.
type Config struct {
	Database  DatabaseConfig       `yaml:"database"`
	Activity  ActivityConfig       `yaml:"activity"`
	Logging   logging.Config       `yaml:"logging"`
	Discovery DiscoveryConfig      `yaml:"discovery"`
	Insights  InsightsConfig       `yaml:"insights"`
	Alerting  AlertingConfig       `yaml:"alerting"`
	Dashboard DashboardConfig      `yaml:"dashboard"`
	Scheduler SchedulerConfig      `yaml:"scheduler"`
	Events    EventRetentionConfig `yaml:"events"`
	Sessions  StaleSessionConfig   `yaml:"sessions"`
	Server    ServerConfig         `yaml:"server"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ActivityConfig selects where discovery reads commits from. "store" reads
// activity imported with `devpulse import`; "git" reads a local repository
// directly; "postgres" reads an external activity database.
type ActivityConfig struct {
	Source   string         `yaml:"source"`
	Repo     string         `yaml:"repo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	Database        string   `yaml:"database"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	SSLMode         string   `yaml:"sslmode"`
	MaxConns        int32    `yaml:"max_conns"`
	MinConns        int32    `yaml:"min_conns"`
	MaxConnLifetime Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime Duration `yaml:"max_conn_idle_time"`
	HealthCheck     Duration `yaml:"health_check"`
}

type DiscoveryConfig struct {
	Preset           string                `yaml:"preset"`
	Miners           []string              `yaml:"miners,omitempty"`
	AlgorithmVersion string                `yaml:"algorithm_version"`
	MaxParallel      int                   `yaml:"max_parallel"`
	SessionTimeout   Duration              `yaml:"session_timeout"`
	Loader           activity.LoaderConfig `yaml:"loader"`

	MinCooccurrence     int     `yaml:"min_cooccurrence"`
	MaxFilesPerCommit   int     `yaml:"max_files_per_commit"`
	SignificanceLevel   float64 `yaml:"significance_level"`
	PeakFactor          float64 `yaml:"peak_factor"`
	SpecialtyShare      float64 `yaml:"specialty_share"`
	SpecialtyMinChanges int     `yaml:"specialty_min_changes"`
	MaxSpecialtyFiles   int     `yaml:"max_specialty_files"`
	TrendSignificance   float64 `yaml:"trend_significance"`
	MinHistoryPoints    int     `yaml:"min_history_points"`
}

type InsightsConfig struct {
	MinEvidence    int                 `yaml:"min_evidence"`
	AgreementBonus float64             `yaml:"agreement_bonus"`
	TTL            map[string]Duration `yaml:"ttl"`
	RefreshLead    Duration            `yaml:"refresh_lead"`
	MaxPerType     int                 `yaml:"max_per_type"`
}

type ThresholdConfig struct {
	Value     float64 `yaml:"value"`
	Direction string  `yaml:"direction"`
}

type DedupConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Window             Duration `yaml:"window"`
	EscalateEvery      int      `yaml:"escalate_every"`
	MaxEscalationLevel int      `yaml:"max_escalation_level"`
	BumpSeverity       bool     `yaml:"bump_severity"`
}

type AlertingConfig struct {
	Thresholds            map[string]ThresholdConfig `yaml:"thresholds,omitempty"`
	BusinessImpact        map[string]string          `yaml:"business_impact,omitempty"`
	DefaultBusinessImpact string                     `yaml:"default_business_impact"`
	AckSLA                map[string]Duration        `yaml:"ack_sla"`
	Dedup                 DedupConfig                `yaml:"dedup"`
}

type DashboardConfig struct {
	BacklogSize       int      `yaml:"backlog_size"`
	HighDebtThreshold float64  `yaml:"high_debt_threshold"`
	RefreshEvery      Duration `yaml:"refresh_every"`
	RefreshBurst      int      `yaml:"refresh_burst"`
}

// SchedulerConfig sets the intervals of the periodic jobs run by
// `devpulse serve`. A zero interval disables the job.
type SchedulerConfig struct {
	DashboardEvery Duration `yaml:"dashboard_every"`
	SweepEvery     Duration `yaml:"sweep_every"`
	EscalateEvery  Duration `yaml:"escalate_every"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
}

type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	sched := scheduler.DefaultConfig()
	pg := pgsource.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: storage.DefaultPath},
		Activity: ActivityConfig{
			Source: SourceStore,
			Repo:   ".",
			Postgres: PostgresConfig{
				Host:            pg.Host,
				Port:            pg.Port,
				Database:        pg.Database,
				User:            pg.User,
				SSLMode:         pg.SSLMode,
				MaxConns:        pg.MaxConns,
				MinConns:        pg.MinConns,
				MaxConnLifetime: Duration(pg.MaxConnLifetime),
				MaxConnIdleTime: Duration(pg.MaxConnIdleTime),
				HealthCheck:     Duration(pg.HealthCheck),
			},
		},
		Logging:   *logging.DefaultConfig(),
		Discovery: fromDiscovery(discovery.DefaultConfig()),
		Insights:  fromInsights(insights.DefaultConfig()),
		Alerting:  fromAlerting(alerting.DefaultConfig()),
		Dashboard: fromDashboard(dashboard.DefaultConfig()),
		Scheduler: SchedulerConfig{
			DashboardEvery: Duration(sched.DashboardEvery),
			SweepEvery:     Duration(sched.SweepEvery),
			EscalateEvery:  Duration(sched.EscalateEvery),
			MaxConcurrent:  sched.MaxConcurrent,
		},
		Events:   DefaultEventRetentionConfig(),
		Sessions: DefaultStaleSessionConfig(),
		Server:   ServerConfig{MetricsAddr: "127.0.0.1:9464"},
	}
}

// Load reads path (a missing file is not an error), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating its
// directory. An existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s: %w", path, os.ErrExist)
		}
	}
	var buf bytes.Buffer
	buf.WriteString("# devpulse configuration. Durations accept s, m, h and d (e.g. 7d).\n")
	buf.WriteString("# Every setting can be overridden with a DEVPULSE_* environment variable.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Default()); err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides the configuration from DEVPULSE_* variables.
func (c *Config) ApplyEnv() error {
	if err := parseEnvString("DEVPULSE_DB_PATH", &c.Database.Path); err != nil {
		return err
	}
	if err := parseEnvString("DEVPULSE_ACTIVITY_SOURCE", &c.Activity.Source); err != nil {
		return err
	}
	if err := parseEnvString("DEVPULSE_ACTIVITY_REPO", &c.Activity.Repo); err != nil {
		return err
	}
	pg := &c.Activity.Postgres
	if err := parseEnvString("DEVPULSE_PG_HOST", &pg.Host); err != nil {
		return err
	}
	if err := parseEnvInt("DEVPULSE_PG_PORT", &pg.Port); err != nil {
		return err
	}
	if err := parseEnvString("DEVPULSE_PG_DATABASE", &pg.Database); err != nil {
		return err
	}
	if err := parseEnvString("DEVPULSE_PG_USER", &pg.User); err != nil {
		return err
	}
	if err := parseEnvString("DEVPULSE_PG_PASSWORD", &pg.Password); err != nil {
		return err
	}
	if err := parseEnvString("DEVPULSE_PG_SSLMODE", &pg.SSLMode); err != nil {
		return err
	}

	logging.ApplyEnv(&c.Logging)

	var preset string
	if err := parseEnvString("DEVPULSE_PRESET", &preset); err != nil {
		return err
	}
	if preset != "" {
		c.Discovery.Preset = preset
	}
	if err := parseEnvString("DEVPULSE_ALGORITHM_VERSION", &c.Discovery.AlgorithmVersion); err != nil {
		return err
	}
	if err := parseEnvInt("DEVPULSE_MAX_PARALLEL", &c.Discovery.MaxParallel); err != nil {
		return err
	}
	if err := parseEnvDuration("DEVPULSE_SESSION_TIMEOUT", &c.Discovery.SessionTimeout); err != nil {
		return err
	}

	if err := parseEnvInt("DEVPULSE_INSIGHT_MIN_EVIDENCE", &c.Insights.MinEvidence); err != nil {
		return err
	}
	if err := parseEnvFloat("DEVPULSE_INSIGHT_AGREEMENT_BONUS", &c.Insights.AgreementBonus); err != nil {
		return err
	}

	dedup, err := deduplication.ApplyEnv(c.Alerting.Dedup.build())
	if err != nil {
		return err
	}
	c.Alerting.Dedup = fromDedup(dedup)

	if err := parseEnvInt("DEVPULSE_DASHBOARD_BACKLOG_SIZE", &c.Dashboard.BacklogSize); err != nil {
		return err
	}
	if err := parseEnvDuration("DEVPULSE_DASHBOARD_REFRESH_EVERY", &c.Dashboard.RefreshEvery); err != nil {
		return err
	}

	if err := parseEnvDuration("DEVPULSE_SCHEDULER_DASHBOARD_EVERY", &c.Scheduler.DashboardEvery); err != nil {
		return err
	}
	if err := parseEnvDuration("DEVPULSE_SCHEDULER_SWEEP_EVERY", &c.Scheduler.SweepEvery); err != nil {
		return err
	}
	if err := parseEnvDuration("DEVPULSE_SCHEDULER_ESCALATE_EVERY", &c.Scheduler.EscalateEvery); err != nil {
		return err
	}

	if err := c.Events.applyEnv(); err != nil {
		return err
	}
	if err := c.Sessions.applyEnv(); err != nil {
		return err
	}
	return parseEnvString("DEVPULSE_METRICS_ADDR", &c.Server.MetricsAddr)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Activity.Source {
	case SourceStore:
	case SourceGit:
		if c.Activity.Repo == "" {
			return fmt.Errorf("activity.repo is required for the git source")
		}
	case SourcePostgres:
		if c.Activity.Postgres.Host == "" || c.Activity.Postgres.Database == "" {
			return fmt.Errorf("activity.postgres host and database are required")
		}
	default:
		return fmt.Errorf("unknown activity source %q", c.Activity.Source)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.DiscoveryConfig().Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if err := c.InsightsConfig().Validate(); err != nil {
		return fmt.Errorf("insights: %w", err)
	}
	if err := c.AlertingConfig().Validate(); err != nil {
		return fmt.Errorf("alerting: %w", err)
	}
	if err := c.DashboardConfig().Validate(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

// StorageConfig returns the database settings.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{Path: c.Database.Path}
}

// PostgresSource returns the connection settings of the postgres activity
// source.
func (c *Config) PostgresSource() *pgsource.Config {
	pg := c.Activity.Postgres
	return &pgsource.Config{
		Host:            pg.Host,
		Port:            pg.Port,
		Database:        pg.Database,
		User:            pg.User,
		Password:        pg.Password,
		SSLMode:         pg.SSLMode,
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime.D(),
		MaxConnIdleTime: pg.MaxConnIdleTime.D(),
		HealthCheck:     pg.HealthCheck.D(),
	}
}

func fromDiscovery(d *discovery.Config) DiscoveryConfig {
	return DiscoveryConfig{
		Preset:              string(d.Preset),
		Miners:              d.Miners,
		AlgorithmVersion:    d.AlgorithmVersion,
		MaxParallel:         d.MaxParallel,
		SessionTimeout:      Duration(d.SessionTimeout),
		Loader:              d.Loader,
		MinCooccurrence:     d.Cooccurrence.MinCooccurrence,
		MaxFilesPerCommit:   d.Cooccurrence.MaxFilesPerCommit,
		SignificanceLevel:   d.Temporal.SignificanceLevel,
		PeakFactor:          d.Temporal.PeakFactor,
		SpecialtyShare:      d.Developer.SpecialtyShare,
		SpecialtyMinChanges: d.Developer.SpecialtyMinChanges,
		MaxSpecialtyFiles:   d.Developer.MaxSpecialtyFiles,
		TrendSignificance:   d.Magnitude.TrendSignificance,
		MinHistoryPoints:    d.Magnitude.MinHistoryPoints,
	}
}

// DiscoveryConfig converts the discovery section.
func (c *Config) DiscoveryConfig() *discovery.Config {
	d := c.Discovery
	return &discovery.Config{
		Preset:           discovery.Preset(d.Preset),
		Miners:           d.Miners,
		AlgorithmVersion: d.AlgorithmVersion,
		MaxParallel:      d.MaxParallel,
		SessionTimeout:   d.SessionTimeout.D(),
		Loader:           d.Loader,
		Cooccurrence: discovery.CooccurrenceConfig{
			MinCooccurrence:   d.MinCooccurrence,
			MaxFilesPerCommit: d.MaxFilesPerCommit,
		},
		Temporal: discovery.TemporalConfig{
			SignificanceLevel: d.SignificanceLevel,
			PeakFactor:        d.PeakFactor,
		},
		Developer: discovery.DeveloperConfig{
			SpecialtyShare:      d.SpecialtyShare,
			SpecialtyMinChanges: d.SpecialtyMinChanges,
			MaxSpecialtyFiles:   d.MaxSpecialtyFiles,
		},
		Magnitude: discovery.MagnitudeConfig{
			TrendSignificance: d.TrendSignificance,
			MinHistoryPoints:  d.MinHistoryPoints,
		},
	}
}

func fromInsights(in *insights.Config) InsightsConfig {
	ttl := make(map[string]Duration, len(in.TTL))
	for t, d := range in.TTL {
		ttl[string(t)] = Duration(d)
	}
	return InsightsConfig{
		MinEvidence:    in.MinEvidence,
		AgreementBonus: in.AgreementBonus,
		TTL:            ttl,
		RefreshLead:    Duration(in.RefreshLead),
		MaxPerType:     in.MaxPerType,
	}
}

// InsightsConfig converts the insights section.
func (c *Config) InsightsConfig() *insights.Config {
	ttl := make(map[types.InsightType]time.Duration, len(c.Insights.TTL))
	for t, d := range c.Insights.TTL {
		ttl[types.InsightType(t)] = d.D()
	}
	return &insights.Config{
		MinEvidence:    c.Insights.MinEvidence,
		AgreementBonus: c.Insights.AgreementBonus,
		TTL:            ttl,
		RefreshLead:    c.Insights.RefreshLead.D(),
		MaxPerType:     c.Insights.MaxPerType,
	}
}

func fromDedup(d deduplication.Config) DedupConfig {
	return DedupConfig{
		Enabled:            d.Enabled,
		Window:             Duration(d.Window),
		EscalateEvery:      d.EscalateEvery,
		MaxEscalationLevel: d.MaxEscalationLevel,
		BumpSeverity:       d.BumpSeverity,
	}
}

func (d DedupConfig) build() deduplication.Config {
	return deduplication.Config{
		Enabled:            d.Enabled,
		Window:             d.Window.D(),
		EscalateEvery:      d.EscalateEvery,
		MaxEscalationLevel: d.MaxEscalationLevel,
		BumpSeverity:       d.BumpSeverity,
	}
}

func fromAlerting(a *alerting.Config) AlertingConfig {
	out := AlertingConfig{
		Thresholds:            make(map[string]ThresholdConfig, len(a.Thresholds)),
		BusinessImpact:        make(map[string]string, len(a.BusinessImpact)),
		DefaultBusinessImpact: string(a.DefaultBusinessImpact),
		AckSLA:                make(map[string]Duration, len(a.AckSLA)),
		Dedup:                 fromDedup(a.Dedup),
	}
	for metric, th := range a.Thresholds {
		out.Thresholds[metric] = ThresholdConfig{Value: th.Value, Direction: string(th.Direction)}
	}
	for metric, level := range a.BusinessImpact {
		out.BusinessImpact[metric] = string(level)
	}
	for sev, d := range a.AckSLA {
		out.AckSLA[string(sev)] = Duration(d)
	}
	return out
}

// AlertingConfig converts the alerting section.
func (c *Config) AlertingConfig() *alerting.Config {
	a := c.Alerting
	out := &alerting.Config{
		Thresholds:            make(map[string]alerting.Threshold, len(a.Thresholds)),
		BusinessImpact:        make(map[string]types.RiskLevel, len(a.BusinessImpact)),
		DefaultBusinessImpact: types.RiskLevel(a.DefaultBusinessImpact),
		AckSLA:                make(map[types.Severity]time.Duration, len(a.AckSLA)),
		Dedup:                 a.Dedup.build(),
	}
	for metric, th := range a.Thresholds {
		out.Thresholds[metric] = alerting.Threshold{Value: th.Value, Direction: types.ThresholdDirection(th.Direction)}
	}
	for metric, level := range a.BusinessImpact {
		out.BusinessImpact[metric] = types.RiskLevel(level)
	}
	for sev, d := range a.AckSLA {
		out.AckSLA[types.Severity(sev)] = d.D()
	}
	return out
}

func fromDashboard(d *dashboard.Config) DashboardConfig {
	return DashboardConfig{
		BacklogSize:       d.BacklogSize,
		HighDebtThreshold: d.HighDebtThreshold,
		RefreshEvery:      Duration(d.RefreshEvery),
		RefreshBurst:      d.RefreshBurst,
	}
}

// DashboardConfig converts the dashboard section.
func (c *Config) DashboardConfig() *dashboard.Config {
	return &dashboard.Config{
		BacklogSize:       c.Dashboard.BacklogSize,
		HighDebtThreshold: c.Dashboard.HighDebtThreshold,
		RefreshEvery:      c.Dashboard.RefreshEvery.D(),
		RefreshBurst:      c.Dashboard.RefreshBurst,
	}
}

// SchedulerConfig combines the scheduler, events and sessions sections.
func (c *Config) SchedulerConfig() *scheduler.Config {
	return &scheduler.Config{
		DashboardEvery:  c.Scheduler.DashboardEvery.D(),
		SweepEvery:      c.Scheduler.SweepEvery.D(),
		EscalateEvery:   c.Scheduler.EscalateEvery.D(),
		CleanupEvery:    c.Events.CleanupInterval(),
		EventRetention:  c.Events.Retention(),
		StaleCheckEvery: c.Sessions.CheckInterval(),
		StaleAfter:      c.Sessions.StaleAfter(),
		MaxConcurrent:   c.Scheduler.MaxConcurrent,
	}
}
