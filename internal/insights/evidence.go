package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/steveyegge/devpulse/internal/priorities"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/types"
)

// Evidence is every pattern a session produced, indexed for the rules.
type Evidence struct {
	Session  *types.DiscoverySession
	Pairs    []*types.CooccurrencePattern
	Temporal []*types.TemporalPattern
	Devs     []*types.DeveloperPattern
	Files    []*types.ChangeMagnitudePattern

	fileByPath map[string]*types.ChangeMagnitudePattern
	temporal   map[types.TemporalPatternType]*types.TemporalPattern
}

// LoadEvidence reads the session's four pattern families.
func LoadEvidence(ctx context.Context, store storage.Storage, sess *types.DiscoverySession) (*Evidence, error) {
	filter := types.PatternFilter{Project: sess.Project, SessionID: sess.ID}

	pairs, err := store.ListCooccurrencePatterns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading co-occurrence patterns: %w", err)
	}
	temporal, err := store.ListTemporalPatterns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading temporal patterns: %w", err)
	}
	devs, err := store.ListDeveloperPatterns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading developer patterns: %w", err)
	}
	files, err := store.ListChangeMagnitudePatterns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading change magnitude patterns: %w", err)
	}
	return NewEvidence(sess, pairs, temporal, devs, files), nil
}

// NewEvidence indexes already loaded patterns.
func NewEvidence(
	sess *types.DiscoverySession,
	pairs []*types.CooccurrencePattern,
	temporal []*types.TemporalPattern,
	devs []*types.DeveloperPattern,
	files []*types.ChangeMagnitudePattern,
) *Evidence {
	e := &Evidence{
		Session:    sess,
		Pairs:      pairs,
		Temporal:   temporal,
		Devs:       devs,
		Files:      files,
		fileByPath: make(map[string]*types.ChangeMagnitudePattern, len(files)),
		temporal:   make(map[types.TemporalPatternType]*types.TemporalPattern, len(temporal)),
	}
	for _, f := range files {
		e.fileByPath[f.FilePath] = f
	}
	for _, t := range temporal {
		e.temporal[t.PatternType] = t
	}
	return e
}

// File returns the magnitude pattern of path, or nil.
func (e *Evidence) File(path string) *types.ChangeMagnitudePattern {
	return e.fileByPath[path]
}

// TemporalOf returns the temporal pattern of a dimension, or nil.
func (e *Evidence) TemporalOf(pt types.TemporalPatternType) *types.TemporalPattern {
	return e.temporal[pt]
}

// candidate is a rule's proposal before confidence, priority and lifetime
// are assigned.
type candidate struct {
	insight  *types.Insight
	evidence int
	families map[types.PatternFamily]bool
	refs     []types.PatternRef
}

func newCandidate(t types.InsightType, subject string, evidence int) *candidate {
	return &candidate{
		insight:  &types.Insight{Type: t, SubjectKey: subject},
		evidence: evidence,
		families: make(map[types.PatternFamily]bool),
	}
}

// support records a supporting pattern and its family.
func (c *candidate) support(family types.PatternFamily, id string) *candidate {
	c.families[family] = true
	if id != "" {
		c.refs = append(c.refs, types.PatternRef{Family: family, ID: id})
	}
	return c
}

// impact sets the three independently classified levels and the effort.
func (c *candidate) impact(risk, business, technical types.RiskLevel, complexity types.Complexity) *candidate {
	c.insight.RiskLevel = risk
	c.insight.BusinessImpact = business
	c.insight.TechnicalImpact = technical
	c.insight.Complexity = complexity
	return c
}

func (c *candidate) text(title, description string, recommendations ...string) *candidate {
	c.insight.Title = title
	c.insight.Description = description
	c.insight.Recommendations = recommendations
	return c
}

// Confidence = clamp(0.3 + 0.5*min(1, evidence/(3*minEvidence)) + bonus*(families-1), 0, 1).
func Confidence(evidence, families, minEvidence int, bonus float64) float64 {
	if minEvidence < 1 {
		minEvidence = 1
	}
	if families < 1 {
		families = 1
	}
	coverage := math.Min(1, float64(evidence)/float64(3*minEvidence))
	c := 0.3 + 0.5*coverage + bonus*float64(families-1)
	return math.Min(1, math.Max(0, c))
}

// finish turns a candidate into a complete insight.
func (c *candidate) finish(sess *types.DiscoverySession, cfg *Config) *types.Insight {
	in := c.insight
	in.Project = sess.Project
	in.SessionID = sess.ID
	in.EvidenceCount = c.evidence

	in.Families = nil
	for f := range c.families {
		in.Families = append(in.Families, f)
	}
	sort.Slice(in.Families, func(i, j int) bool { return in.Families[i] < in.Families[j] })

	sort.SliceStable(c.refs, func(i, j int) bool {
		if c.refs[i].Family != c.refs[j].Family {
			return c.refs[i].Family < c.refs[j].Family
		}
		return c.refs[i].ID < c.refs[j].ID
	})
	in.SupportingPatterns = dedupeRefs(c.refs)

	in.Confidence = Confidence(c.evidence, len(in.Families), cfg.MinEvidence, cfg.AgreementBonus)
	in.PriorityScore = priorities.Score(in.RiskLevel, in.BusinessImpact, in.Confidence, in.Complexity)
	in.Priority = priorities.Level(in.PriorityScore)
	return in
}

func dedupeRefs(refs []types.PatternRef) []types.PatternRef {
	out := make([]types.PatternRef, 0, len(refs))
	for i, r := range refs {
		if i > 0 && r == refs[i-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// topLevelDir returns the first path segment, or "." for root files.
func topLevelDir(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.Index(path, "/"); i > 0 {
		return path[:i]
	}
	return "."
}

// developerLabel is the name shown in insight text.
func developerLabel(d *types.DeveloperPattern) string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	if len(d.DeveloperHash) > 8 {
		return d.DeveloperHash[:8]
	}
	return d.DeveloperHash
}
