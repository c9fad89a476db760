package insights

import (
	"fmt"
	"sort"

	"github.com/steveyegge/devpulse/internal/types"
)

// rule proposes insights of one type from a session's evidence. Rules only
// propose candidates meeting cfg.MinEvidence.
type rule func(e *Evidence, cfg *Config) []*candidate

// rules covers the whole insight taxonomy.
var rules = map[types.InsightType]rule{
	types.InsightFileCoupling:         fileCouplingRule,
	types.InsightTemporalPattern:      temporalPatternRule,
	types.InsightSpecialization:       specializationRule,
	types.InsightHighRiskFiles:        highRiskFilesRule,
	types.InsightAnomaly:              anomalyRule,
	types.InsightCollaborationGap:     collaborationGapRule,
	types.InsightArchitecturalHotspot: architecturalHotspotRule,
	types.InsightQualityConcern:       qualityConcernRule,
	types.InsightKnowledgeSilo:        knowledgeSiloRule,
	types.InsightProcessOptimization:  processOptimizationRule,
	types.InsightTechnicalDebt:        technicalDebtRule,
	types.InsightPerformanceRisk:      performanceRiskRule,
}

// Subject keys
func fileSubject(path string) string      { return "file:" + path }
func pairSubject(a, b string) string      { return "pair:" + a + "|" + b }
func developerSubject(hash string) string { return "developer:" + hash }
func dirSubject(dir string) string        { return "dir:" + dir }

func fileCouplingRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, p := range e.Pairs {
		if p.Strength.Rank() < types.StrengthModerate.Rank() || p.CooccurrenceCount < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightFileCoupling, pairSubject(p.Path1, p.Path2), p.CooccurrenceCount).
			support(types.FamilyCooccurrence, p.ID)

		// Both files churning heavily corroborates the coupling.
		f1, f2 := e.File(p.Path1), e.File(p.Path2)
		if f1 != nil && f2 != nil && f1.HotspotScore >= 0.6 && f2.HotspotScore >= 0.6 {
			c.support(types.FamilyChangeMagnitude, f1.ID).support(types.FamilyChangeMagnitude, f2.ID)
		}

		risk, technical := types.RiskMedium, types.RiskMedium
		if p.Strength == types.StrengthVeryStrong {
			risk, technical = types.RiskHigh, types.RiskHigh
		}
		business := types.RiskLow
		if p.Bidirectional {
			business = types.RiskMedium
		}
		c.impact(risk, business, technical, types.ComplexityMedium).
			text(fmt.Sprintf("%s and %s change together", p.Path1, p.Path2),
				fmt.Sprintf("These files changed together in %d commits (lift %.1f, confidence %.0f%%).",
					p.CooccurrenceCount, p.Lift, 100*p.MaxConfidence()),
				"Review whether the shared logic belongs in one module",
				"Add a test that covers both files together",
				"Document the dependency for reviewers")
		out = append(out, c)
	}
	return out
}

func temporalPatternRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, p := range e.Temporal {
		if p.Strength.Rank() < types.StrengthModerate.Rank() || p.TotalCommits < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightTemporalPattern, "temporal:"+string(p.PatternType), p.TotalCommits).
			support(types.FamilyTemporal, p.ID)

		// Developers whose preferred hours fall on the peaks agree.
		if p.PatternType == types.TemporalHourly {
			peaks := make(map[int]bool, len(p.PeakBuckets))
			for _, b := range p.PeakBuckets {
				peaks[b] = true
			}
			for _, d := range e.Devs {
				for _, h := range d.PreferredHours {
					if peaks[h] {
						c.support(types.FamilyDeveloper, d.ID)
						break
					}
				}
			}
		}

		c.impact(types.RiskLow, types.RiskLow, types.RiskLow, types.ComplexityLow).
			text(fmt.Sprintf("Commits follow a %s rhythm (%s)", p.PatternType, p.Strength),
				fmt.Sprintf("Commit timing departs from uniform across %s buckets (chi-square %.1f, p=%.3g); peaks at %v.",
					p.PatternType, p.ChiSquare, p.PValue, p.PeakBuckets),
				"Schedule reviews and deploys around the peak periods",
				"Avoid maintenance windows during peaks")
		out = append(out, c)
	}
	return out
}

func specializationRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, d := range e.Devs {
		if d.SpecializationScore < 0.8 || d.CommitCount < cfg.MinEvidence || len(e.Devs) < 2 {
			continue
		}
		c := newCandidate(types.InsightSpecialization, developerSubject(d.DeveloperHash), d.CommitCount).
			support(types.FamilyDeveloper, d.ID)
		for _, path := range d.SpecialtyFiles {
			if f := e.File(path); f != nil && f.ContributorCount == 1 {
				c.support(types.FamilyChangeMagnitude, f.ID)
			}
		}
		c.impact(types.RiskMedium, types.RiskMedium, types.RiskLow, types.ComplexityMedium).
			text(fmt.Sprintf("%s works in a narrow area", developerLabel(d)),
				fmt.Sprintf("Specialization %.2f over %d commits; specialty files: %v.",
					d.SpecializationScore, d.CommitCount, d.SpecialtyFiles),
				"Pair on changes outside the specialty area",
				"Rotate review duties for the specialty files")
		out = append(out, c)
	}
	return out
}

func highRiskFilesRule(e *Evidence, cfg *Config) []*candidate {
	silo := siloOwners(e)
	var out []*candidate
	for _, f := range e.Files {
		if f.RiskLevel.Rank() < types.RiskHigh.Rank() || f.ChangeCount < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightHighRiskFiles, fileSubject(f.FilePath), f.ChangeCount).
			support(types.FamilyChangeMagnitude, f.ID)
		for _, p := range e.Pairs {
			if (p.Path1 == f.FilePath || p.Path2 == f.FilePath) && p.Strength.Rank() >= types.StrengthStrong.Rank() {
				c.support(types.FamilyCooccurrence, p.ID)
			}
		}
		if d := silo[f.FilePath]; d != nil {
			c.support(types.FamilyDeveloper, d.ID)
		}

		business := types.RiskMedium
		if f.RiskLevel == types.RiskCritical {
			business = types.RiskHigh
		}
		c.impact(f.RiskLevel, business, f.RiskLevel, types.ComplexityHigh).
			text(fmt.Sprintf("%s is a %s-risk file", f.FilePath, f.RiskLevel),
				fmt.Sprintf("%d changes (%.1f/week), hotspot %.2f, anomaly %.2f, debt %.2f.",
					f.ChangeCount, f.ChangeFrequency, f.HotspotScore, f.AnomalyScore, f.TechnicalDebt),
				"Add focused tests before the next change",
				"Require a second reviewer for changes to this file",
				"Consider splitting the file along its change boundaries")
		out = append(out, c)
	}
	return out
}

func anomalyRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, f := range e.Files {
		if f.AnomalyScore < 0.9 || f.ChangeCount < cfg.MinEvidence {
			continue
		}
		risk := types.RiskMedium
		if f.AnomalyScore >= 0.95 {
			risk = types.RiskHigh
		}
		c := newCandidate(types.InsightAnomaly, fileSubject(f.FilePath), f.ChangeCount).
			support(types.FamilyChangeMagnitude, f.ID).
			impact(risk, types.RiskLow, risk, types.ComplexityLow).
			text(fmt.Sprintf("Unusual change sizes in %s", f.FilePath),
				fmt.Sprintf("Average change of %.0f lines is far from the project's typical file (anomaly %.2f).",
					f.AvgLinesChanged, f.AnomalyScore),
				"Check whether generated or vendored content is committed by hand",
				"Break large changes into reviewable steps")
		out = append(out, c)
	}
	return out
}

func collaborationGapRule(e *Evidence, cfg *Config) []*candidate {
	if len(e.Devs) < 2 {
		return nil
	}
	var out []*candidate
	for _, d := range e.Devs {
		if d.CollaborationScore >= 0.2 || d.TemporalOverlap >= 0.2 || d.CommitCount < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightCollaborationGap, developerSubject(d.DeveloperHash), d.CommitCount).
			support(types.FamilyDeveloper, d.ID)
		if p := e.TemporalOf(types.TemporalHourly); p != nil && p.Strength.Rank() >= types.StrengthModerate.Rank() {
			c.support(types.FamilyTemporal, p.ID)
		}
		c.impact(types.RiskMedium, types.RiskMedium, types.RiskLow, types.ComplexityMedium).
			text(fmt.Sprintf("%s rarely overlaps with the team", developerLabel(d)),
				fmt.Sprintf("Collaboration %.2f and temporal overlap %.2f across %d commits.",
					d.CollaborationScore, d.TemporalOverlap, d.CommitCount),
				"Set up shared review time",
				"Pair on upcoming work in shared files")
		out = append(out, c)
	}
	return out
}

func architecturalHotspotRule(e *Evidence, cfg *Config) []*candidate {
	type dirAcc struct {
		files   []*types.ChangeMagnitudePattern
		changes int
	}
	dirs := make(map[string]*dirAcc)
	for _, f := range e.Files {
		if f.HotspotScore < 0.8 {
			continue
		}
		dir := topLevelDir(f.FilePath)
		acc := dirs[dir]
		if acc == nil {
			acc = &dirAcc{}
			dirs[dir] = acc
		}
		acc.files = append(acc.files, f)
		acc.changes += f.ChangeCount
	}

	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)

	var out []*candidate
	for _, dir := range names {
		acc := dirs[dir]
		if len(acc.files) < 2 || acc.changes < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightArchitecturalHotspot, dirSubject(dir), acc.changes)
		for _, f := range acc.files {
			c.support(types.FamilyChangeMagnitude, f.ID)
		}
		for _, p := range e.Pairs {
			if topLevelDir(p.Path1) == dir && topLevelDir(p.Path2) == dir && p.Strength.Rank() >= types.StrengthModerate.Rank() {
				c.support(types.FamilyCooccurrence, p.ID)
			}
		}
		c.impact(types.RiskHigh, types.RiskMedium, types.RiskHigh, types.ComplexityHigh).
			text(fmt.Sprintf("%s is an architectural hotspot", dir),
				fmt.Sprintf("%d hot files in %s account for %d changes.", len(acc.files), dir, acc.changes),
				"Review the module boundaries of this area",
				"Plan a refactoring of the most coupled files")
		out = append(out, c)
	}
	return out
}

func qualityConcernRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, f := range e.Files {
		churn := f.LinesAdded + f.LinesRemoved
		if churn == 0 || f.VolatilityScore < 0.7 || f.ChangeCount < cfg.MinEvidence {
			continue
		}
		rework := float64(f.LinesRemoved) / float64(churn)
		if rework < 0.4 {
			continue
		}
		c := newCandidate(types.InsightQualityConcern, fileSubject(f.FilePath), f.ChangeCount).
			support(types.FamilyChangeMagnitude, f.ID).
			impact(types.RiskMedium, types.RiskMedium, types.RiskHigh, types.ComplexityMedium).
			text(fmt.Sprintf("%s is repeatedly reworked", f.FilePath),
				fmt.Sprintf("%.0f%% of changed lines are removals and change sizes vary widely (volatility %.2f).",
					100*rework, f.VolatilityScore),
				"Look for unclear requirements behind the rework",
				"Strengthen tests around the reworked behavior")
		out = append(out, c)
	}
	return out
}

func knowledgeSiloRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, d := range e.Devs {
		if d.KnowledgeSiloRisk < 0.7 || d.ExclusiveFiles == 0 || d.CommitCount < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightKnowledgeSilo, developerSubject(d.DeveloperHash), d.CommitCount).
			support(types.FamilyDeveloper, d.ID)
		for _, path := range d.SpecialtyFiles {
			if f := e.File(path); f != nil && f.ContributorCount == 1 {
				c.support(types.FamilyChangeMagnitude, f.ID)
			}
		}
		risk := types.RiskHigh
		if d.KnowledgeSiloRisk >= 0.9 {
			risk = types.RiskCritical
		}
		c.impact(risk, types.RiskHigh, types.RiskMedium, types.ComplexityMedium).
			text(fmt.Sprintf("Knowledge silo around %s", developerLabel(d)),
				fmt.Sprintf("%d of %d files are touched only by this developer (silo risk %.2f).",
					d.ExclusiveFiles, d.UniqueFiles, d.KnowledgeSiloRisk),
				"Document the exclusively owned files",
				"Have another developer make the next change to them")
		out = append(out, c)
	}
	return out
}

func processOptimizationRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate

	if p := e.TemporalOf(types.TemporalDaily); p != nil && len(p.Observed) == 7 {
		weekend := p.Observed[5] + p.Observed[6]
		if weekend >= cfg.MinEvidence && float64(weekend) >= 0.25*float64(p.TotalCommits) {
			c := newCandidate(types.InsightProcessOptimization, "process:weekend_work", weekend).
				support(types.FamilyTemporal, p.ID).
				impact(types.RiskMedium, types.RiskMedium, types.RiskLow, types.ComplexityLow).
				text("A large share of commits land on weekends",
					fmt.Sprintf("%d of %d commits were made on Saturday or Sunday.", weekend, p.TotalCommits),
					"Check whether deadlines are pushing work into weekends",
					"Revisit sprint scope")
			out = append(out, c)
		}
	}

	if p := e.TemporalOf(types.TemporalHourly); p != nil && len(p.Observed) == 24 {
		night := 0
		for h, n := range p.Observed {
			if h >= 22 || h <= 5 {
				night += n
			}
		}
		if night >= cfg.MinEvidence && float64(night) >= 0.25*float64(p.TotalCommits) {
			c := newCandidate(types.InsightProcessOptimization, "process:off_hours_work", night).
				support(types.FamilyTemporal, p.ID)
			for _, d := range e.Devs {
				if d.WorkSchedule == types.ScheduleNightOwl {
					c.support(types.FamilyDeveloper, d.ID)
				}
			}
			c.impact(types.RiskMedium, types.RiskMedium, types.RiskLow, types.ComplexityLow).
				text("Many commits happen late at night",
					fmt.Sprintf("%d of %d commits were made between 22:00 and 05:59 UTC.", night, p.TotalCommits),
					"Check on-call load and release timing",
					"Move risky merges into staffed hours")
			out = append(out, c)
		}
	}
	return out
}

func technicalDebtRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, f := range e.Files {
		if f.TechnicalDebt < 0.6 || f.ChangeCount < cfg.MinEvidence {
			continue
		}
		risk := types.RiskMedium
		if f.TechnicalDebt >= 0.8 {
			risk = types.RiskHigh
		}
		c := newCandidate(types.InsightTechnicalDebt, fileSubject(f.FilePath), f.ChangeCount).
			support(types.FamilyChangeMagnitude, f.ID).
			impact(risk, types.RiskLow, risk, types.ComplexityHigh).
			text(fmt.Sprintf("%s is accumulating technical debt", f.FilePath),
				fmt.Sprintf("Debt indicator %.2f from rework and volatile change sizes over %d changes.",
					f.TechnicalDebt, f.ChangeCount),
				"Schedule a cleanup of this file",
				"Track the debt indicator across sessions")
		out = append(out, c)
	}
	return out
}

func performanceRiskRule(e *Evidence, cfg *Config) []*candidate {
	var out []*candidate
	for _, f := range e.Files {
		if f.Trend != types.TrendIncreasing || f.HotspotScore < 0.6 || f.ChangeCount < cfg.MinEvidence {
			continue
		}
		c := newCandidate(types.InsightPerformanceRisk, fileSubject(f.FilePath), f.ChangeCount).
			support(types.FamilyChangeMagnitude, f.ID).
			impact(types.RiskHigh, types.RiskMedium, types.RiskMedium, types.ComplexityMedium).
			text(fmt.Sprintf("Change rate of %s keeps rising", f.FilePath),
				fmt.Sprintf("Change frequency grows by %.2f/week per week across sessions; now %.1f/week.",
					f.TrendSlope, f.ChangeFrequency),
				"Find what is driving the growing change rate",
				"Add benchmarks or regression tests before it grows further")
		out = append(out, c)
	}
	return out
}

// siloOwners maps each file to the high-silo-risk developer specialising in
// it, if any.
func siloOwners(e *Evidence) map[string]*types.DeveloperPattern {
	out := make(map[string]*types.DeveloperPattern)
	for _, d := range e.Devs {
		if d.KnowledgeSiloRisk < 0.7 {
			continue
		}
		for _, path := range d.SpecialtyFiles {
			out[path] = d
		}
	}
	return out
}
