package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/stats"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/types"
)

// Hour bands used for work-schedule classification (UTC, inclusive).
const (
	businessStartHour = 9
	businessEndHour   = 17
	nightStartHour    = 22
	nightEndHour      = 5
)

// DeveloperMiner profiles each developer active in the session's range.
type DeveloperMiner struct {
	store  storage.Storage
	config DeveloperConfig
}

// NewDeveloperMiner creates a developer profiler.
func NewDeveloperMiner(store storage.Storage, cfg DeveloperConfig) *DeveloperMiner {
	return &DeveloperMiner{store: store, config: cfg}
}

// Name implements Miner.
func (m *DeveloperMiner) Name() string { return MinerDeveloper }

// Family implements Miner.
func (m *DeveloperMiner) Family() types.PatternFamily { return types.FamilyDeveloper }

// Mine implements Miner.
func (m *DeveloperMiner) Mine(ctx context.Context, in *MineInput) (*MinerResult, error) {
	patterns := ComputeDevelopers(in.Session, in.Activity, m.config)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(patterns) > 0 {
		if err := m.store.UpsertDeveloperPatterns(ctx, patterns); err != nil {
			return nil, err
		}
	}
	return &MinerResult{PatternsWritten: len(patterns)}, nil
}

// devAcc accumulates one developer's activity.
type devAcc struct {
	hash        string
	name        string
	commits     []*types.Commit
	sizes       []float64
	added       int
	removed     int
	files       map[string]int
	dirs        map[string]int
	hourCounts  [24]int
	activeHours map[int]bool
	sessions    []*types.DeveloperSession
}

// ComputeDevelopers builds one profile per developer hash, sorted by hash.
func ComputeDevelopers(sess *types.DiscoverySession, snap *activity.Snapshot, cfg DeveloperConfig) []*types.DeveloperPattern {
	if snap.TotalCommits() == 0 {
		return nil
	}

	devs := make(map[string]*devAcc)
	fileOwners := make(map[string]map[string]int) // path -> developer -> changes
	allDirs := make(map[string]bool)

	for _, c := range snap.Commits {
		hash := c.DeveloperHash()
		d := devs[hash]
		if d == nil {
			d = &devAcc{
				hash:        hash,
				name:        c.Author,
				files:       make(map[string]int),
				dirs:        make(map[string]int),
				activeHours: make(map[int]bool),
			}
			devs[hash] = d
		}
		d.commits = append(d.commits, c)
		h := c.AuthorDate.UTC().Hour()
		d.hourCounts[h]++
		d.activeHours[h] = true

		size := 0
		for _, fc := range snap.FilesOf(c.SHA) {
			size += fc.Size()
			d.added += fc.LinesAdded
			d.removed += fc.LinesRemoved
			d.files[fc.FilePath]++

			dir := topLevelDir(fc.FilePath)
			d.dirs[dir]++
			allDirs[dir] = true

			owners := fileOwners[fc.FilePath]
			if owners == nil {
				owners = make(map[string]int)
				fileOwners[fc.FilePath] = owners
			}
			owners[hash]++
		}
		d.sizes = append(d.sizes, float64(size))
	}

	for _, s := range snap.Sessions {
		if d := devs[s.DeveloperHash()]; d != nil {
			d.sessions = append(d.sessions, s)
		}
	}

	dirNames := make([]string, 0, len(allDirs))
	for dir := range allDirs {
		dirNames = append(dirNames, dir)
	}
	sort.Strings(dirNames)

	hashes := make([]string, 0, len(devs))
	for h := range devs {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	out := make([]*types.DeveloperPattern, 0, len(devs))
	for _, hash := range hashes {
		d := devs[hash]
		out = append(out, profileDeveloper(sess, d, devs, fileOwners, dirNames, cfg))
	}
	return out
}

func profileDeveloper(
	sess *types.DiscoverySession,
	d *devAcc,
	devs map[string]*devAcc,
	fileOwners map[string]map[string]int,
	dirNames []string,
	cfg DeveloperConfig,
) *types.DeveloperPattern {
	size := stats.Describe(d.sizes)
	first, last := d.commits[0].AuthorDate.UTC(), d.commits[len(d.commits)-1].AuthorDate.UTC()

	p := &types.DeveloperPattern{
		Project:          sess.Project,
		SessionID:        sess.ID,
		DeveloperHash:    d.hash,
		DisplayName:      d.name,
		CommitCount:      len(d.commits),
		LinesAdded:       d.added,
		LinesRemoved:     d.removed,
		AvgCommitSize:    size.Mean,
		MedianCommitSize: size.Median,
		StdDevCommitSize: size.StdDev,
		UniqueFiles:      len(d.files),
		FirstCommitAt:    first,
		LastCommitAt:     last,
	}

	// Ownership
	collaborators := make(map[string]bool)
	type specialty struct {
		path  string
		count int
	}
	var specialties []specialty
	for path, count := range d.files {
		owners := fileOwners[path]
		if len(owners) == 1 {
			p.ExclusiveFiles++
		}
		total := 0
		for owner, n := range owners {
			total += n
			if owner != d.hash {
				collaborators[owner] = true
			}
		}
		if count >= cfg.SpecialtyMinChanges && float64(count)/float64(total) >= cfg.SpecialtyShare {
			specialties = append(specialties, specialty{path, count})
		}
	}
	sort.Slice(specialties, func(i, j int) bool {
		if specialties[i].count != specialties[j].count {
			return specialties[i].count > specialties[j].count
		}
		return specialties[i].path < specialties[j].path
	})
	for i, s := range specialties {
		if cfg.MaxSpecialtyFiles > 0 && i >= cfg.MaxSpecialtyFiles {
			break
		}
		p.SpecialtyFiles = append(p.SpecialtyFiles, s.path)
	}
	for c := range collaborators {
		p.Collaborators = append(p.Collaborators, c)
	}
	sort.Strings(p.Collaborators)

	// Focus
	dirCounts := make([]float64, len(dirNames))
	touched := 0
	for i, dir := range dirNames {
		dirCounts[i] = float64(d.dirs[dir])
		if d.dirs[dir] > 0 {
			touched++
		}
	}
	p.SpecializationScore = types.Clamp01(1 - stats.NormalizedEntropy(dirCounts))
	if len(dirNames) > 0 {
		p.KnowledgeBreadth = types.Clamp01(float64(touched) / float64(len(dirNames)))
	}

	// Pace
	tenure := types.CommitRange{Start: first, End: last}
	p.ChangeVelocity = float64(len(d.commits)) / tenure.Weeks()
	p.Consistency = types.Clamp01(1 - stats.CV(weeklyCounts(d.commits)))

	// Collaboration
	if len(devs) > 1 {
		p.CollaborationScore = types.Clamp01(float64(len(collaborators)) / float64(len(devs)-1))
	}
	if len(p.Collaborators) > 0 {
		var sum float64
		for _, other := range p.Collaborators {
			sum += temporalOverlap(d, devs[other])
		}
		p.TemporalOverlap = types.Clamp01(sum / float64(len(p.Collaborators)))
	}

	exclusiveRatio := 0.0
	if p.UniqueFiles > 0 {
		exclusiveRatio = float64(p.ExclusiveFiles) / float64(p.UniqueFiles)
	}
	p.KnowledgeSiloRisk = types.Clamp01(0.6*exclusiveRatio + 0.4*(1-p.TemporalOverlap))

	p.PreferredHours = preferredHours(d.hourCounts)
	p.WorkSchedule = ClassifySchedule(p.PreferredHours)
	return p
}

// topLevelDir returns the first path segment, or "." for files at the root.
func topLevelDir(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.Index(path, "/"); i > 0 {
		return path[:i]
	}
	return "."
}

// weeklyCounts buckets commits into consecutive weeks from the first commit,
// including empty weeks in between.
func weeklyCounts(commits []*types.Commit) []float64 {
	if len(commits) == 0 {
		return nil
	}
	first := commits[0].AuthorDate
	week := 7 * 24 * time.Hour
	n := int(commits[len(commits)-1].AuthorDate.Sub(first)/week) + 1
	counts := make([]float64, n)
	for _, c := range commits {
		i := int(c.AuthorDate.Sub(first) / week)
		if i >= 0 && i < n {
			counts[i]++
		}
	}
	return counts
}

// temporalOverlap compares when two developers work. Session intervals are
// used when both have them; otherwise the Jaccard similarity of the hours
// they commit in.
func temporalOverlap(a, b *devAcc) float64 {
	if b == nil {
		return 0
	}
	if len(a.sessions) > 0 && len(b.sessions) > 0 {
		return sessionOverlap(a.sessions, b.sessions)
	}
	inter, union := 0, 0
	for h := 0; h < 24; h++ {
		ia, ib := a.activeHours[h], b.activeHours[h]
		if ia && ib {
			inter++
		}
		if ia || ib {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// sessionOverlap is shared time over combined time (a Jaccard index over
// durations).
func sessionOverlap(a, b []*types.DeveloperSession) float64 {
	var totalA, totalB, shared time.Duration
	for _, s := range a {
		totalA += sessionLength(s)
	}
	for _, s := range b {
		totalB += sessionLength(s)
	}
	for _, x := range a {
		for _, y := range b {
			start, end := x.StartedAt, x.EndedAt
			if y.StartedAt.After(start) {
				start = y.StartedAt
			}
			if y.EndedAt.Before(end) {
				end = y.EndedAt
			}
			if end.After(start) {
				shared += end.Sub(start)
			}
		}
	}
	union := totalA + totalB - shared
	if union <= 0 {
		return 0
	}
	return types.Clamp01(float64(shared) / float64(union))
}

func sessionLength(s *types.DeveloperSession) time.Duration {
	if s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// preferredHours returns the hours whose commit count is at least the mean
// of the non-zero hours.
func preferredHours(counts [24]int) []int {
	var sum, active int
	for _, c := range counts {
		if c > 0 {
			sum += c
			active++
		}
	}
	if active == 0 {
		return nil
	}
	mean := float64(sum) / float64(active)
	var hours []int
	for h, c := range counts {
		if c > 0 && float64(c) >= mean {
			hours = append(hours, h)
		}
	}
	return hours
}

// ClassifySchedule maps preferred hours onto the business and night bands.
func ClassifySchedule(hours []int) types.WorkSchedule {
	if len(hours) == 0 {
		return types.ScheduleFlexible
	}
	business, night := 0, 0
	for _, h := range hours {
		if h >= businessStartHour && h <= businessEndHour {
			business++
		}
		if h >= nightStartHour || h <= nightEndHour {
			night++
		}
	}
	switch {
	case business == len(hours):
		return types.ScheduleBusinessHours
	case float64(night)/float64(len(hours)) >= 0.5:
		return types.ScheduleNightOwl
	}
	return types.ScheduleFlexible
}

