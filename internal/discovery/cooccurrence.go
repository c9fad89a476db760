package discovery

import (
	"context"
	"math"
	"sort"

	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/types"
)

// CooccurrenceMiner runs market-basket analysis over the file sets of the
// session's commits.
type CooccurrenceMiner struct {
	store  storage.Storage
	config CooccurrenceConfig
}

// NewCooccurrenceMiner creates a co-occurrence miner.
func NewCooccurrenceMiner(store storage.Storage, cfg CooccurrenceConfig) *CooccurrenceMiner {
	return &CooccurrenceMiner{store: store, config: cfg}
}

// Name implements Miner.
func (m *CooccurrenceMiner) Name() string { return MinerCooccurrence }

// Family implements Miner.
func (m *CooccurrenceMiner) Family() types.PatternFamily { return types.FamilyCooccurrence }

type pairKey struct{ path1, path2 string }

type pairAcc struct {
	count   int
	commits []string
}

// Mine implements Miner.
func (m *CooccurrenceMiner) Mine(ctx context.Context, in *MineInput) (*MinerResult, error) {
	patterns := ComputeCooccurrence(in.Session, in.Activity.Commits, in.Activity.FilesOf, m.config)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(patterns) > 0 {
		if err := m.store.UpsertCooccurrencePatterns(ctx, patterns); err != nil {
			return nil, err
		}
	}
	return &MinerResult{PatternsWritten: len(patterns)}, nil
}

// ComputeCooccurrence derives pair statistics from commits. filesOf returns
// the file changes of a commit. The output is sorted by pair and is a pure
// function of its inputs.
func ComputeCooccurrence(sess *types.DiscoverySession, commits []*types.Commit, filesOf func(sha string) []*types.FileChange, cfg CooccurrenceConfig) []*types.CooccurrencePattern {
	total := len(commits)
	if total == 0 {
		return nil
	}

	fileCount := make(map[string]int)
	pairs := make(map[pairKey]*pairAcc)

	for _, c := range commits {
		paths := distinctPaths(filesOf(c.SHA))
		for _, p := range paths {
			fileCount[p]++
		}
		// Bulk commits still count toward the denominators
		if len(paths) > cfg.MaxFilesPerCommit {
			continue
		}
		for i := 0; i < len(paths); i++ {
			for j := i + 1; j < len(paths); j++ {
				k := pairKey{paths[i], paths[j]}
				acc := pairs[k]
				if acc == nil {
					acc = &pairAcc{}
					pairs[k] = acc
				}
				acc.count++
				acc.commits = append(acc.commits, c.SHA)
			}
		}
	}

	keys := make([]pairKey, 0, len(pairs))
	for k, acc := range pairs {
		if acc.count >= cfg.MinCooccurrence {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].path1 != keys[j].path1 {
			return keys[i].path1 < keys[j].path1
		}
		return keys[i].path2 < keys[j].path2
	})

	n := float64(total)
	out := make([]*types.CooccurrencePattern, 0, len(keys))
	for _, k := range keys {
		acc := pairs[k]
		co := float64(acc.count)
		countA := float64(fileCount[k.path1])
		countB := float64(fileCount[k.path2])

		support := co / n
		conf12 := co / countA
		conf21 := co / countB
		lift := (co * n) / (countA * countB)

		commitsCopy := append([]string(nil), acc.commits...)
		sort.Strings(commitsCopy)

		p := &types.CooccurrencePattern{
			Project:            sess.Project,
			SessionID:          sess.ID,
			Path1:              k.path1,
			Path2:              k.path2,
			PairHash:           types.PairHash(k.path1, k.path2),
			CooccurrenceCount:  acc.count,
			Support:            support,
			Confidence1To2:     conf12,
			Confidence2To1:     conf21,
			Lift:               lift,
			Bidirectional:      math.Abs(conf12-conf21) <= 0.1,
			ContributingCommit: commitsCopy,
		}
		p.Strength = ClassifyPairStrength(lift, p.MaxConfidence())
		out = append(out, p)
	}
	return out
}

// ClassifyPairStrength applies the lift/confidence bands.
func ClassifyPairStrength(lift, confidence float64) types.PatternStrength {
	switch {
	case lift >= 10 && confidence >= 0.8:
		return types.StrengthVeryStrong
	case lift >= 5 && confidence >= 0.6:
		return types.StrengthStrong
	case lift >= 2 && confidence >= 0.4:
		return types.StrengthModerate
	}
	return types.StrengthWeak
}

// distinctPaths returns the sorted distinct file paths of a commit.
func distinctPaths(changes []*types.FileChange) []string {
	seen := make(map[string]bool, len(changes))
	paths := make([]string, 0, len(changes))
	for _, fc := range changes {
		if seen[fc.FilePath] {
			continue
		}
		seen[fc.FilePath] = true
		paths = append(paths, fc.FilePath)
	}
	sort.Strings(paths)
	return paths
}
