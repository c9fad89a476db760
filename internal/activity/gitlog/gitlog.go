// Package gitlog implements activity.Source over a local git repository
// using the git CLI.
package gitlog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/devpulse/internal/types"
)

const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
)

// logFormat emits one header line per commit followed by --numstat/--summary lines.
var logFormat = recordSep + strings.Join([]string{"%H", "%an", "%ae", "%cn", "%ce", "%aI", "%cI", "%P", "%s"}, fieldSep)

// Source reads commits and file changes from `git log`.
// SECURITY: repoPath must be a validated, trusted path. This type does not
// perform path validation or sandboxing.
type Source struct {
	gitPath  string
	repoPath string
	project  string
	branch   string

	mu    sync.Mutex
	cache map[types.CommitRange]*parsedLog
}

type parsedLog struct {
	commits []*types.Commit
	changes map[string][]*types.FileChange
}

// NewSource creates a git-backed source. It verifies that git is available.
func NewSource(ctx context.Context, repoPath, project string) (*Source, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", repoPath, err)
	}

	return &Source{
		gitPath:  gitPath,
		repoPath: repoPath,
		project:  project,
		branch:   strings.TrimSpace(string(out)),
		cache:    make(map[types.CommitRange]*parsedLog),
	}, nil
}

// ListCommits implements activity.Source. git's --since/--until filter on
// committer date, so the log is read from Start onward and author dates are
// filtered in process.
func (s *Source) ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error) {
	log, err := s.load(ctx, project, rng)
	if err != nil {
		return nil, err
	}
	if offset >= len(log.commits) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(log.commits) {
		end = len(log.commits)
	}
	return log.commits[offset:end], nil
}

// ListFileChanges implements activity.Source.
func (s *Source) ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error) {
	if project != s.project {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.FileChange
	seen := make(map[string]bool, len(shas))
	for _, sha := range shas {
		if seen[sha] {
			continue
		}
		seen[sha] = true
		for _, log := range s.cache {
			if fcs, ok := log.changes[sha]; ok {
				out = append(out, fcs...)
				break
			}
		}
	}
	return out, nil
}

// ListDeveloperSessions implements activity.Source. git records no sessions.
func (s *Source) ListDeveloperSessions(ctx context.Context, project string, rng types.CommitRange) ([]*types.DeveloperSession, error) {
	return nil, nil
}

func (s *Source) load(ctx context.Context, project string, rng types.CommitRange) (*parsedLog, error) {
	if project != s.project {
		return &parsedLog{changes: map[string][]*types.FileChange{}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok := s.cache[rng]; ok {
		return log, nil
	}

	cmd := exec.CommandContext(ctx, s.gitPath, "-C", s.repoPath, "log",
		"--no-merges", "--numstat", "--summary", "--format="+logFormat,
		"--since="+rng.Start.Format(time.RFC3339))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log failed in %s: %w", s.repoPath, err)
	}

	commits, changes, err := ParseLog(project, s.branch, out)
	if err != nil {
		return nil, err
	}

	log := &parsedLog{changes: make(map[string][]*types.FileChange)}
	for _, c := range commits {
		if !rng.Contains(c.AuthorDate) {
			continue
		}
		log.commits = append(log.commits, c)
	}
	sort.Slice(log.commits, func(i, j int) bool {
		if !log.commits[i].AuthorDate.Equal(log.commits[j].AuthorDate) {
			return log.commits[i].AuthorDate.Before(log.commits[j].AuthorDate)
		}
		return log.commits[i].SHA < log.commits[j].SHA
	})
	for _, fc := range changes {
		log.changes[fc.Commit] = append(log.changes[fc.Commit], fc)
	}
	s.cache[rng] = log
	return log, nil
}

// ParseLog parses `git log --numstat --summary` output produced with logFormat.
func ParseLog(project, branch string, out []byte) ([]*types.Commit, []*types.FileChange, error) {
	var commits []*types.Commit
	var changes []*types.FileChange
	var cur *types.Commit
	byPath := map[string]*types.FileChange{}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, recordSep) {
			c, err := parseHeader(project, branch, strings.TrimPrefix(line, recordSep))
			if err != nil {
				return nil, nil, err
			}
			cur = c
			byPath = map[string]*types.FileChange{}
			commits = append(commits, c)
			continue
		}
		if cur == nil || strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, " ") {
			applySummary(strings.TrimSpace(line), byPath)
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		added, _ := strconv.Atoi(parts[0]) // "-" for binary files
		removed, _ := strconv.Atoi(parts[1])
		path, renamed := resolveRename(parts[2])
		fc := &types.FileChange{
			Project:      project,
			Commit:       cur.SHA,
			FilePath:     path,
			ChangeType:   types.ChangeModified,
			LinesAdded:   added,
			LinesRemoved: removed,
		}
		if renamed {
			fc.ChangeType = types.ChangeRenamed
		}
		byPath[path] = fc
		changes = append(changes, fc)
		cur.FilesChanged++
		cur.Insertions += added
		cur.Deletions += removed
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read git log output: %w", err)
	}
	return commits, changes, nil
}

func parseHeader(project, branch, line string) (*types.Commit, error) {
	f := strings.Split(line, fieldSep)
	if len(f) != 9 {
		return nil, fmt.Errorf("malformed git log header: %q", line)
	}
	authorDate, err := time.Parse(time.RFC3339, f[5])
	if err != nil {
		return nil, fmt.Errorf("bad author date %q: %w", f[5], err)
	}
	committerDate, err := time.Parse(time.RFC3339, f[6])
	if err != nil {
		return nil, fmt.Errorf("bad committer date %q: %w", f[6], err)
	}
	msg := f[8]
	if strings.TrimSpace(msg) == "" {
		msg = "(no message)"
	}
	return &types.Commit{
		Project:        project,
		SHA:            f[0],
		Author:         f[1],
		AuthorEmail:    f[2],
		Committer:      f[3],
		CommitterEmail: f[4],
		AuthorDate:     authorDate.UTC(),
		CommitterDate:  committerDate.UTC(),
		Branch:         branch,
		ParentSHAs:     strings.Fields(f[7]),
		Message:        msg,
	}, nil
}

// applySummary reads " create mode 100644 path" / " delete mode ..." lines.
func applySummary(line string, byPath map[string]*types.FileChange) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return
	}

	var ct types.ChangeType
	var path string
	switch {
	case fields[0] == "create":
		ct, path = types.ChangeAdded, strings.Join(fields[3:], " ")
	case fields[0] == "delete":
		ct, path = types.ChangeDeleted, strings.Join(fields[3:], " ")
	case fields[0] == "mode" && fields[1] == "change" && len(fields) >= 6:
		ct, path = types.ChangeTypechange, strings.Join(fields[5:], " ")
	default:
		return
	}
	if fc, ok := byPath[path]; ok {
		fc.ChangeType = ct
	}
}

// resolveRename turns numstat rename notation into the destination path:
// "old => new" or "dir/{old => new}/file".
func resolveRename(p string) (string, bool) {
	if !strings.Contains(p, " => ") {
		return p, false
	}
	if open := strings.Index(p, "{"); open >= 0 {
		if close := strings.Index(p[open:], "}"); close >= 0 {
			inner := p[open+1 : open+close]
			parts := strings.SplitN(inner, " => ", 2)
			dst := p[:open] + parts[len(parts)-1] + p[open+close+1:]
			return strings.ReplaceAll(dst, "//", "/"), true
		}
	}
	parts := strings.SplitN(p, " => ", 2)
	return parts[1], true
}
