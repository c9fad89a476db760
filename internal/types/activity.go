package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CommitRange is a closed interval [Start, End] over commit author dates.
type CommitRange struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

// Validate checks that the range is well formed.
func (r CommitRange) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.End.Before(r.Start) {
		return invalidf("commit range end %s is before start %s",
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls inside the range (inclusive).
func (r CommitRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// IsSubsetOf reports whether r lies entirely within other.
func (r CommitRange) IsSubsetOf(other CommitRange) bool {
	return !r.Start.Before(other.Start) && !r.End.After(other.End)
}

// Equal compares two ranges at the instant level.
func (r CommitRange) Equal(other CommitRange) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

// Weeks returns the span of the range in weeks, never less than one.
func (r CommitRange) Weeks() float64 {
	w := r.End.Sub(r.Start).Hours() / (24 * 7)
	if w < 1 {
		return 1
	}
	return w
}

// Commit is an immutable commit record consumed from the activity store.
type Commit struct {
	Project        string    `json:"project"`
	SHA            string    `json:"sha"`
	Author         string    `json:"author"`
	AuthorEmail    string    `json:"author_email,omitempty"`
	Committer      string    `json:"committer"`
	CommitterEmail string    `json:"committer_email,omitempty"`
	AuthorDate     time.Time `json:"author_date"`
	CommitterDate  time.Time `json:"committer_date"`
	Branch         string    `json:"branch,omitempty"`
	ParentSHAs     []string  `json:"parent_shas,omitempty"`
	FilesChanged   int       `json:"files_changed"`
	Insertions     int       `json:"insertions"`
	Deletions      int       `json:"deletions"`
	Message        string    `json:"message"`
}

// DeveloperHash returns the stable identity hash of the commit author.
func (c *Commit) DeveloperHash() string {
	if c.AuthorEmail != "" {
		return HashIdentity(c.AuthorEmail)
	}
	return HashIdentity(c.Author)
}

// hashedIdentityPrefix marks an identity that was already replaced by its
// digest.
const hashedIdentityPrefix = "sha256:"

// HashIdentity hashes a developer identity (normally an email address).
// The raw value is never persisted; only this digest is. A pseudonymized
// identity yields the digest it carries.
func HashIdentity(identity string) string {
	if strings.HasPrefix(identity, hashedIdentityPrefix) {
		return strings.TrimPrefix(identity, hashedIdentityPrefix)
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identity))))
	return hex.EncodeToString(sum[:])
}

// PseudonymizeIdentity replaces a raw identity with its digest, keeping
// HashIdentity stable across the replacement. Empty stays empty.
func PseudonymizeIdentity(identity string) string {
	if identity == "" || strings.HasPrefix(identity, hashedIdentityPrefix) {
		return identity
	}
	return hashedIdentityPrefix + HashIdentity(identity)
}

// ChangeType categorizes a file change.
type ChangeType string

const (
	ChangeAdded      ChangeType = "added"
	ChangeModified   ChangeType = "modified"
	ChangeDeleted    ChangeType = "deleted"
	ChangeRenamed    ChangeType = "renamed"
	ChangeCopied     ChangeType = "copied"
	ChangeTypechange ChangeType = "typechange"
)

// IsValid checks if the change type value is valid
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeAdded, ChangeModified, ChangeDeleted, ChangeRenamed, ChangeCopied, ChangeTypechange:
		return true
	}
	return false
}

// FileChange is a per-file change inside a commit.
type FileChange struct {
	Project      string     `json:"project"`
	Commit       string     `json:"commit"`
	FilePath     string     `json:"file_path"`
	ChangeType   ChangeType `json:"change_type"`
	LinesAdded   int        `json:"lines_added"`
	LinesRemoved int        `json:"lines_removed"`
}

// Size is the total number of lines touched by the change.
func (f *FileChange) Size() int {
	return f.LinesAdded + f.LinesRemoved
}

// Validate checks producer-side invariants we rely on.
func (f *FileChange) Validate() error {
	if f.Commit == "" || f.FilePath == "" {
		return invalidf("file change requires commit and file path")
	}
	if !f.ChangeType.IsValid() {
		return invalidf("invalid change type: %s", f.ChangeType)
	}
	if f.LinesAdded < 0 || f.LinesRemoved < 0 {
		return invalidf("negative line counts for %s@%s", f.FilePath, f.Commit)
	}
	return nil
}

// DeveloperSession is optional context describing when a developer was active.
type DeveloperSession struct {
	Project   string    `json:"project"`
	Developer string    `json:"developer"` // identity (email); hashed before use
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// DeveloperHash returns the identity hash for the session's developer.
func (s *DeveloperSession) DeveloperHash() string {
	return HashIdentity(s.Developer)
}

// ActivityBatch groups activity records for import into a local store.
type ActivityBatch struct {
	Commits     []*Commit
	FileChanges []*FileChange
	Sessions    []*DeveloperSession
}

// Validate checks commit-level invariants before import.
func (b *ActivityBatch) Validate() error {
	for _, c := range b.Commits {
		if c.Project == "" || c.SHA == "" {
			return invalidf("commit requires project and sha")
		}
		if strings.TrimSpace(c.Message) == "" {
			return invalidf("commit %s has empty message", c.SHA)
		}
		if c.CommitterDate.Before(c.AuthorDate) {
			return invalidf("commit %s committer date precedes author date", c.SHA)
		}
	}
	for _, fc := range b.FileChanges {
		if err := fc.Validate(); err != nil {
			return err
		}
	}
	return nil
}
