package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the per-project state directory holding the database and lock.
const DirName = ".devpulse"

// DiscoverDatabase looks for .devpulse/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// DEVPULSE_DB_PATH takes precedence so tests and scheduled jobs can point at
// an explicit database (":memory:" included) without discovery.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("DEVPULSE_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	// Only the current directory; a nested checkout must not pick up the
	// parent project's database.
	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .devpulse/*.db in the specified directory only.
func discoverDatabaseInDir(dir string) (string, error) {
	stateDir := filepath.Join(dir, DirName)

	if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(stateDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(stateDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'devpulse init' to initialize this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		DirName, dir)
}

// GetProjectRoot returns the directory containing the .devpulse/ directory
// for a given database path.
//
// Example:
//
//	dbPath: /home/user/myproject/.devpulse/devpulse.db
//	returns: /home/user/myproject
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != DirName {
		return "", fmt.Errorf("database must be in a %s/ directory, got: %s", DirName, dbPath)
	}

	return filepath.Dir(dbDir), nil
}

// InitProject creates the .devpulse directory and returns the database path
// that should be opened. The database itself is created on first connection.
// If the database already exists its path is returned with an error wrapping
// os.ErrExist.
func InitProject(projectDir, dbName string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	stateDir := filepath.Join(projectDir, DirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}

	if dbName == "" {
		dbName = filepath.Base(DefaultPath)
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(stateDir, dbName)
	if _, err := os.Stat(dbPath); err == nil {
		return dbPath, fmt.Errorf("database %s: %w", dbPath, os.ErrExist)
	}

	return dbPath, nil
}
