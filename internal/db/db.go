// Package db locates and opens the workspace SQLite store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDir is the per-workspace directory holding the store.
const StateDir = ".projectdesk"

const fileName = "projectdesk.db"

// Writers wait up to 5s for a lock.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

type Config struct {
	Workspace string
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

// Path is where the store for workspace lives.
func Path(workspace string) string {
	return filepath.Join(workspaceDir(workspace), StateDir, fileName)
}

// EnsureWorkspace creates <workspace>/.projectdesk and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspaceDir(workspace), StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens the store for cfg.Workspace. The pool holds one connection.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
