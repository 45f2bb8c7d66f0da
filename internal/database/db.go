// Package database persists settings, the dispatch log and recent project
// folders in SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Database wraps the SQLite database connection
type Database struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return d, nil
}

func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS dispatches (
		id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		task_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		command TEXT NOT NULL,
		terminal_id TEXT,
		auto_saved INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dispatches_project ON dispatches(project_path, created_at);
	CREATE INDEX IF NOT EXISTS idx_dispatches_task ON dispatches(task_id);

	CREATE TABLE IF NOT EXISTS projects (
		path TEXT PRIMARY KEY,
		last_opened INTEGER NOT NULL
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// ===== Settings =====

// SaveSetting saves or updates a setting
func (d *Database) SaveSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)`, key, value, time.Now())
	return err
}

// GetSetting returns ErrNotFound for unknown keys.
func (d *Database) GetSetting(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	return value, err
}

func (d *Database) DeleteSetting(key string) error {
	_, err := d.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// ===== Projects =====

// TouchProject records path as opened now.
func (d *Database) TouchProject(path string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO projects (path, last_opened)
		VALUES (?, ?)`, path, time.Now().UnixNano())
	return err
}

// RecentProjects lists project folders, most recently opened first.
func (d *Database) RecentProjects(limit int) ([]string, error) {
	rows, err := d.db.Query("SELECT path FROM projects ORDER BY last_opened DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ===== Dispatches =====

func (d *Database) CreateDispatch(ctx context.Context, rec *DispatchRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO dispatches (id, project_path, task_id, agent, command, terminal_id, auto_saved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectPath, rec.TaskID, rec.Agent, rec.Command,
		nullableString(rec.TerminalID), rec.AutoSaved, rec.CreatedAt.UnixMilli())
	return err
}

func (d *Database) GetDispatch(ctx context.Context, id string) (*DispatchRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, project_path, task_id, agent, command, terminal_id, auto_saved, created_at
		FROM dispatches WHERE id = ?`, id)
	rec, err := scanDispatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dispatch %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListDispatches returns the newest dispatches for a project. An empty
// taskID matches every task.
func (d *Database) ListDispatches(ctx context.Context, projectPath, taskID string, limit int) ([]*DispatchRecord, error) {
	query := `SELECT id, project_path, task_id, agent, command, terminal_id, auto_saved, created_at
		FROM dispatches WHERE project_path = ?`
	args := []any{projectPath}
	if taskID != "" {
		query += " AND task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DispatchRecord
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanDispatch(s scanner) (*DispatchRecord, error) {
	rec := &DispatchRecord{}
	var terminalID sql.NullString
	var createdAt int64
	err := s.Scan(&rec.ID, &rec.ProjectPath, &rec.TaskID, &rec.Agent, &rec.Command,
		&terminalID, &rec.AutoSaved, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.TerminalID = terminalID.String
	rec.CreatedAt = time.UnixMilli(createdAt)
	return rec, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
