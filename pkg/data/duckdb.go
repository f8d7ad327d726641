package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS edit_snapshots (
	id         VARCHAR PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	old_state  VARCHAR NOT NULL,
	new_state  VARCHAR NOT NULL
);
CREATE TABLE IF NOT EXISTS saved_logins (
	name          VARCHAR PRIMARY KEY,
	refresh_token VARCHAR NOT NULL,
	client_id     VARCHAR NOT NULL,
	client_secret VARCHAR NOT NULL
);`

func InitDuckDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// Repository keeps edit snapshots and remembered logins in DuckDB.
type Repository struct {
	db *sql.DB
}

func NewDuckDBRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	oldState, err := json.Marshal(snapshot.Old)
	if err != nil {
		return fmt.Errorf("failed to encode old state: %w", err)
	}
	newState, err := json.Marshal(snapshot.New)
	if err != nil {
		return fmt.Errorf("failed to encode new state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO edit_snapshots (id, created_at, old_state, new_state) VALUES (?, ?, ?, ?)`,
		snapshot.ID, snapshot.CreatedAt.UTC(), string(oldState), string(newState),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns nil when no snapshot has the given id.
func (r *Repository) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, old_state, new_state FROM edit_snapshots WHERE id = ?`, id)

	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ListSnapshots returns every snapshot, newest first.
func (r *Repository) ListSnapshots(ctx context.Context) ([]*Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, old_state, new_state FROM edit_snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner) (*Snapshot, error) {
	var (
		snapshot           Snapshot
		oldState, newState string
	)
	if err := s.Scan(&snapshot.ID, &snapshot.CreatedAt, &oldState, &newState); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(oldState), &snapshot.Old); err != nil {
		return nil, fmt.Errorf("snapshot %s: bad old state: %w", snapshot.ID, err)
	}
	if err := json.Unmarshal([]byte(newState), &snapshot.New); err != nil {
		return nil, fmt.Errorf("snapshot %s: bad new state: %w", snapshot.ID, err)
	}
	return &snapshot, nil
}

func (r *Repository) SaveLogin(ctx context.Context, login SavedLogin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saved_logins (name, refresh_token, client_id, client_secret) VALUES (?, ?, ?, ?)`,
		login.Name, login.RefreshToken, login.ClientID, login.ClientSecret,
	)
	if err != nil {
		return fmt.Errorf("failed to save login: %w", err)
	}
	return nil
}

// GetLogin returns nil when nothing was saved under name.
func (r *Repository) GetLogin(ctx context.Context, name string) (*SavedLogin, error) {
	var login SavedLogin
	err := r.db.QueryRowContext(ctx,
		`SELECT name, refresh_token, client_id, client_secret FROM saved_logins WHERE name = ?`, name,
	).Scan(&login.Name, &login.RefreshToken, &login.ClientID, &login.ClientSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get login: %w", err)
	}
	return &login, nil
}

func (r *Repository) DeleteLogin(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM saved_logins WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete login: %w", err)
	}
	return nil
}
