package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/eventstore"
)

// Storage keeps the session cache between runs: cached events and their
// fetched ranges, the calendar list and a few settings such as tokens.
type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := NewWithDB(db)
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewWithDB wraps an open database without running migrations.
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT DEFAULT '',
			location TEXT DEFAULT '',
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			calendar_source_id TEXT DEFAULT '',
			calendar_source_uri TEXT DEFAULT '',
			calendar_source_name TEXT DEFAULT '',
			calendar_source_color TEXT DEFAULT '',
			recurrence_id TEXT DEFAULT '',
			url TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_id ON events(id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_date)`,
		`CREATE TABLE IF NOT EXISTS fetched_ranges (
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS calendars (
			position INTEGER NOT NULL,
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT DEFAULT '',
			description TEXT DEFAULT '',
			uri TEXT DEFAULT '',
			display INTEGER DEFAULT 1,
			owner_id INTEGER,
			is_owner INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// CRM links
		`ALTER TABLE events ADD COLUMN client_id INTEGER`,
		`ALTER TABLE events ADD COLUMN affair_id INTEGER`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Session state ===

// SaveState replaces the stored events and ranges with state.
func (s *Storage) SaveState(ctx context.Context, state eventstore.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fetched_ranges`); err != nil {
		return fmt.Errorf("clear ranges: %w", err)
	}

	for i, e := range state.Events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (position, id, title, description, location, start_date, end_date,
				calendar_source_id, calendar_source_uri, calendar_source_name, calendar_source_color,
				recurrence_id, url, client_id, affair_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, string(e.ID), e.Title, e.Description, e.Location, e.StartDate.String(), e.EndDate.String(),
			string(e.CalendarSourceID), e.CalendarSourceURI, e.CalendarSourceName, e.CalendarSourceColor,
			e.RecurrenceID, e.URL, e.ClientID, e.AffairID,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	for _, r := range state.Ranges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fetched_ranges (start_date, end_date) VALUES (?, ?)`,
			r.Start, r.End,
		); err != nil {
			return fmt.Errorf("insert range %s: %w", r, err)
		}
	}

	return tx.Commit()
}

// LoadState reads the stored events in their saved order, and the ranges.
func (s *Storage) LoadState(ctx context.Context) (eventstore.State, error) {
	var state eventstore.State

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, location, start_date, end_date,
			calendar_source_id, calendar_source_uri, calendar_source_name, calendar_source_color,
			recurrence_id, url, client_id, affair_id
		 FROM events ORDER BY position`)
	if err != nil {
		return state, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                domain.Task
			id, calID        string
			start, end       string
			clientID, affair sql.NullInt64
		)
		if err := rows.Scan(&id, &e.Title, &e.Description, &e.Location, &start, &end,
			&calID, &e.CalendarSourceURI, &e.CalendarSourceName, &e.CalendarSourceColor,
			&e.RecurrenceID, &e.URL, &clientID, &affair); err != nil {
			return state, fmt.Errorf("scan event: %w", err)
		}
		e.ID = domain.TaskID(id)
		e.CalendarSourceID = domain.TaskID(calID)
		if e.StartDate, err = domain.ParseLocalTime(start); err != nil {
			return state, fmt.Errorf("event %s: %w", id, err)
		}
		if e.EndDate, err = domain.ParseLocalTime(end); err != nil {
			return state, fmt.Errorf("event %s: %w", id, err)
		}
		e.ClientID = nullInt(clientID)
		e.AffairID = nullInt(affair)
		state.Events = append(state.Events, e)
	}
	if err := rows.Err(); err != nil {
		return state, err
	}

	rangeRows, err := s.db.QueryContext(ctx, `SELECT start_date, end_date FROM fetched_ranges ORDER BY start_date`)
	if err != nil {
		return state, fmt.Errorf("query ranges: %w", err)
	}
	defer rangeRows.Close()

	for rangeRows.Next() {
		var r domain.DateRange
		if err := rangeRows.Scan(&r.Start, &r.End); err != nil {
			return state, fmt.Errorf("scan range: %w", err)
		}
		state.Ranges = append(state.Ranges, r)
	}
	return state, rangeRows.Err()
}

// === Calendars ===

func (s *Storage) SaveCalendars(ctx context.Context, cals []domain.CalendarSource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM calendars`); err != nil {
		return fmt.Errorf("clear calendars: %w", err)
	}
	for i, c := range cals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calendars (position, id, name, color, description, uri, display, owner_id, is_owner)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, string(c.ID), c.Name, c.Color, c.Description, c.URI, c.Display, c.OwnerID, c.IsOwner,
		); err != nil {
			return fmt.Errorf("insert calendar %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadCalendars returns nil when no calendar list was saved.
func (s *Storage) LoadCalendars(ctx context.Context) ([]domain.CalendarSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color, description, uri, display, owner_id, is_owner
		 FROM calendars ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query calendars: %w", err)
	}
	defer rows.Close()

	var cals []domain.CalendarSource
	for rows.Next() {
		var (
			c     domain.CalendarSource
			id    string
			owner sql.NullInt64
		)
		if err := rows.Scan(&id, &c.Name, &c.Color, &c.Description, &c.URI, &c.Display, &owner, &c.IsOwner); err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		c.ID = domain.TaskID(id)
		c.OwnerID = nullInt(owner)
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

// === Settings ===

func (s *Storage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

// GetSetting returns "" for a missing key.
func (s *Storage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Storage) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

// Clear drops the cached session, keeping settings.
func (s *Storage) Clear(ctx context.Context) error {
	for _, table := range []string{"events", "fetched_ranges", "calendars"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
