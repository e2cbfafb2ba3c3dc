package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists per-device automation state.
type Repository interface {
	Save(ctx context.Context, st *State) error
	Get(ctx context.Context, deviceID string) (*State, error)
	GetAll(ctx context.Context) ([]*State, error)
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts the state row.
func (r *SQLiteRepository) Save(ctx context.Context, st *State) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_state (
			device_id, enabled, phase, restart_time, threshold_watts,
			sustain_seconds, device_on_since, threshold_met_since,
			turned_off_at, last_restart_date, last_message, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			enabled = excluded.enabled,
			phase = excluded.phase,
			restart_time = excluded.restart_time,
			threshold_watts = excluded.threshold_watts,
			sustain_seconds = excluded.sustain_seconds,
			device_on_since = excluded.device_on_since,
			threshold_met_since = excluded.threshold_met_since,
			turned_off_at = excluded.turned_off_at,
			last_restart_date = excluded.last_restart_date,
			last_message = excluded.last_message,
			updated_at = excluded.updated_at
	`,
		st.DeviceID, boolToInt(st.Enabled), string(st.Phase), st.RestartTime,
		st.ThresholdWatts, st.SustainSeconds,
		timePtrString(st.DeviceOnSince), timePtrString(st.ThresholdMetSince),
		timePtrString(st.TurnedOffAt),
		nullString(st.LastRestartDate), nullString(st.LastMessage),
		st.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert automation state %s: %w", st.DeviceID, err)
	}
	return nil
}

// Get returns one device's state.
func (r *SQLiteRepository) Get(ctx context.Context, deviceID string) (*State, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE device_id = ?`, deviceID)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("query automation state %s: %w", deviceID, err)
	}
	return st, nil
}

// GetAll returns every device's state.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*State, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("query automation states: %w", err)
	}
	defer rows.Close()

	var states []*State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation state: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate automation states: %w", err)
	}
	return states, nil
}

// Delete removes the state row. Deleting an absent id is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM automation_state WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete automation state %s: %w", deviceID, err)
	}
	return nil
}

const selectColumns = `
	SELECT device_id, enabled, phase, restart_time, threshold_watts,
		sustain_seconds, device_on_since, threshold_met_since,
		turned_off_at, last_restart_date, last_message, updated_at
	FROM automation_state`

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*State, error) {
	var (
		st                      State
		enabled                 int
		phase                   string
		onSince, metSince       sql.NullString
		offAt, restart, message sql.NullString
		updated                 string
	)
	if err := row.Scan(&st.DeviceID, &enabled, &phase, &st.RestartTime,
		&st.ThresholdWatts, &st.SustainSeconds,
		&onSince, &metSince, &offAt, &restart, &message, &updated); err != nil {
		return nil, err
	}

	st.Enabled = enabled != 0
	st.Phase = Phase(phase)
	st.LastRestartDate = restart.String
	st.LastMessage = message.String

	var err error
	if st.DeviceOnSince, err = parseTimePtr(onSince); err != nil {
		return nil, fmt.Errorf("parse device_on_since: %w", err)
	}
	if st.ThresholdMetSince, err = parseTimePtr(metSince); err != nil {
		return nil, fmt.Errorf("parse threshold_met_since: %w", err)
	}
	if st.TurnedOffAt, err = parseTimePtr(offAt); err != nil {
		return nil, fmt.Errorf("parse turned_off_at: %w", err)
	}
	if st.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return &st, nil
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
