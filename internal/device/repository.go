package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists device registrations.
type Repository interface {
	Save(ctx context.Context, dev *Device) error
	Get(ctx context.Context, id string) (*Device, error)
	GetAll(ctx context.Context) ([]*Device, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts the device row.
func (r *SQLiteRepository) Save(ctx context.Context, dev *Device) error {
	address := string(dev.Address)
	if address == "" {
		address = "{}"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, adapter, address, online, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			adapter = excluded.adapter,
			address = excluded.address,
			online = excluded.online,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at
	`,
		dev.ID, dev.Name, dev.Adapter, address,
		boolToInt(dev.Online), timePtrString(dev.LastSeen),
		dev.CreatedAt.UTC().Format(time.RFC3339),
		dev.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", dev.ID, err)
	}
	return nil
}

// Get returns one device by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, adapter, address, online, last_seen, created_at, updated_at
		FROM devices WHERE id = ?
	`, id)

	dev, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query device %s: %w", id, err)
	}
	return dev, nil
}

// GetAll returns every registered device.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, adapter, address, online, last_seen, created_at, updated_at
		FROM devices ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

// Delete removes the device row. Deleting an absent id is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete device %s: %w", id, err)
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var (
		dev              Device
		address          string
		online           int
		lastSeen         sql.NullString
		created, updated string
	)
	if err := row.Scan(&dev.ID, &dev.Name, &dev.Adapter, &address,
		&online, &lastSeen, &created, &updated); err != nil {
		return nil, err
	}

	dev.Address = []byte(address)
	dev.Online = online != 0

	var err error
	if dev.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if dev.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	if lastSeen.Valid {
		seen, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_seen %q: %w", lastSeen.String, err)
		}
		dev.LastSeen = &seen
	}
	return &dev, nil
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
