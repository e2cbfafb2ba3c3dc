package pricing

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists merged price records.
//
// The store is the single writer; the repository only needs to survive
// restarts, not arbitrate concurrent mutation.
type Repository interface {
	// Save upserts the records, replacing existing (region, bucket) rows.
	Save(ctx context.Context, records []PriceRecord) error

	// Delete removes the records by (region, bucket).
	Delete(ctx context.Context, records []PriceRecord) error

	// LoadAll returns every stored record.
	LoadAll(ctx context.Context) ([]PriceRecord, error)
}

// SQLiteRepository implements Repository on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts records inside a single transaction so a partial batch never
// becomes visible.
func (r *SQLiteRepository) Save(ctx context.Context, records []PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_records (
			region, bucket_ts,
			historical_price, historical_gen, historical_fetched,
			five_min_price, five_min_gen, five_min_fetched,
			thirty_min_price, thirty_min_gen, thirty_min_fetched,
			effective_price, forecast_price, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (region, bucket_ts) DO UPDATE SET
			historical_price = excluded.historical_price,
			historical_gen = excluded.historical_gen,
			historical_fetched = excluded.historical_fetched,
			five_min_price = excluded.five_min_price,
			five_min_gen = excluded.five_min_gen,
			five_min_fetched = excluded.five_min_fetched,
			thirty_min_price = excluded.thirty_min_price,
			thirty_min_gen = excluded.thirty_min_gen,
			thirty_min_fetched = excluded.thirty_min_fetched,
			effective_price = excluded.effective_price,
			forecast_price = excluded.forecast_price,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Region,
			rec.Bucket.UTC().Format(time.RFC3339),
			nullFloat(rec.Historical.Price),
			nullGen(rec.Historical),
			nullTime(rec.Historical.FetchedAt),
			nullFloat(rec.FiveMin.Price),
			nullGen(rec.FiveMin),
			nullTime(rec.FiveMin.FetchedAt),
			nullFloat(rec.ThirtyMin.Price),
			nullGen(rec.ThirtyMin),
			nullTime(rec.ThirtyMin.FetchedAt),
			nullFloat(rec.EffectivePrice()),
			nullFloat(rec.ForecastPrice()),
			rec.LastUpdated.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("upsert price record %s@%s: %w", rec.Region, rec.Bucket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price records: %w", err)
	}
	return nil
}

// Delete removes records by key inside a single transaction.
func (r *SQLiteRepository) Delete(ctx context.Context, records []PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`DELETE FROM price_records WHERE region = ? AND bucket_ts = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Region, rec.Bucket.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("delete price record %s@%s: %w", rec.Region, rec.Bucket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deletes: %w", err)
	}
	return nil
}

// LoadAll returns every stored record, oldest bucket first.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]PriceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT region, bucket_ts,
			historical_price, historical_gen, historical_fetched,
			five_min_price, five_min_gen, five_min_fetched,
			thirty_min_price, thirty_min_gen, thirty_min_fetched,
			last_updated
		FROM price_records
		ORDER BY bucket_ts
	`)
	if err != nil {
		return nil, fmt.Errorf("query price records: %w", err)
	}
	defer rows.Close()

	var records []PriceRecord
	for rows.Next() {
		var (
			rec                              PriceRecord
			bucket, updated                  string
			histP, fiveP, thirtyP            sql.NullFloat64
			histG, fiveG, thirtyG            sql.NullInt64
			histF, fiveF, thirtyF            sql.NullString
		)
		if err := rows.Scan(
			&rec.Region, &bucket,
			&histP, &histG, &histF,
			&fiveP, &fiveG, &fiveF,
			&thirtyP, &thirtyG, &thirtyF,
			&updated,
		); err != nil {
			return nil, fmt.Errorf("scan price record: %w", err)
		}

		if rec.Bucket, err = time.Parse(time.RFC3339, bucket); err != nil {
			return nil, fmt.Errorf("parse bucket_ts %q: %w", bucket, err)
		}
		if rec.LastUpdated, err = time.Parse(time.RFC3339, updated); err != nil {
			return nil, fmt.Errorf("parse last_updated %q: %w", updated, err)
		}
		rec.Historical = scanEntry(histP, histG, histF)
		rec.FiveMin = scanEntry(fiveP, fiveG, fiveF)
		rec.ThirtyMin = scanEntry(thirtyP, thirtyG, thirtyF)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price records: %w", err)
	}
	return records, nil
}

func scanEntry(price sql.NullFloat64, gen sql.NullInt64, fetched sql.NullString) TierEntry {
	var entry TierEntry
	if price.Valid {
		v := price.Float64
		entry.Price = &v
	}
	if gen.Valid {
		entry.GenerationID = gen.Int64
	}
	if fetched.Valid {
		if ts, err := time.Parse(time.RFC3339, fetched.String); err == nil {
			entry.FetchedAt = ts
		}
	}
	return entry
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullGen(e TierEntry) any {
	if !e.Present() {
		return nil
	}
	return e.GenerationID
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
