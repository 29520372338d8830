package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/upsell-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single writer keeps claims serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS period_records (
	id               TEXT PRIMARY KEY,
	shop             TEXT NOT NULL,
	year             INTEGER NOT NULL,
	period           TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'processing',
	success          INTEGER NOT NULL DEFAULT 0,
	order_count      INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	trigger_source   TEXT NOT NULL DEFAULT '',
	claim_token      TEXT NOT NULL DEFAULT '',
	lease_expires_at DATETIME,
	processed_at     DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (shop, year, period)
);

CREATE TABLE IF NOT EXISTS shop_recommendations (
	shop          TEXT PRIMARY KEY,
	payload       TEXT NOT NULL,
	fallback_used INTEGER NOT NULL DEFAULT 0,
	analysis_date DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_period_records_shop ON period_records(shop);
CREATE INDEX IF NOT EXISTS idx_period_records_status ON period_records(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ClaimPeriod(ctx context.Context, key model.PeriodKey, trigger string, lease time.Duration) (string, bool, error) {
	token := uuid.New().String()
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO period_records
			(id, shop, year, period, status, success, order_count, error_message, trigger_source, claim_token, lease_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, '', ?, ?, ?, ?, ?)
		 ON CONFLICT (shop, year, period) DO UPDATE SET
			status = excluded.status,
			error_message = '',
			trigger_source = excluded.trigger_source,
			claim_token = excluded.claim_token,
			lease_expires_at = excluded.lease_expires_at,
			updated_at = excluded.updated_at
		 WHERE period_records.success = 0
		   AND (period_records.status = 'failed'
		        OR (period_records.status = 'processing' AND period_records.lease_expires_at < excluded.updated_at))`,
		uuid.New().String(), key.Shop, key.Year, key.Period, string(model.PeriodStatusProcessing),
		trigger, token, now.Add(lease), now, now,
	)
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: claim period %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return "", false, nil
	}
	return token, true, nil
}

func (s *SQLiteStore) CompletePeriod(ctx context.Context, key model.PeriodKey, token string, outcome model.PeriodOutcome) (bool, error) {
	now := time.Now().UTC()
	processedAt := outcome.ProcessedAt.UTC()
	if outcome.ProcessedAt.IsZero() {
		processedAt = now
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO period_records
			(id, shop, year, period, status, success, order_count, error_message, claim_token, processed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (shop, year, period) DO UPDATE SET
			status = excluded.status,
			success = excluded.success,
			order_count = excluded.order_count,
			error_message = excluded.error_message,
			lease_expires_at = NULL,
			processed_at = excluded.processed_at,
			updated_at = excluded.updated_at
		 WHERE period_records.success = 0
		   AND (period_records.claim_token = excluded.claim_token OR period_records.status <> 'processing')`,
		uuid.New().String(), key.Shop, key.Year, key.Period, string(statusFor(outcome)), outcome.Success,
		outcome.OrderCount, outcome.ErrorMessage, token, processedAt, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: complete period %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

const sqlitePeriodColumns = `id, shop, year, period, status, success, order_count, error_message, trigger_source, claim_token, lease_expires_at, processed_at, created_at, updated_at`

func (s *SQLiteStore) GetPeriod(ctx context.Context, key model.PeriodKey) (*model.PeriodRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePeriodColumns+` FROM period_records WHERE shop = ? AND year = ? AND period = ?`,
		key.Shop, key.Year, key.Period,
	)
	rec, err := scanSQLitePeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get period %s", key)
	}
	return rec, nil
}

func (s *SQLiteStore) ListPeriods(ctx context.Context, filter PeriodFilter) ([]model.PeriodRecord, error) {
	query := `SELECT ` + sqlitePeriodColumns + ` FROM period_records WHERE 1=1`
	var args []any

	if filter.Shop != "" {
		query += ` AND shop = ?`
		args = append(args, filter.Shop)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY year DESC, period DESC, shop ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list periods")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PeriodRecord
	for rows.Next() {
		rec, err := scanSQLitePeriod(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan period")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list periods iterate")
}

func (s *SQLiteStore) UpsertRecommendation(ctx context.Context, rec model.StoredRecommendation) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recommendation")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shop_recommendations (shop, payload, fallback_used, analysis_date, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (shop) DO UPDATE SET
			payload = excluded.payload,
			fallback_used = excluded.fallback_used,
			analysis_date = excluded.analysis_date,
			updated_at = excluded.updated_at`,
		rec.Shop, string(payload), rec.FallbackUsed, rec.AnalysisDate.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert recommendation for %s", rec.Shop)
}

func (s *SQLiteStore) GetRecommendation(ctx context.Context, shop string) (*model.StoredRecommendation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM shop_recommendations WHERE shop = ?`, shop,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get recommendation for %s", shop)
	}
	var rec model.StoredRecommendation
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal recommendation")
	}
	return &rec, nil
}

// helpers

func statusFor(outcome model.PeriodOutcome) model.PeriodStatus {
	if outcome.Success {
		return model.PeriodStatusSuccess
	}
	return model.PeriodStatusFailed
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLitePeriod(row scannable) (*model.PeriodRecord, error) {
	var r model.PeriodRecord
	var status string
	var lease, processed sql.NullTime

	err := row.Scan(
		&r.ID, &r.Key.Shop, &r.Key.Year, &r.Key.Period, &status, &r.Success,
		&r.OrderCount, &r.ErrorMessage, &r.Trigger, &r.ClaimToken,
		&lease, &processed, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.PeriodStatus(status)
	if lease.Valid {
		t := lease.Time
		r.LeaseExpiresAt = &t
	}
	if processed.Valid {
		t := processed.Time
		r.ProcessedAt = &t
	}
	return &r, nil
}
