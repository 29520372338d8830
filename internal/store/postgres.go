package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/upsell-cli/internal/db"
	"github.com/sells-group/upsell-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const postgresPeriodColumns = `id, shop, year, period, status, success, order_count, error_message, trigger_source, claim_token, lease_expires_at, processed_at, created_at, updated_at`

// preparedStatements lists read queries prepared on each new connection.
var preparedStatements = map[string]string{
	"get_period":         `SELECT ` + postgresPeriodColumns + ` FROM period_records WHERE shop = $1 AND year = $2 AND period = $3`,
	"get_recommendation": `SELECT payload FROM shop_recommendations WHERE shop = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS period_records (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	shop             TEXT NOT NULL,
	year             INTEGER NOT NULL,
	period           TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'processing',
	success          BOOLEAN NOT NULL DEFAULT false,
	order_count      INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	trigger_source   TEXT NOT NULL DEFAULT '',
	claim_token      TEXT NOT NULL DEFAULT '',
	lease_expires_at TIMESTAMPTZ,
	processed_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (shop, year, period)
);

CREATE INDEX IF NOT EXISTS idx_period_records_shop ON period_records(shop);
CREATE INDEX IF NOT EXISTS idx_period_records_status ON period_records(status);

CREATE TABLE IF NOT EXISTS shop_recommendations (
	shop          TEXT PRIMARY KEY,
	payload       JSONB NOT NULL,
	fallback_used BOOLEAN NOT NULL DEFAULT false,
	analysis_date TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var claimUpsert = db.UpsertConfig{
	Table: "period_records",
	Columns: []string{
		"id", "shop", "year", "period", "status", "success", "order_count", "error_message",
		"trigger_source", "claim_token", "lease_expires_at", "created_at", "updated_at",
	},
	ConflictKeys: []string{"shop", "year", "period"},
	UpdateCols:   []string{"status", "error_message", "trigger_source", "claim_token", "lease_expires_at", "updated_at"},
	Where: `period_records.success = false AND (period_records.status = 'failed' OR ` +
		`(period_records.status = 'processing' AND period_records.lease_expires_at < EXCLUDED.updated_at))`,
}

var completeUpsert = db.UpsertConfig{
	Table: "period_records",
	Columns: []string{
		"id", "shop", "year", "period", "status", "success", "order_count", "error_message",
		"claim_token", "lease_expires_at", "processed_at", "created_at", "updated_at",
	},
	ConflictKeys: []string{"shop", "year", "period"},
	UpdateCols:   []string{"status", "success", "order_count", "error_message", "lease_expires_at", "processed_at", "updated_at"},
	Where: `period_records.success = false AND ` +
		`(period_records.claim_token = EXCLUDED.claim_token OR period_records.status <> 'processing')`,
}

var recommendationUpsert = db.UpsertConfig{
	Table:        "shop_recommendations",
	Columns:      []string{"shop", "payload", "fallback_used", "analysis_date", "updated_at"},
	ConflictKeys: []string{"shop"},
}

func (s *PostgresStore) ClaimPeriod(ctx context.Context, key model.PeriodKey, trigger string, lease time.Duration) (string, bool, error) {
	token := uuid.New().String()
	now := time.Now().UTC()

	n, err := db.Upsert(ctx, s.pool, claimUpsert, []any{
		uuid.New().String(), key.Shop, key.Year, key.Period, string(model.PeriodStatusProcessing), false, 0, "",
		trigger, token, now.Add(lease), now, now,
	})
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: claim period %s", key)
	}
	if n == 0 {
		return "", false, nil
	}
	return token, true, nil
}

func (s *PostgresStore) CompletePeriod(ctx context.Context, key model.PeriodKey, token string, outcome model.PeriodOutcome) (bool, error) {
	now := time.Now().UTC()
	processedAt := outcome.ProcessedAt.UTC()
	if outcome.ProcessedAt.IsZero() {
		processedAt = now
	}

	n, err := db.Upsert(ctx, s.pool, completeUpsert, []any{
		uuid.New().String(), key.Shop, key.Year, key.Period, string(statusFor(outcome)), outcome.Success,
		outcome.OrderCount, outcome.ErrorMessage, token, nil, processedAt, now, now,
	})
	if err != nil {
		return false, eris.Wrapf(err, "postgres: complete period %s", key)
	}
	return n > 0, nil
}

func (s *PostgresStore) GetPeriod(ctx context.Context, key model.PeriodKey) (*model.PeriodRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresPeriodColumns+` FROM period_records WHERE shop = $1 AND year = $2 AND period = $3`,
		key.Shop, key.Year, key.Period,
	)
	rec, err := scanPostgresPeriod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get period %s", key)
	}
	return rec, nil
}

func (s *PostgresStore) ListPeriods(ctx context.Context, filter PeriodFilter) ([]model.PeriodRecord, error) {
	query := `SELECT ` + postgresPeriodColumns + ` FROM period_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Shop != "" {
		query += fmt.Sprintf(` AND shop = $%d`, argIdx)
		args = append(args, filter.Shop)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY year DESC, period DESC, shop ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list periods")
	}
	defer rows.Close()

	var out []model.PeriodRecord
	for rows.Next() {
		rec, err := scanPostgresPeriod(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan period")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list periods iterate")
}

func (s *PostgresStore) UpsertRecommendation(ctx context.Context, rec model.StoredRecommendation) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recommendation")
	}
	_, err = db.Upsert(ctx, s.pool, recommendationUpsert, []any{
		rec.Shop, payload, rec.FallbackUsed, rec.AnalysisDate.UTC(), time.Now().UTC(),
	})
	return eris.Wrapf(err, "postgres: upsert recommendation for %s", rec.Shop)
}

func (s *PostgresStore) GetRecommendation(ctx context.Context, shop string) (*model.StoredRecommendation, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM shop_recommendations WHERE shop = $1`, shop,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get recommendation for %s", shop)
	}
	var rec model.StoredRecommendation
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal recommendation")
	}
	return &rec, nil
}

func scanPostgresPeriod(row scannable) (*model.PeriodRecord, error) {
	var r model.PeriodRecord
	var status string

	err := row.Scan(
		&r.ID, &r.Key.Shop, &r.Key.Year, &r.Key.Period, &status, &r.Success,
		&r.OrderCount, &r.ErrorMessage, &r.Trigger, &r.ClaimToken,
		&r.LeaseExpiresAt, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.PeriodStatus(status)
	return &r, nil
}
