package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/upsell-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func periodRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "shop", "year", "period", "status", "success", "order_count", "error_message",
		"trigger_source", "claim_token", "lease_expires_at", "processed_at", "created_at", "updated_at",
	})
}

func TestPostgresStore_ClaimPeriod_Claimed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "period_records" .* ON CONFLICT \("shop", "year", "period"\) DO UPDATE SET .* WHERE period_records.success = false AND \(period_records.status = 'failed'`).
		WithArgs(pgxmock.AnyArg(), testKey.Shop, testKey.Year, testKey.Period, "processing", false, 0, "",
			"webhook", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	token, claimed, err := s.ClaimPeriod(context.Background(), testKey, "webhook", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NotEmpty(t, token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimPeriod_NotClaimed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), testKey.Shop, testKey.Year, testKey.Period, "processing", false, 0, "",
			"timer", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	token, claimed, err := s.ClaimPeriod(context.Background(), testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimPeriod_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), testKey.Shop, testKey.Year, testKey.Period, "processing", false, 0, "",
			"timer", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, _, err := s.ClaimPeriod(context.Background(), testKey, "timer", 30*time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: claim period")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompletePeriod(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT .* WHERE period_records.success = false AND \(period_records.claim_token = EXCLUDED.claim_token`).
		WithArgs(pgxmock.AnyArg(), testKey.Shop, testKey.Year, testKey.Period, "success", true, 510, "",
			"tok-1", nil, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := s.CompletePeriod(context.Background(), testKey, "tok-1", model.PeriodOutcome{Success: true, OrderCount: 510})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompletePeriod_Unchanged(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), testKey.Shop, testKey.Year, testKey.Period, "failed", false, 0, "boom",
			"tok-1", nil, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := s.CompletePeriod(context.Background(), testKey, "tok-1", model.PeriodOutcome{ErrorMessage: "boom"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPeriod_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, shop, year, period, .* FROM period_records WHERE shop = \$1 AND year = \$2 AND period = \$3`).
		WithArgs(testKey.Shop, testKey.Year, testKey.Period).
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetPeriod(context.Background(), testKey)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPeriod_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM period_records WHERE shop = \$1`).
		WithArgs(testKey.Shop, testKey.Year, testKey.Period).
		WillReturnRows(periodRows().AddRow(
			"id-1", testKey.Shop, testKey.Year, testKey.Period, "success", true, 12, "",
			"timer", "tok", (*time.Time)(nil), &now, now, now,
		))

	rec, err := s.GetPeriod(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.PeriodStatusSuccess, rec.Status)
	assert.True(t, rec.Success)
	assert.Equal(t, 12, rec.OrderCount)
	assert.Nil(t, rec.LeaseExpiresAt)
	require.NotNil(t, rec.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPeriods_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE true AND shop = \$1 AND status = \$2 ORDER BY year DESC, period DESC, shop ASC LIMIT \$3`).
		WithArgs("a.myshopify.com", "failed", 5).
		WillReturnRows(periodRows().AddRow(
			"id-1", "a.myshopify.com", 2026, "M10", "failed", false, 0, "fetch failed",
			"manual", "tok", (*time.Time)(nil), &now, now, now,
		))

	recs, err := s.ListPeriods(context.Background(), PeriodFilter{Shop: "a.myshopify.com", Status: model.PeriodStatusFailed, Limit: 5})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fetch failed", recs[0].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPeriods_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE true ORDER BY .* LIMIT \$1`).
		WithArgs(defaultListLimit).
		WillReturnRows(periodRows())

	recs, err := s.ListPeriods(context.Background(), PeriodFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRecommendation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "shop_recommendations" .* ON CONFLICT \("shop"\) DO UPDATE SET`).
		WithArgs("acme.myshopify.com", pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertRecommendation(context.Background(), model.StoredRecommendation{
		Shop:         "acme.myshopify.com",
		FallbackUsed: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecommendation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM shop_recommendations WHERE shop = \$1`).
		WithArgs("acme.myshopify.com").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"shop":"acme.myshopify.com","total_pairs_found":4,"fallback_used":true}`)))

	rec, err := s.GetRecommendation(context.Background(), "acme.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 4, rec.TotalPairsFound)
	assert.True(t, rec.FallbackUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecommendation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM shop_recommendations`).
		WithArgs("nobody.myshopify.com").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetRecommendation(context.Background(), "nobody.myshopify.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS period_records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
