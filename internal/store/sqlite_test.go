package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/upsell-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var testKey = model.PeriodKey{Shop: "acme.myshopify.com", Year: 2026, Period: "Q4"}

// --- Claims ---

func TestSQLite_ClaimPeriod_New(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	token, claimed, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NotEmpty(t, token)

	rec, err := st.GetPeriod(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.PeriodStatusProcessing, rec.Status)
	assert.False(t, rec.Success)
	assert.Equal(t, "timer", rec.Trigger)
	assert.Equal(t, token, rec.ClaimToken)
	require.NotNil(t, rec.LeaseExpiresAt)
	assert.Nil(t, rec.ProcessedAt)
}

func TestSQLite_ClaimPeriod_HeldByActiveLease(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, claimed, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	token, claimed, err := st.ClaimPeriod(ctx, testKey, "webhook", 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, token)
}

func TestSQLite_ClaimPeriod_ExpiredLeaseReclaimed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, claimed, err := st.ClaimPeriod(ctx, testKey, "timer", -time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	second, claimed, err := st.ClaimPeriod(ctx, testKey, "manual", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NotEqual(t, first, second)

	rec, err := st.GetPeriod(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "manual", rec.Trigger)
}

func TestSQLite_ClaimPeriod_FailedRecordReclaimed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	token, _, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	ok, err := st.CompletePeriod(ctx, testKey, token, model.PeriodOutcome{ErrorMessage: "fetch failed"})
	require.NoError(t, err)
	require.True(t, ok)

	rec, err := st.GetPeriod(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStatusFailed, rec.Status)
	assert.Equal(t, "fetch failed", rec.ErrorMessage)

	_, claimed, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	rec, err = st.GetPeriod(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStatusProcessing, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
}

func TestSQLite_ClaimPeriod_SuccessNeverReclaimed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	token, _, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	ok, err := st.CompletePeriod(ctx, testKey, token, model.PeriodOutcome{Success: true, OrderCount: 42})
	require.NoError(t, err)
	require.True(t, ok)

	_, claimed, err := st.ClaimPeriod(ctx, testKey, "webhook", -time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestSQLite_ClaimPeriod_Concurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

// --- Completion ---

func TestSQLite_CompletePeriod_NeverOverwritesSuccess(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	token, _, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	ok, err := st.CompletePeriod(ctx, testKey, token, model.PeriodOutcome{Success: true, OrderCount: 510})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.CompletePeriod(ctx, testKey, token, model.PeriodOutcome{ErrorMessage: "late failure"})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := st.GetPeriod(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Equal(t, model.PeriodStatusSuccess, rec.Status)
	assert.Equal(t, 510, rec.OrderCount)
	assert.Empty(t, rec.ErrorMessage)
	assert.NotNil(t, rec.ProcessedAt)
	assert.Nil(t, rec.LeaseExpiresAt)
}

func TestSQLite_CompletePeriod_StaleTokenIgnored(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stale, _, err := st.ClaimPeriod(ctx, testKey, "timer", -time.Minute)
	require.NoError(t, err)
	current, claimed, err := st.ClaimPeriod(ctx, testKey, "timer", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err := st.CompletePeriod(ctx, testKey, stale, model.PeriodOutcome{Success: true})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.CompletePeriod(ctx, testKey, current, model.PeriodOutcome{Success: true, OrderCount: 3})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_CompletePeriod_WithoutClaimInserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	processed := time.Date(2026, 10, 2, 6, 0, 0, 0, time.UTC)
	ok, err := st.CompletePeriod(ctx, testKey, "", model.PeriodOutcome{Success: true, OrderCount: 7, ProcessedAt: processed})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := st.GetPeriod(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, rec.ProcessedAt)
	assert.True(t, processed.Equal(*rec.ProcessedAt))
}

// --- Queries ---

func TestSQLite_GetPeriod_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec, err := st.GetPeriod(context.Background(), testKey)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_ListPeriods(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	keys := []model.PeriodKey{
		{Shop: "a.myshopify.com", Year: 2026, Period: "Q3"},
		{Shop: "a.myshopify.com", Year: 2026, Period: "Q4"},
		{Shop: "b.myshopify.com", Year: 2026, Period: "Q4"},
	}
	for _, k := range keys {
		token, _, err := st.ClaimPeriod(ctx, k, "timer", 30*time.Minute)
		require.NoError(t, err)
		if k.Period == "Q3" {
			_, err = st.CompletePeriod(ctx, k, token, model.PeriodOutcome{Success: true})
			require.NoError(t, err)
		}
	}

	all, err := st.ListPeriods(ctx, PeriodFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byShop, err := st.ListPeriods(ctx, PeriodFilter{Shop: "a.myshopify.com"})
	require.NoError(t, err)
	require.Len(t, byShop, 2)
	assert.Equal(t, "Q4", byShop[0].Key.Period)

	succeeded, err := st.ListPeriods(ctx, PeriodFilter{Status: model.PeriodStatusSuccess})
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, "Q3", succeeded[0].Key.Period)

	limited, err := st.ListPeriods(ctx, PeriodFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Recommendations ---

func TestSQLite_Recommendation_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := model.StoredRecommendation{
		Shop: "acme.myshopify.com",
		Recommendations: []model.Recommendation{
			{MainProduct: "1", UpsellVariants: []model.UpsellVariant{{ID: "2"}}},
		},
		TotalPairsFound: 1,
		AnalysisDate:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		DataPeriod:      "1_month",
		FallbackUsed:    true,
	}
	require.NoError(t, st.UpsertRecommendation(ctx, rec))

	rec.Recommendations = append(rec.Recommendations, model.Recommendation{MainProduct: "3"})
	rec.FallbackUsed = false
	require.NoError(t, st.UpsertRecommendation(ctx, rec))

	got, err := st.GetRecommendation(ctx, "acme.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Recommendations, 2)
	assert.False(t, got.FallbackUsed)
	assert.Equal(t, "1_month", got.DataPeriod)

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shop_recommendations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite_Recommendation_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetRecommendation(context.Background(), "nobody.myshopify.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
