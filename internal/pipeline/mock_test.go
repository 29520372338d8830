package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/upsell-cli/internal/config"
	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/schedule"
	"github.com/sells-group/upsell-cli/internal/store"
	"github.com/sells-group/upsell-cli/pkg/shopify"
)

type mockShopAPI struct {
	mock.Mock
}

func (m *mockShopAPI) OrdersPage(ctx context.Context, search string, first int, after string) (*model.OrderPage, error) {
	args := m.Called(ctx, search, first, after)
	page, _ := args.Get(0).(*model.OrderPage)
	return page, args.Error(1)
}

func (m *mockShopAPI) FindMetaobject(ctx context.Context, typ string) (*shopify.Metaobject, error) {
	args := m.Called(ctx, typ)
	obj, _ := args.Get(0).(*shopify.Metaobject)
	return obj, args.Error(1)
}

func (m *mockShopAPI) CreateMetaobject(ctx context.Context, typ string, fields []shopify.Field) (*shopify.Metaobject, error) {
	args := m.Called(ctx, typ, fields)
	obj, _ := args.Get(0).(*shopify.Metaobject)
	return obj, args.Error(1)
}

func (m *mockShopAPI) UpdateMetaobject(ctx context.Context, id string, fields []shopify.Field) (*shopify.Metaobject, error) {
	args := m.Called(ctx, id, fields)
	obj, _ := args.Get(0).(*shopify.Metaobject)
	return obj, args.Error(1)
}

func (m *mockShopAPI) MetaobjectDefinitionExists(ctx context.Context, typ string) (bool, error) {
	args := m.Called(ctx, typ)
	return args.Bool(0), args.Error(1)
}

func (m *mockShopAPI) CreateMetaobjectDefinition(ctx context.Context, def shopify.MetaobjectDefinition) error {
	return m.Called(ctx, def).Error(0)
}

func testConfig(shops ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Recommend = config.RecommendConfig{TopN: 10, MinFrequency: 3, MinUpsells: 2, TimeoutSecs: 5}
	cfg.Fetch = config.FetchConfig{PageSize: 250}
	cfg.Schedule = config.ScheduleConfig{WindowDays: 3, LeaseMinutes: 30, MaxConcurrentShops: 2}
	for _, s := range shops {
		cfg.Shopify.Shops = append(cfg.Shopify.Shops, config.ShopCredential{Domain: s, AccessToken: "tok"})
	}
	return cfg
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestPipeline(t *testing.T, apis map[string]*mockShopAPI) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	st := newTestStore(t)
	var shops []string
	for s := range apis {
		shops = append(shops, s)
	}
	p := New(testConfig(shops...), Deps{
		Connect: func(shop string) (ShopAPI, error) {
			api, ok := apis[shop]
			if !ok {
				return nil, errUnknownShop
			}
			return api, nil
		},
		Store:     st,
		Scheduler: schedule.New(st, schedule.Options{}),
	})
	return p, st
}

var errUnknownShop = errors.New("unknown shop")

func orderWith(id string, products ...string) model.Order {
	o := model.Order{ID: id, TotalPrice: 10, Currency: "USD"}
	for _, p := range products {
		o.LineItems = append(o.LineItems, model.LineItem{ProductID: p, Quantity: 1})
	}
	return o
}

// sampleOrders yields one co-purchase pair (P1-P2) seen three times.
func sampleOrders() []model.Order {
	return []model.Order{
		orderWith("1", "P1", "P2"),
		orderWith("2", "P1", "P2"),
		orderWith("3", "P1", "P2"),
		orderWith("4", "P3"),
	}
}

// expectDefaults wires an API with no saved settings and a single order page.
func expectDefaults(api *mockShopAPI, page *model.OrderPage) {
	api.On("FindMetaobject", mock.Anything, "upsell_config_settings").Return(nil, nil)
	api.On("OrdersPage", mock.Anything, mock.AnythingOfType("string"), 250, "").Return(page, nil)
}
