package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/upsell-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("acme.myshopify.com", "shpat_test",
		WithBaseURL(srv.URL),
		WithRateLimit(0),
		WithRetry(fastRetry()),
	)
}

func TestDo_RequestShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/api/2025-07/graphql.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query { shop { name } }", req.Query)
		assert.Equal(t, "v", req.Variables["k"])

		_, _ = w.Write([]byte(`{"data":{"shop":{"name":"Acme"}}}`))
	})

	var out struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	require.NoError(t, c.Do(context.Background(), "query { shop { name } }", map[string]any{"k": "v"}, &out))
	assert.Equal(t, "Acme", out.Shop.Name)
	assert.Equal(t, "acme.myshopify.com", c.Shop())
}

func TestDo_APIVersionOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/graphql.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient("x.myshopify.com", "t", WithBaseURL(srv.URL), WithAPIVersion("2024-10"), WithRateLimit(0))
	require.NoError(t, c.Do(context.Background(), "{}", nil, &struct{}{}))
}

func TestDo_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})

	var out map[string]bool
	require.NoError(t, c.Do(context.Background(), "{}", nil, &out))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RetryAfterHintCarried(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "0.002")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Do(context.Background(), "{}", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 2*time.Millisecond, resilience.RetryAfter(err))
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":"Invalid API key or access token"}`))
	})

	err := c.Do(context.Background(), "{}", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ExhaustedRetriesIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Do(context.Background(), "{}", nil, nil)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestDo_GraphQLErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Field 'bogus' doesn't exist"},{"message":"second"}]}`))
	})

	err := c.Do(context.Background(), "{ bogus }", nil, nil)
	var ge *GraphQLError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, []string{"Field 'bogus' doesn't exist", "second"}, ge.Messages)
	assert.Contains(t, err.Error(), "graphql errors")
}

func TestDo_ThrottledErrorRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})

	var out map[string]bool
	require.NoError(t, c.Do(context.Background(), "{}", nil, &out))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_MissingData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	})

	err := c.Do(context.Background(), "{}", nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestDo_ThrottleWaitHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{},"extensions":{"cost":{"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":0,"restoreRate":0.001}}}}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, "{}", nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle wait")
}

func TestThrottleWait(t *testing.T) {
	mk := func(available, restore float64) *extensions {
		ext := &extensions{}
		ext.Cost.ThrottleStatus.CurrentlyAvailable = available
		ext.Cost.ThrottleStatus.RestoreRate = restore
		return ext
	}

	assert.Zero(t, throttleWait(nil))
	assert.Zero(t, throttleWait(mk(500, 50)))
	assert.Zero(t, throttleWait(mk(10, 0)))
	assert.Equal(t, 800*time.Millisecond, throttleWait(mk(10, 50)))
	assert.Equal(t, time.Second, throttleWait(mk(0, 50)))
}

func TestUserErrors_Error(t *testing.T) {
	errs := UserErrors{
		{Field: []string{"metaobject", "fields"}, Message: "is invalid", Code: "INVALID"},
		{Message: "plain"},
	}
	assert.Equal(t, "shopify: user errors: metaobject.fields: is invalid; plain", errs.Error())
	assert.True(t, errs.HasCode("INVALID"))
	assert.False(t, errs.HasCode("TAKEN"))
}
