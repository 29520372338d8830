package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/metaobject"
	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/pipeline"
	"github.com/sells-group/upsell-cli/internal/schedule"
	"github.com/sells-group/upsell-cli/internal/store"
)

const maxWebhookBody = 1 << 20

var (
	servePort     int
	serveNoTicker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server (webhooks, scheduler endpoint, API, and period ticker)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var shops []string
		for _, c := range cfg.Credentials() {
			shops = append(shops, c.Domain)
		}
		srv := newServer(ctx, serverDeps{
			Runner:         env.Pipeline,
			Connect:        func(shop string) (metaobject.API, error) { return env.Shops.Connect(shop) },
			Periods:        env.Store,
			Scheduler:      env.Scheduler,
			Shops:          shops,
			APISecret:      cfg.Shopify.APISecret,
			WebhookSecret:  cfg.Server.WebhookSecret,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		if !serveNoTicker {
			every := time.Duration(cfg.Schedule.TickMinutes) * time.Minute
			go runTicker(ctx, every, env.Pipeline)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("ticker", !serveNoTicker))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		srv.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoTicker, "no-ticker", false, "disable the in-process period ticker (use with the Temporal worker)")
	rootCmd.AddCommand(serveCmd)
}

// runner is the pipeline surface the server uses.
type runner interface {
	ProcessNow(ctx context.Context, req pipeline.ProcessRequest) *pipeline.ProcessResult
	RunIfDue(ctx context.Context, shop string, ref time.Time, trigger string) *pipeline.RunResult
	RunAll(ctx context.Context, ref time.Time, trigger string) []*pipeline.RunResult
}

// periodLister reads period records.
type periodLister interface {
	ListPeriods(ctx context.Context, filter store.PeriodFilter) ([]model.PeriodRecord, error)
}

type serverDeps struct {
	Runner    runner
	Connect   func(shop string) (metaobject.API, error)
	Periods   periodLister
	Scheduler *schedule.Scheduler
	// Shops are the configured shop domains; a lone shop is the default.
	Shops []string
	// APISecret verifies Shopify webhook HMACs. Empty skips verification.
	APISecret string
	// WebhookSecret is the bearer token for /scheduler/process. Empty disables it.
	WebhookSecret  string
	AllowedOrigins []string
}

type server struct {
	ctx  context.Context
	deps serverDeps
	now  func() time.Time
	wg   sync.WaitGroup
}

// newServer creates a server whose background webhook runs use ctx.
func newServer(ctx context.Context, deps serverDeps) *server {
	return &server{ctx: ctx, deps: deps, now: time.Now}
}

// wait blocks until background webhook runs finish.
func (s *server) wait() {
	s.wg.Wait()
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Shopify-Topic", "X-Shopify-Shop-Domain", "X-Shopify-Hmac-Sha256"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhooks/orders/create", s.handleOrderCreated)
	r.Post("/scheduler/process", s.handleSchedulerProcess)
	r.Post("/webhooks/cron/trigger", s.handleSchedulerProcess)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/periods", s.handleListPeriods)
		r.Get("/schedule", s.handleSchedule)
	})

	return r
}

// orderWebhook is the part of an orders/create payload the server reads.
type orderWebhook struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ShopDomain string    `json:"shop_domain"`
}

// handleOrderCreated runs the due check for the order's shop, using the
// order's creation time as the reference date. The run continues after the
// response so Shopify's delivery timeout is never hit.
func (s *server) handleOrderCreated(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if s.deps.APISecret != "" && !verifyShopifyHMAC(body, r.Header.Get("X-Shopify-Hmac-Sha256"), s.deps.APISecret) {
		zap.L().Warn("webhook hmac verification failed", zap.String("shop", r.Header.Get("X-Shopify-Shop-Domain")))
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var order orderWebhook
	if err := json.Unmarshal(body, &order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order payload")
		return
	}
	shop := r.Header.Get("X-Shopify-Shop-Domain")
	if shop == "" {
		shop = order.ShopDomain
	}
	if shop == "" {
		writeError(w, http.StatusBadRequest, "shop domain not found")
		return
	}
	ref := order.CreatedAt
	if ref.IsZero() {
		ref = s.now()
	}
	ref = ref.UTC()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.deps.Runner.RunIfDue(s.ctx, shop, ref, pipeline.TriggerWebhook)
		logRunResult(res, zap.Int64("order_id", order.ID))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"shop":      shop,
		"reference": ref,
	})
}

// handleSchedulerProcess is the bearer-protected external cron trigger.
func (s *server) handleSchedulerProcess(w http.ResponseWriter, r *http.Request) {
	if s.deps.WebhookSecret == "" {
		writeError(w, http.StatusForbidden, "scheduler trigger disabled: server.webhook_secret is not set")
		return
	}
	if !validBearer(r.Header.Get("Authorization"), s.deps.WebhookSecret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	shop, err := requestShop(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref := s.now().UTC()
	var results []*pipeline.RunResult
	if shop != "" {
		results = []*pipeline.RunResult{s.deps.Runner.RunIfDue(r.Context(), shop, ref, pipeline.TriggerTimer)}
	} else {
		results = s.deps.Runner.RunAll(r.Context(), ref, pipeline.TriggerTimer)
	}

	status := http.StatusOK
	success := true
	for _, res := range results {
		logRunResult(res)
		if res != nil && res.Err != nil {
			success = false
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, map[string]any{
		"success":   success,
		"timestamp": ref,
		"results":   results,
	})
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shop, err := s.resolveShop(req.Shop)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Shop = shop

	res := s.deps.Runner.ProcessNow(r.Context(), req)
	status := http.StatusOK
	if !res.Success {
		status = errorStatus(res.Err)
	}
	writeJSON(w, status, res)
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	api, shop, ok := s.shopAPI(w, r)
	if !ok {
		return
	}
	settings, err := metaobject.NewSettingsStore(api).Load(r.Context())
	if err != nil {
		zap.L().Error("load settings failed", zap.String("shop", shop), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shop": shop, "config": settings})
}

func (s *server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	api, shop, ok := s.shopAPI(w, r)
	if !ok {
		return
	}
	settings := model.DefaultStoredConfig()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config body")
		return
	}

	ctx := r.Context()
	if _, err := metaobject.EnsureDefinitions(ctx, api); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	res, err := metaobject.NewSettingsStore(api).Save(ctx, settings)
	if err != nil {
		zap.L().Error("save settings failed", zap.String("shop", shop), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"shop":        shop,
		"config":      settings.Normalize(),
		"storeResult": res,
	})
}

func (s *server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	recs, err := s.deps.Periods.ListPeriods(r.Context(), store.PeriodFilter{
		Shop:   q.Get("shop"),
		Status: model.PeriodStatus(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []model.PeriodRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": recs})
}

// handleSchedule reports the current decision for a shop without changing state.
func (s *server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	api, shop, ok := s.shopAPI(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	settings, err := metaobject.NewSettingsStore(api).Load(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	decision, err := s.deps.Scheduler.Evaluate(ctx, shop, s.now(), settings.ScheduleFrequency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shop":      shop,
		"frequency": settings.ScheduleFrequency,
		"decision":  decision,
	})
}

// shopAPI resolves the shop query parameter and connects to it, writing the
// error response itself when that fails.
func (s *server) shopAPI(w http.ResponseWriter, r *http.Request) (metaobject.API, string, bool) {
	shop, err := s.resolveShop(r.URL.Query().Get("shop"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, "", false
	}
	api, err := s.deps.Connect(shop)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, "", false
	}
	return api, shop, true
}

func (s *server) resolveShop(shop string) (string, error) {
	if shop != "" {
		return shop, nil
	}
	if len(s.deps.Shops) == 1 {
		return s.deps.Shops[0], nil
	}
	return "", eris.New("shop is required")
}

// requestShop reads an optional shop from a JSON body, a form body, or the
// query string.
func requestShop(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			Shop string `json:"shop"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return "", eris.New("invalid request body")
		}
		if body.Shop != "" {
			return body.Shop, nil
		}
		return r.URL.Query().Get("shop"), nil
	}
	if err := r.ParseForm(); err != nil {
		return "", eris.New("invalid form body")
	}
	return r.FormValue("shop"), nil
}

// verifyShopifyHMAC checks the base64 HMAC-SHA256 of the raw body.
func verifyShopifyHMAC(body []byte, header, secret string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func validBearer(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// errorStatus maps a pipeline error kind to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrUpstreamFetch), errors.Is(err, pipeline.ErrStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// runTicker runs the due check for every configured shop at startup and then
// every interval until ctx is done.
func runTicker(ctx context.Context, every time.Duration, r runner) {
	if every <= 0 {
		every = time.Hour
	}
	tick := func() {
		results := r.RunAll(ctx, time.Now().UTC(), pipeline.TriggerTimer)
		ran := 0
		for _, res := range results {
			logRunResult(res)
			if res != nil && res.Ran() {
				ran++
			}
		}
		zap.L().Info("ticker: due check complete", zap.Int("shops", len(results)), zap.Int("ran", ran))
	}

	tick()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}

func logRunResult(res *pipeline.RunResult, extra ...zap.Field) {
	if res == nil {
		return
	}
	fields := append([]zap.Field{
		zap.String("shop", res.Shop),
		zap.String("trigger", res.Trigger),
		zap.Bool("ran", res.Ran()),
	}, extra...)
	if res.Decision != nil {
		fields = append(fields,
			zap.String("state", string(res.Decision.State)),
			zap.String("reason", res.Decision.Reason),
		)
	}
	if res.Err != nil {
		zap.L().Error("due check failed", append(fields, zap.Error(res.Err))...)
		return
	}
	zap.L().Info("due check", fields...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
