// Package orders exports a shop's orders for a creation window, page by page.
package orders

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/pkg/shopify"
)

// Defaults for a single export.
const (
	DefaultPageSize   = 250
	DefaultMaxBatches = 20
	DefaultBatchDelay = 100 * time.Millisecond
)

// PageSource returns one cursor page of orders matching an orders search
// expression. *shopify.Client implements it.
type PageSource interface {
	OrdersPage(ctx context.Context, search string, first int, after string) (*model.OrderPage, error)
}

// Window is an inclusive creation-time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEndingAt returns the window of months×30 days ending at end.
func WindowEndingAt(end time.Time, months int) Window {
	if months <= 0 {
		months = 1
	}
	return Window{Start: end.AddDate(0, 0, -30*months), End: end}
}

// Options bounds one export.
type Options struct {
	MaxBatches int
	PageSize   int
	BatchDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxBatches <= 0 {
		o.MaxBatches = DefaultMaxBatches
	}
	if o.PageSize <= 0 || o.PageSize > shopify.MaxPageSize {
		o.PageSize = DefaultPageSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	return o
}

// Result is the outcome of an export.
type Result struct {
	Orders  []model.Order
	Batches int
	// HasMore is true when the batch cap stopped the export before the last page.
	HasMore bool
}

// Fetcher pages through orders from a PageSource.
type Fetcher struct {
	source PageSource
}

// NewFetcher creates a Fetcher reading from source.
func NewFetcher(source PageSource) *Fetcher {
	return &Fetcher{source: source}
}

// Fetch returns every order created within w, up to opts.MaxBatches pages.
// A page failure aborts the export and no orders are returned.
func (f *Fetcher) Fetch(ctx context.Context, w Window, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	search := shopify.OrdersSearch(w.Start, w.End)
	log := zap.L().With(
		zap.Time("start", w.Start),
		zap.Time("end", w.End),
		zap.Int("max_batches", opts.MaxBatches),
	)

	var (
		all     []model.Order
		cursor  string
		batches int
		hasNext = true
	)
	for hasNext && batches < opts.MaxBatches {
		page, err := f.source.OrdersPage(ctx, search, opts.PageSize, cursor)
		if err != nil {
			return nil, eris.Wrapf(err, "orders: fetch batch %d", batches+1)
		}
		all = append(all, page.Orders...)
		hasNext = page.HasNextPage
		cursor = page.EndCursor
		batches++

		log.Debug("orders: fetched batch",
			zap.Int("batch", batches),
			zap.Int("page_orders", len(page.Orders)),
			zap.Bool("has_next_page", hasNext),
		)

		if hasNext && batches < opts.MaxBatches && opts.BatchDelay > 0 {
			if err := sleep(ctx, opts.BatchDelay); err != nil {
				return nil, eris.Wrap(err, "orders: batch delay")
			}
		}
	}

	res := &Result{Orders: all, Batches: batches, HasMore: hasNext}
	if res.HasMore {
		log.Warn("orders: batch cap reached, export truncated",
			zap.Int("orders", len(all)),
			zap.Int("batches", batches),
		)
	}
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
