package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page walks.
var (
	walkPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_pagination_pages_total",
		Help: "Total pages fetched across all cursor walks",
	})

	walkPagesPerWalk = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "proxy_pagination_pages_per_walk",
		Help:    "Pages fetched per completed cursor walk",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	walkAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_pagination_aborts_total",
		Help: "Total cursor walks aborted by an upstream failure",
	})
)

// ErrPageBudgetExceeded is returned when a walk hits its configured MaxPages
// budget while the upstream still advertises a next page.
var ErrPageBudgetExceeded = errors.New("pagination page budget exceeded")

// FetchPage fetches one page for the given cursor (empty on the first call)
// and returns the response header so the walker can extract the next cursor.
// The callback owns accumulation of the page's items.
type FetchPage func(ctx context.Context, cursor string) (http.Header, error)

// Walker drives a sequential cursor walk over a paginated upstream
// collection. Each cursor depends on the previous response, so pages are
// fetched strictly one at a time.
type Walker struct {
	// MaxPages caps the number of pages fetched in one walk. Zero means
	// unbounded, matching the upstream contract for well-behaved responses.
	MaxPages int

	Logger zerolog.Logger
}

// NewWalker creates a walker with the given page budget (0 = unbounded).
func NewWalker(maxPages int) *Walker {
	return &Walker{
		MaxPages: maxPages,
		Logger:   log.With().Str("component", "pagination").Logger(),
	}
}

// Walk fetches pages until the upstream stops advertising a next cursor.
// The first fetch uses an empty cursor. Any fetch error aborts the whole
// walk; the caller must discard anything accumulated so far. Cancellation is
// checked between pages.
func (w *Walker) Walk(ctx context.Context, fetch FetchPage) (int, error) {
	cursor := ""
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		if w.MaxPages > 0 && pages >= w.MaxPages {
			w.Logger.Warn().
				Int("pages", pages).
				Int("max_pages", w.MaxPages).
				Msg("Page budget exceeded, aborting walk")
			return pages, fmt.Errorf("%w after %d pages", ErrPageBudgetExceeded, pages)
		}

		header, err := fetch(ctx, cursor)
		if err != nil {
			walkAbortsTotal.Inc()
			return pages, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}

		pages++
		walkPagesTotal.Inc()

		next, state := ParseNextLink(header)
		switch state {
		case LinkNext:
			w.Logger.Debug().
				Int("page", pages).
				Msg("Following next-page cursor")
			cursor = next
		case LinkMalformed:
			// Not fatal: treat as end of pagination, but leave a trace.
			w.Logger.Warn().
				Int("pages", pages).
				Str("link_state", state.String()).
				Msg("Malformed pagination header, treating as last page")
			walkPagesPerWalk.Observe(float64(pages))
			return pages, nil
		default:
			walkPagesPerWalk.Observe(float64(pages))
			return pages, nil
		}
	}
}
