package orders

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shopdash/admin-proxy/pkg/pagination"
	"github.com/shopdash/admin-proxy/pkg/upstream"
)

// pageLimit is the maximum page size the admin API allows.
const pageLimit = 250

// Service exposes the order operations consumed by the HTTP layer.
type Service struct {
	client   *upstream.Client
	maxPages int
	logger   zerolog.Logger
}

// NewService creates an order service on top of an upstream client.
// maxPages caps aggregation walks (0 = unbounded).
func NewService(client *upstream.Client, maxPages int) *Service {
	return &Service{
		client:   client,
		maxPages: maxPages,
		logger:   log.With().Str("component", "orders-service").Logger(),
	}
}

// ordersPath builds the orders collection path for one page. The first page
// carries the status filter; follow-up pages carry only the cursor, because
// the admin API rejects filters alongside page_info.
func ordersPath(cursor string) string {
	if cursor == "" {
		return fmt.Sprintf("/orders.json?status=any&limit=%d", pageLimit)
	}
	return fmt.Sprintf("/orders.json?limit=%d&page_info=%s", pageLimit, url.QueryEscape(cursor))
}

// fetchPage fetches one orders page and returns its items and headers.
func (s *Service) fetchPage(ctx context.Context, cursor string) ([]Order, http.Header, error) {
	resp, err := s.client.Get(ctx, ordersPath(cursor))
	if err != nil {
		return nil, nil, err
	}

	var envelope ordersEnvelope
	if err := resp.DecodeJSON(&envelope); err != nil {
		return nil, nil, err
	}
	return envelope.Orders, resp.Header, nil
}

// TagCounts walks the entire orders collection and reduces it into a tag
// histogram. The reduction runs only after the walk fully terminates; any
// page failure aborts the aggregation with no partial result.
func (s *Service) TagCounts(ctx context.Context) (*TagCountSummary, error) {
	var all []Order

	walker := pagination.NewWalker(s.maxPages)
	pages, err := walker.Walk(ctx, func(ctx context.Context, cursor string) (http.Header, error) {
		orders, header, err := s.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)
		return header, nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}

	s.logger.Info().
		Int("pages", pages).
		Int("orders", len(all)).
		Msg("Tag aggregation complete")

	return &TagCountSummary{
		Total:  len(all),
		Counts: TagHistogram(all),
	}, nil
}

// ListPage fetches a single orders page for the given cursor (empty for the
// first page) and extracts the cursor of the next one.
func (s *Service) ListPage(ctx context.Context, cursor string) (*OrderPage, error) {
	orders, header, err := s.fetchPage(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("list orders page: %w", err)
	}

	next, _ := pagination.NextCursor(header)
	return &OrderPage{
		Orders:     orders,
		NextCursor: next,
	}, nil
}

// CountOrders returns the upstream order count, optionally filtered by
// financial status.
func (s *Service) CountOrders(ctx context.Context, financialStatus string) (int, error) {
	path := "/orders/count.json?status=any"
	if financialStatus != "" {
		path += "&financial_status=" + url.QueryEscape(financialStatus)
	}

	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}

	var envelope countEnvelope
	if err := resp.DecodeJSON(&envelope); err != nil {
		return 0, err
	}
	return envelope.Count, nil
}

// GetOrder fetches one order by identifier.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	resp, err := s.client.Get(ctx, "/orders/"+url.PathEscape(orderID)+".json")
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	var envelope orderEnvelope
	if err := resp.DecodeJSON(&envelope); err != nil {
		return nil, err
	}
	return &envelope.Order, nil
}
