package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for mutation workflows.
var (
	workflowOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_workflow_outcomes_total",
		Help: "Total mutation workflow outcomes by intent and result",
	}, []string{"intent", "result"})
)

// Validation errors. These surface before any upstream call is made.
var (
	ErrMissingOrderID = errors.New("orderId is required")
	ErrMissingTag     = errors.New("tag is required")
)

// IsValidationError reports whether err is a client-input error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingOrderID) || errors.Is(err, ErrMissingTag)
}

// Tag markers that trigger secondary actions.
const (
	// TagShipped triggers fulfillment creation for still-open
	// fulfillment orders.
	TagShipped = "Shipped"

	// TagCompleted triggers a manual payment capture for the order total.
	TagCompleted = "Completed"
)

// mutationIntent is resolved once from the input tag; the workflow then
// dispatches on it rather than re-comparing strings at each step.
type mutationIntent int

const (
	intentRetag mutationIntent = iota
	intentMarkShipped
	intentMarkCompleted
)

func (i mutationIntent) String() string {
	switch i {
	case intentMarkShipped:
		return "mark_shipped"
	case intentMarkCompleted:
		return "mark_completed"
	default:
		return "retag"
	}
}

func intentFor(tag string) mutationIntent {
	switch tag {
	case TagShipped:
		return intentMarkShipped
	case TagCompleted:
		return intentMarkCompleted
	default:
		return intentRetag
	}
}

// ApplyTagInput is the mutation request.
type ApplyTagInput struct {
	OrderID string

	// Tag is the tag value to write to the order.
	Tag string

	// FulfillmentStatus is the order's last-known fulfillment status, as
	// reported by the dashboard. Only consulted for the shipped branch.
	FulfillmentStatus string

	// FinancialStatus is the order's last-known financial status. Carried
	// for parity with the dashboard payload; the capture branch re-fetches
	// the order rather than trusting it.
	FinancialStatus string
}

// SecondaryAction identifies the follow-up call chain a tag triggered.
type SecondaryAction string

const (
	SecondaryFulfillment SecondaryAction = "fulfillment"
	SecondaryCapture     SecondaryAction = "capture"
)

// SecondaryStatus is the result of the secondary action.
type SecondaryStatus string

const (
	// SecondaryDone means the follow-up call chain completed.
	SecondaryDone SecondaryStatus = "done"

	// SecondarySkipped means the branch had nothing to do (a legitimate
	// no-op, e.g. every fulfillment order already closed).
	SecondarySkipped SecondaryStatus = "skipped"

	// SecondaryFailed means the tag was applied but the follow-up chain
	// failed. The tag is not rolled back.
	SecondaryFailed SecondaryStatus = "failed"
)

// SecondaryResult describes what the secondary branch did.
type SecondaryResult struct {
	Action SecondaryAction `json:"action"`
	Status SecondaryStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

// MutationOutcome is the result of an ApplyTag workflow.
type MutationOutcome struct {
	Success   bool             `json:"success"`
	Tag       string           `json:"tag"`
	Secondary *SecondaryResult `json:"secondary,omitempty"`
}

type updateOrderRequest struct {
	Order struct {
		Tags string `json:"tags"`
	} `json:"order"`
}

type fulfillmentByOrder struct {
	FulfillmentOrderID int64 `json:"fulfillment_order_id"`
}

type createFulfillmentRequest struct {
	Fulfillment struct {
		NotifyCustomer              bool                 `json:"notify_customer"`
		LineItemsByFulfillmentOrder []fulfillmentByOrder `json:"line_items_by_fulfillment_order"`
	} `json:"fulfillment"`
}

type createTransactionRequest struct {
	Transaction struct {
		Kind    string `json:"kind"`
		Status  string `json:"status"`
		Gateway string `json:"gateway"`
		Amount  string `json:"amount"`
	} `json:"transaction"`
}

// ApplyTag applies a tag to an order and performs any tag-triggered side
// effects, in strict sequence:
//
//  1. Validate input (no upstream call on failure).
//  2. Update the order's tag field. Failure aborts the whole workflow.
//  3. Shipped tag on a not-yet-fulfilled order: create a fulfillment for the
//     still-open fulfillment orders, or skip if none remain.
//  4. Completed tag: re-fetch the order and capture its total via a manual
//     gateway transaction.
//
// The branches are mutually exclusive and never retried. A secondary failure
// after a successful tag update is reported in the outcome, not as an error,
// and the tag stays applied.
func (s *Service) ApplyTag(ctx context.Context, in ApplyTagInput) (*MutationOutcome, error) {
	if in.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	if in.Tag == "" {
		return nil, ErrMissingTag
	}

	intent := intentFor(in.Tag)
	logger := s.logger.With().
		Str("order_id", in.OrderID).
		Str("tag", in.Tag).
		Str("intent", intent.String()).
		Logger()

	var update updateOrderRequest
	update.Order.Tags = in.Tag
	if _, err := s.client.Put(ctx, "/orders/"+url.PathEscape(in.OrderID)+".json", update); err != nil {
		workflowOutcomesTotal.WithLabelValues(intent.String(), "update_failed").Inc()
		logger.Error().Err(err).Msg("Tag update failed, aborting workflow")
		return nil, fmt.Errorf("update order tag: %w", err)
	}

	outcome := &MutationOutcome{
		Success: true,
		Tag:     in.Tag,
	}

	switch intent {
	case intentMarkShipped:
		if in.FulfillmentStatus == "" || in.FulfillmentStatus == "unfulfilled" {
			outcome.Secondary = s.fulfillOpenOrders(ctx, in.OrderID, logger)
		}
	case intentMarkCompleted:
		outcome.Secondary = s.captureOrderTotal(ctx, in.OrderID, logger)
	}

	result := "done"
	if outcome.Secondary != nil {
		result = string(outcome.Secondary.Status)
	}
	workflowOutcomesTotal.WithLabelValues(intent.String(), result).Inc()

	logger.Info().
		Interface("secondary", outcome.Secondary).
		Msg("Mutation workflow complete")

	return outcome, nil
}

// fulfillOpenOrders fetches the order's fulfillment orders and creates one
// fulfillment covering exactly the still-open ones, with customer
// notification suppressed.
func (s *Service) fulfillOpenOrders(ctx context.Context, orderID string, logger zerolog.Logger) *SecondaryResult {
	resp, err := s.client.Get(ctx, "/orders/"+url.PathEscape(orderID)+"/fulfillment_orders.json")
	if err != nil {
		logger.Warn().Err(err).Msg("Fulfillment order lookup failed, tag remains applied")
		return &SecondaryResult{
			Action: SecondaryFulfillment,
			Status: SecondaryFailed,
			Detail: err.Error(),
		}
	}

	var envelope fulfillmentOrdersEnvelope
	if err := resp.DecodeJSON(&envelope); err != nil {
		return &SecondaryResult{
			Action: SecondaryFulfillment,
			Status: SecondaryFailed,
			Detail: err.Error(),
		}
	}

	var open []fulfillmentByOrder
	for _, fo := range envelope.FulfillmentOrders {
		if fo.Open() {
			open = append(open, fulfillmentByOrder{FulfillmentOrderID: fo.ID})
		}
	}

	if len(open) == 0 {
		logger.Debug().Msg("All fulfillment orders closed, nothing to fulfill")
		return &SecondaryResult{
			Action: SecondaryFulfillment,
			Status: SecondarySkipped,
			Detail: "all fulfillment orders closed",
		}
	}

	var req createFulfillmentRequest
	req.Fulfillment.NotifyCustomer = false
	req.Fulfillment.LineItemsByFulfillmentOrder = open

	if _, err := s.client.Post(ctx, "/fulfillments.json", req); err != nil {
		logger.Warn().Err(err).Msg("Fulfillment creation failed, tag remains applied")
		return &SecondaryResult{
			Action: SecondaryFulfillment,
			Status: SecondaryFailed,
			Detail: err.Error(),
		}
	}

	return &SecondaryResult{
		Action: SecondaryFulfillment,
		Status: SecondaryDone,
		Detail: fmt.Sprintf("fulfilled %d fulfillment orders", len(open)),
	}
}

// captureOrderTotal re-fetches the order for its authoritative total and
// records a manual capture transaction for that exact amount.
func (s *Service) captureOrderTotal(ctx context.Context, orderID string, logger zerolog.Logger) *SecondaryResult {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		logger.Warn().Err(err).Msg("Order re-fetch failed, tag remains applied")
		return &SecondaryResult{
			Action: SecondaryCapture,
			Status: SecondaryFailed,
			Detail: err.Error(),
		}
	}

	var req createTransactionRequest
	req.Transaction.Kind = "capture"
	req.Transaction.Status = "success"
	req.Transaction.Gateway = "manual"
	req.Transaction.Amount = order.TotalPrice.String()

	path := "/orders/" + url.PathEscape(orderID) + "/transactions.json"
	if _, err := s.client.Post(ctx, path, req); err != nil {
		logger.Warn().Err(err).Msg("Payment capture failed, tag remains applied")
		return &SecondaryResult{
			Action: SecondaryCapture,
			Status: SecondaryFailed,
			Detail: err.Error(),
		}
	}

	return &SecondaryResult{
		Action: SecondaryCapture,
		Status: SecondaryDone,
		Detail: "captured " + order.TotalPrice.String(),
	}
}
