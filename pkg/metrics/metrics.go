// Package metrics documents the Prometheus metrics exposed by the admin
// proxy. All metrics are defined in their respective packages via promauto
// to maintain modularity and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - proxy_pagination_pages_total (Counter): Pages fetched across all walks
//   - proxy_pagination_pages_per_walk (Histogram): Pages per completed walk
//   - proxy_pagination_aborts_total (Counter): Walks aborted on a page failure
//
// Call-Limit Metrics (pkg/ratelimit):
//   - proxy_call_limit_remaining{shop} (Gauge): Remaining admin API bucket capacity
//   - proxy_call_limit_throttles_total (Counter): Requests delayed by a nearly full bucket
//
// Upstream Metrics (pkg/upstream):
//   - proxy_upstream_requests_total{endpoint, status} (Counter): Admin API requests by endpoint and HTTP status
//   - proxy_upstream_request_duration_seconds{endpoint} (Histogram): Admin API request duration by endpoint
//   - proxy_upstream_errors_total{class} (Counter): Admin API errors by class (client, throttle, server, network)
//
// Workflow Metrics (pkg/orders):
//   - proxy_workflow_outcomes_total{intent, result} (Counter): Tag mutation outcomes by intent
//
// Gate Metrics (internal/server):
//   - proxy_gate_rejections_total{gate} (Counter): Requests rejected by an inbound gate
//
// Example Prometheus Queries:
//
//   # Upstream Error Rate
//   rate(proxy_upstream_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(proxy_upstream_request_duration_seconds_bucket[5m]))
//
//   # Bucket Pressure
//   proxy_call_limit_remaining < 8
//
//   # Aggregation Abort Rate
//   rate(proxy_pagination_aborts_total[5m]) / rate(proxy_pagination_pages_total[5m])
//
//   # Failed Workflow Share
//   sum(rate(proxy_workflow_outcomes_total{result="failed"}[5m]))
