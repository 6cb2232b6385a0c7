// Package pagination implements cursor-based pagination over the admin API.
//
// The admin API communicates pagination through a Link response header whose
// rel="next" entry carries an opaque page_info cursor. ParseNextLink is the
// pure header parser; Walker chains one fetch per cursor until exhaustion.
//
// Example usage:
//
//	walker := pagination.NewWalker(0)
//	var all []orders.Order
//	pages, err := walker.Walk(ctx, func(ctx context.Context, cursor string) (http.Header, error) {
//		page, header, err := fetchOrders(ctx, cursor)
//		if err != nil {
//			return nil, err
//		}
//		all = append(all, page...)
//		return header, nil
//	})
//
// Walks are strictly sequential: each cursor comes from the previous
// response, so there is nothing to parallelize. A fetch failure aborts the
// entire walk with no partial result; a missing or malformed Link header
// terminates it cleanly.
package pagination
