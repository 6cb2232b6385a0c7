package pagination

import (
	"net/http"
	"net/url"
	"strings"
)

// LinkState classifies the outcome of parsing a Link response header.
type LinkState int

const (
	// LinkAbsent means the response carried no Link header.
	LinkAbsent LinkState = iota

	// LinkNoNext means the header parsed cleanly but carried no next relation
	// (e.g. only rel="previous" on the last page).
	LinkNoNext

	// LinkMalformed means a next relation was present but its URL or cursor
	// parameter could not be extracted.
	LinkMalformed

	// LinkNext means a next-page cursor was extracted.
	LinkNext
)

// String returns the state name for logging.
func (s LinkState) String() string {
	switch s {
	case LinkAbsent:
		return "absent"
	case LinkNoNext:
		return "no_next"
	case LinkMalformed:
		return "malformed"
	case LinkNext:
		return "next"
	default:
		return "unknown"
	}
}

// cursorParam is the query parameter carrying the opaque page cursor in
// admin API pagination URLs.
const cursorParam = "page_info"

// ParseNextLink extracts the next-page cursor from a Link response header.
//
// The admin API paginates with RFC 5988 style links:
//
//	Link: <https://shop.myshopify.com/admin/api/2024-01/orders.json?limit=250&page_info=abc123>; rel="next"
//
// Only the rel="next" entry matters; cursors are opaque and forwarded
// verbatim. Missing, malformed, or next-less headers are not errors: they
// mean the walk is over, and the state tells the caller which case it was.
func ParseNextLink(h http.Header) (string, LinkState) {
	raw := h.Get("Link")
	if raw == "" {
		return "", LinkAbsent
	}

	sawNext := false
	for _, entry := range strings.Split(raw, ",") {
		if !relIsNext(entry) {
			continue
		}
		sawNext = true

		target, ok := linkTarget(entry)
		if !ok {
			continue
		}

		u, err := url.Parse(target)
		if err != nil {
			continue
		}
		if cursor := u.Query().Get(cursorParam); cursor != "" {
			return cursor, LinkNext
		}
	}

	if sawNext {
		return "", LinkMalformed
	}
	return "", LinkNoNext
}

// NextCursor is the common-case wrapper around ParseNextLink: it returns the
// cursor and whether another page exists.
func NextCursor(h http.Header) (string, bool) {
	cursor, state := ParseNextLink(h)
	return cursor, state == LinkNext
}

// relIsNext reports whether a single Link entry is annotated rel="next".
// Both quoted and unquoted relation values appear in the wild.
func relIsNext(entry string) bool {
	for _, part := range strings.Split(entry, ";")[1:] {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "rel=") {
			continue
		}
		rel := strings.Trim(strings.TrimPrefix(part, "rel="), `"`)
		if strings.EqualFold(rel, "next") {
			return true
		}
	}
	return false
}

// linkTarget extracts the <...> URL from a single Link entry.
func linkTarget(entry string) (string, bool) {
	start := strings.Index(entry, "<")
	end := strings.Index(entry, ">")
	if start == -1 || end == -1 || end <= start+1 {
		return "", false
	}
	return entry[start+1 : end], true
}
