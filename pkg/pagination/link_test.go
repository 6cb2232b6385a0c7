package pagination

import (
	"net/http"
	"testing"
)

func headerWithLink(link string) http.Header {
	h := http.Header{}
	if link != "" {
		h.Set("Link", link)
	}
	return h
}

func TestParseNextLink(t *testing.T) {
	tests := []struct {
		name       string
		link       string
		wantCursor string
		wantState  LinkState
	}{
		{
			name:      "absent header",
			link:      "",
			wantState: LinkAbsent,
		},
		{
			name:       "single next link",
			link:       `<https://shop.myshopify.com/admin/api/2024-01/orders.json?limit=250&page_info=abc123>; rel="next"`,
			wantCursor: "abc123",
			wantState:  LinkNext,
		},
		{
			name:      "previous only",
			link:      `<https://shop.myshopify.com/admin/api/2024-01/orders.json?page_info=prev111>; rel="previous"`,
			wantState: LinkNoNext,
		},
		{
			name:       "previous and next",
			link:       `<https://x.myshopify.com/orders.json?page_info=prev111>; rel="previous", <https://x.myshopify.com/orders.json?page_info=next222>; rel="next"`,
			wantCursor: "next222",
			wantState:  LinkNext,
		},
		{
			name:       "unquoted rel",
			link:       `<https://x.myshopify.com/orders.json?page_info=tok>; rel=next`,
			wantCursor: "tok",
			wantState:  LinkNext,
		},
		{
			name:      "next without page_info",
			link:      `<https://x.myshopify.com/orders.json?limit=250>; rel="next"`,
			wantState: LinkMalformed,
		},
		{
			name:      "next without url brackets",
			link:      `https://x.myshopify.com/orders.json?page_info=tok; rel="next"`,
			wantState: LinkMalformed,
		},
		{
			name:      "garbage header",
			link:      `not a link header at all`,
			wantState: LinkNoNext,
		},
		{
			name:       "cursor with url-encoded characters",
			link:       `<https://x.myshopify.com/orders.json?page_info=eyJsYXN0X2lkIjo0fQ%3D%3D>; rel="next"`,
			wantCursor: "eyJsYXN0X2lkIjo0fQ==",
			wantState:  LinkNext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, state := ParseNextLink(headerWithLink(tt.link))

			if state != tt.wantState {
				t.Errorf("state = %s, want %s", state, tt.wantState)
			}
			if cursor != tt.wantCursor {
				t.Errorf("cursor = %q, want %q", cursor, tt.wantCursor)
			}
		})
	}
}

func TestNextCursor(t *testing.T) {
	h := headerWithLink(`<https://x.myshopify.com/orders.json?page_info=tok42>; rel="next"`)

	cursor, ok := NextCursor(h)
	if !ok {
		t.Fatal("expected ok = true")
	}
	if cursor != "tok42" {
		t.Errorf("cursor = %q, want %q", cursor, "tok42")
	}

	if _, ok := NextCursor(http.Header{}); ok {
		t.Error("expected ok = false for absent header")
	}
}
