package orders

import (
	"strings"
)

// PendingBucket is the synthetic histogram bucket for orders with no tags.
const PendingBucket = "Pending"

// SplitTags splits a comma-delimited tag field into trimmed, non-empty tag
// names. Duplicates are preserved: "A,A" yields two entries.
func SplitTags(field string) []string {
	var tags []string
	for _, raw := range strings.Split(field, ",") {
		tag := strings.TrimSpace(raw)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// TagHistogram reduces orders into a tag-frequency map. Untagged orders
// (empty or whitespace-only tag field) count toward the Pending bucket;
// tagged orders increment every named bucket once per occurrence.
func TagHistogram(orders []Order) map[string]int {
	counts := make(map[string]int)
	for _, order := range orders {
		tags := SplitTags(order.Tags)
		if len(tags) == 0 {
			counts[PendingBucket]++
			continue
		}
		for _, tag := range tags {
			counts[tag]++
		}
	}
	return counts
}
