// Package rangeset tracks which date intervals have already been fetched.
//
// Ranges are kept sorted by start, disjoint and non-adjacent. All functions
// are pure: the input slice is never modified.
package rangeset

import (
	"sort"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
)

// IsCovered reports whether a single stored range fully contains
// [start, end]. A request that only partially overlaps is not covered.
func IsCovered(ranges []domain.DateRange, start, end string) bool {
	for _, r := range ranges {
		if r.Start <= start && r.End >= end {
			return true
		}
	}
	return false
}

// Merge inserts r and coalesces overlapping or touching ranges: a range
// ending on, or the day before, the day the next one starts.
func Merge(ranges []domain.DateRange, r domain.DateRange) []domain.DateRange {
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}

	all := make([]domain.DateRange, 0, len(ranges)+1)
	all = append(all, ranges...)
	all = append(all, r)
	sort.Slice(all, func(i, j int) bool {
		if all[i].Start == all[j].Start {
			return all[i].End < all[j].End
		}
		return all[i].Start < all[j].Start
	})

	out := make([]domain.DateRange, 0, len(all))
	cur := all[0]
	for _, next := range all[1:] {
		if cur.End >= next.Start || dayAfter(cur.End) == next.Start {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// dayAfter returns the day following a DateLayout day, or "" when day
// does not parse.
func dayAfter(day string) string {
	t, err := time.Parse(domain.DateLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format(domain.DateLayout)
}

// MergeAll folds every range into an empty set.
func MergeAll(ranges ...domain.DateRange) []domain.DateRange {
	var out []domain.DateRange
	for _, r := range ranges {
		out = Merge(out, r)
	}
	return out
}
