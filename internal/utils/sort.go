package utils

import (
	"sort"
	"time"
)

func SortDates(dates []time.Time, asc bool) []time.Time {
	sort.Slice(dates, func(i, j int) bool {
		if asc {
			return dates[i].Before(dates[j])
		}
		return dates[i].After(dates[j])
	})
	return dates
}

// GetSortedKeys returns the keys of m in time order.
func GetSortedKeys[T any](m map[time.Time]T, asc bool) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return SortDates(keys, asc)
}

// SortByTime orders items by the time key returns, keeping the order of
// equal times.
func SortByTime[T any](items []T, key func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]).Before(key(items[j]))
	})
}
