// Package chart builds the candle stream served to chart clients.
package chart

import (
	"sort"

	"pump-candles/internal/domain"
)

// Interpolate produces one point per step from `from` to `to` inclusive.
// Each point t takes the latest known candle with bucket b <= t: the candle itself
// when t falls inside [b, b+step), otherwise a flat zero-volume candle at its close.
// Points before the first known bucket are skipped. Output timestamps are the grid
// points, not the known buckets.
func Interpolate(from, to, step int64, known []domain.TradeOhlcv) []domain.TradeOhlcv {
	if step <= 0 || from > to || len(known) == 0 {
		return []domain.TradeOhlcv{}
	}

	if !sort.SliceIsSorted(known, func(i, j int) bool { return known[i].Timestamp < known[j].Timestamp }) {
		sorted := make([]domain.TradeOhlcv, len(known))
		copy(sorted, known)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
		known = sorted
	}

	result := make([]domain.TradeOhlcv, 0, (to-from)/step+1)
	for t := from; t <= to; t += step {
		// first index with bucket > t; the one before it is the latest b <= t
		idx := sort.Search(len(known), func(i int) bool { return known[i].Timestamp > t })
		if idx == 0 {
			continue
		}

		point := known[idx-1]
		c := point.Candle
		if t >= point.Timestamp+step {
			c = domain.Flat(point.Candle.Close)
		}
		result = append(result, domain.TradeOhlcv{Timestamp: t, Candle: c})
	}

	return result
}
