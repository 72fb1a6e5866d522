// Package candle turns raw trades into per-resolution candle merges.
package candle

import (
	"errors"
	"fmt"
	"math"

	"pump-candles/internal/domain"
)

// ErrInvalidPrice is returned when a trade's price is not finite and positive.
// The whole trade is rejected; no resolution is updated.
var ErrInvalidPrice = errors.New("invalid trade price")

// Aggregate builds one merge per resolution for a trade observed at timestamp (unix seconds).
func Aggregate(trade domain.TradeInfo, timestamp int64) ([]domain.CandleMerge, error) {
	price := trade.Price()
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, fmt.Errorf("%w: %d / %d for %s", ErrInvalidPrice, trade.QuoteAmount, trade.BaseAmount, trade.Mint)
	}

	volume := float64(trade.BaseAmount)

	merges := make([]domain.CandleMerge, 0, domain.ResolutionCount)
	for _, res := range domain.AllResolutions() {
		merges = append(merges, domain.CandleMerge{
			Key: domain.BucketKey{
				Mint:       trade.Mint,
				Resolution: res,
				Bucket:     res.Align(timestamp),
			},
			Price:  price,
			Volume: volume,
			Seq:    trade.Seq,
		})
	}
	return merges, nil
}

// Apply merges m into a bucket. exists reports whether the bucket already has a value;
// when it does not, the merge opens it.
func Apply(existing domain.Candle, exists bool, m domain.CandleMerge) domain.Candle {
	if !exists {
		return domain.Candle{
			Open:   m.Price,
			Close:  m.Price,
			High:   m.Price,
			Low:    m.Price,
			Volume: m.Volume,
		}
	}

	c := existing
	c.Close = m.Price
	c.High = math.Max(c.High, m.Price)
	c.Low = math.Min(c.Low, m.Price)
	c.Volume += m.Volume
	return c
}
