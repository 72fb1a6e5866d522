package domain

// Candle is an OHLCV summary of one bucket.
// Once populated: Low <= Open, Close <= High and Volume >= 0.
type Candle struct {
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`
}

// Flat returns a no-trade candle carrying price forward.
func Flat(price float64) Candle {
	return Candle{Open: price, Close: price, High: price, Low: price}
}

// TradeOhlcv is a candle at a bucket start. It is the unit streamed to chart clients.
type TradeOhlcv struct {
	Timestamp int64  `json:"timestamp"` // bucket start, unix seconds
	Candle    Candle `json:"candle"`
}

// BucketKey addresses one candle. Candles have no identity beyond this key.
type BucketKey struct {
	Mint       string
	Resolution Resolution
	Bucket     int64 // aligned bucket start, unix seconds
}

// CandleMerge describes how one trade changes one bucket:
// open is set only when the bucket is empty, close is overwritten,
// high/low take the running max/min and volume accumulates.
type CandleMerge struct {
	Key    BucketKey
	Price  float64
	Volume float64
	Seq    uint64 // event order, strictly increasing per ingestion process
}
