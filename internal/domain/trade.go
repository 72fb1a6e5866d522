package domain

// TradeInfo is a raw trade used for aggregation. It is never persisted as-is.
type TradeInfo struct {
	Mint        string // token mint address
	BaseAmount  uint64 // token amount
	QuoteAmount uint64 // SOL amount in lamports
	Seq         uint64 // dispatch order
}

// Price returns quote per base. Zero base amount yields +Inf or NaN.
func (t TradeInfo) Price() float64 {
	return float64(t.QuoteAmount) / float64(t.BaseAmount)
}
