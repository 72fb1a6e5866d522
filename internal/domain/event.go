package domain

// Event is a decoded pump.fun program event.
type Event interface {
	// EventMint returns the token mint the event refers to.
	EventMint() string
}

// CreateEvent is emitted when a token is launched.
type CreateEvent struct {
	Mint         string
	BondingCurve string
	User         string
	Metadata     *AssetMetadata // attached by the program, nil if not decoded
	Slot         int64
	Signature    string
}

// EventMint implements Event.
func (e *CreateEvent) EventMint() string { return e.Mint }

// TradeEvent is emitted for every bonding curve buy or sell.
type TradeEvent struct {
	Mint        string
	SolAmount   uint64
	TokenAmount uint64
	IsBuy       bool
	User        string
	Timestamp   int64 // unix seconds
	Slot        int64
	Signature   string
	Seq         uint64 // assigned by the dispatcher
}

// EventMint implements Event.
func (e *TradeEvent) EventMint() string { return e.Mint }

// TradeInfo converts the event into the aggregation input.
func (e *TradeEvent) TradeInfo() TradeInfo {
	return TradeInfo{
		Mint:        e.Mint,
		BaseAmount:  e.TokenAmount,
		QuoteAmount: e.SolAmount,
		Seq:         e.Seq,
	}
}
