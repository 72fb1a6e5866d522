package pumpfun

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
	"pump-candles/internal/solana"
)

// ProgramID is the pump.fun bonding curve program.
const ProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

const programDataPrefix = "Program data: "

// Event type labels.
const (
	EventTypeCreate = "create"
	EventTypeTrade  = "trade"
)

var (
	createDiscriminator = eventDiscriminator("CreateEvent")
	tradeDiscriminator  = eventDiscriminator("TradeEvent")
)

// eventDiscriminator is the Anchor event tag: sha256("event:<Name>")[:8].
func eventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Decoder extracts pump.fun events from transaction logs.
type Decoder struct{}

// NewDecoder creates a decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode returns the Create and Trade events found in a log notification,
// in log order. Failed transactions yield nothing. Lines that fail to decode
// are skipped and reported in the joined error.
func (d *Decoder) Decode(notif solana.LogNotification) ([]domain.Event, error) {
	if notif.Failed() {
		return nil, nil
	}

	var events []domain.Event
	var errs []error
	for _, line := range notif.Logs {
		payload, ok := strings.CutPrefix(line, programDataPrefix)
		if !ok {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			continue // not every program emits base64 data
		}
		event, err := decodeEvent(data)
		if err != nil {
			observability.RecordDecodeError()
			errs = append(errs, fmt.Errorf("decode %s: %w", notif.Signature, err))
			continue
		}
		if event == nil {
			continue
		}

		switch e := event.(type) {
		case *domain.CreateEvent:
			e.Slot, e.Signature = notif.Slot, notif.Signature
			observability.RecordEventDecoded(EventTypeCreate)
		case *domain.TradeEvent:
			e.Slot, e.Signature = notif.Slot, notif.Signature
			observability.RecordEventDecoded(EventTypeTrade)
		}
		events = append(events, event)
	}
	if notif.Slot > 0 && len(events) > 0 {
		observability.UpdateHighestSlot(notif.Slot)
	}
	return events, errors.Join(errs...)
}

// decodeEvent returns nil for events of other types.
func decodeEvent(data []byte) (domain.Event, error) {
	if len(data) < 8 {
		return nil, nil
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	r := newReader(data[8:])

	switch disc {
	case createDiscriminator:
		return decodeCreate(r)
	case tradeDiscriminator:
		return decodeTrade(r)
	default:
		return nil, nil
	}
}

// decodeCreate reads the leading CreateEvent fields. Newer program versions
// append fields, which are ignored.
func decodeCreate(r *reader) (*domain.CreateEvent, error) {
	meta := &domain.AssetMetadata{
		Name:   r.string(),
		Symbol: r.string(),
		URI:    r.string(),
	}
	e := &domain.CreateEvent{
		Mint:         r.pubkey(),
		BondingCurve: r.pubkey(),
		User:         r.pubkey(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("create event: %w", r.err)
	}
	e.Metadata = meta
	return e, nil
}

func decodeTrade(r *reader) (*domain.TradeEvent, error) {
	e := &domain.TradeEvent{
		Mint:        r.pubkey(),
		SolAmount:   r.u64(),
		TokenAmount: r.u64(),
		IsBuy:       r.bool(),
		User:        r.pubkey(),
		Timestamp:   r.i64(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("trade event: %w", r.err)
	}
	return e, nil
}
