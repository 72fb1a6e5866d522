package solana

import "context"

// AccountReader reads raw account data over Solana RPC.
type AccountReader interface {
	// GetAccountInfo returns the account or nil if it does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// AccountInfo is an account as returned by getAccountInfo, with Data already
// decoded from base64.
type AccountInfo struct {
	Lamports uint64
	Owner    string
	Data     []byte
	Slot     int64 // context slot of the read
}
