package pumpfun

import (
	"context"
	"fmt"
	"strings"

	"pump-candles/internal/domain"
	"pump-candles/internal/solana"
)

// MetadataProgramID is the Metaplex token metadata program.
const MetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

var metadataProgram = solana.MustParsePublicKey(MetadataProgramID)

// MetadataAddress derives the Metaplex metadata account of a mint.
func MetadataAddress(mint string) (solana.PublicKey, error) {
	mintKey, err := solana.ParsePublicKey(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	pda, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), metadataProgram[:], mintKey[:]},
		metadataProgram,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive metadata address: %w", err)
	}
	return pda, nil
}

// DecodeMetadata reads name, symbol and uri from a Metaplex metadata account.
// The strings are fixed-size on chain and padded with NUL bytes.
func DecodeMetadata(data []byte) (*domain.AssetMetadata, error) {
	r := newReader(data)
	r.u8()     // key
	r.pubkey() // update authority
	r.pubkey() // mint
	meta := &domain.AssetMetadata{
		Name:   trimPadding(r.string()),
		Symbol: trimPadding(r.string()),
		URI:    trimPadding(r.string()),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode metadata account: %w", r.err)
	}
	return meta, nil
}

func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}

// MetadataFetcher reads token metadata over RPC.
type MetadataFetcher struct {
	rpc solana.AccountReader
}

// NewMetadataFetcher creates a fetcher backed by rpc.
func NewMetadataFetcher(rpc solana.AccountReader) *MetadataFetcher {
	return &MetadataFetcher{rpc: rpc}
}

// Fetch returns the metadata of mint, or nil when the account does not exist.
func (f *MetadataFetcher) Fetch(ctx context.Context, mint string) (*domain.AssetMetadata, error) {
	addr, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}

	info, err := f.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, fmt.Errorf("get metadata account %s: %w", addr, err)
	}
	if info == nil {
		return nil, nil
	}

	return DecodeMetadata(info.Data)
}
