package domain

// AssetMetadata is on-chain token metadata.
// Corresponds to the tokens table in PostgreSQL.
type AssetMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// Token is a known mint with optional metadata.
type Token struct {
	Mint     string
	Metadata *AssetMetadata // nil when the mint was seen but metadata is unknown
}
