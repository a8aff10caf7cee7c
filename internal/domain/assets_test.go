package domain

import (
	"errors"
	"testing"
)

func TestLookupAsset(t *testing.T) {
	asset, err := LookupAsset("SOL", " sol ")
	if err != nil {
		t.Fatalf("expected case-insensitive lookup to succeed, got %v", err)
	}
	if asset.ShieldedTicker != "xsol" {
		t.Fatalf("expected xsol shielded ticker, got %q", asset.ShieldedTicker)
	}

	if _, err := LookupAsset("doge", "doge"); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
	if _, err := LookupAsset("usdc", "eth"); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected unsupported pair for usdc on eth, got %v", err)
	}
}

func TestRegexAddressValidator(t *testing.T) {
	tests := []struct {
		name    string
		network string
		address string
		wantErr error
	}{
		{
			name:    "valid solana address",
			network: "sol",
			address: "4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM",
		},
		{
			name:    "solana address with excluded base58 characters",
			network: "sol",
			address: "0OIl000000000000000000000000000000000000",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "solana address too short",
			network: "sol",
			address: "abc",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "valid ethereum address",
			network: "eth",
			address: "0x52908400098527886E0F7030069857D2E4169EE7",
		},
		{
			name:    "ethereum address without prefix",
			network: "eth",
			address: "52908400098527886E0F7030069857D2E4169EE7",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "valid bech32 bitcoin address",
			network: "btc",
			address: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		},
		{
			name:    "valid legacy bitcoin address",
			network: "btc",
			address: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2",
		},
		{
			name:    "unknown network",
			network: "doge",
			address: "anything",
			wantErr: ErrUnsupportedAsset,
		},
	}

	validator := NewRegexAddressValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.network, tt.address)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRouteCurrencies(t *testing.T) {
	asset, err := LookupAsset("sol", "sol")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	tests := []struct {
		kind     string
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{kind: TransferKindTransfer, wantFrom: "sol", wantTo: "sol"},
		{kind: TransferKindShield, wantFrom: "sol", wantTo: "xsol"},
		{kind: TransferKindUnshield, wantFrom: "xsol", wantTo: "sol"},
		{kind: "teleport", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			from, to, err := asset.RouteCurrencies(tt.kind)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown kind")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if from != tt.wantFrom || to != tt.wantTo {
				t.Fatalf("expected %s->%s, got %s->%s", tt.wantFrom, tt.wantTo, from, to)
			}
		})
	}
}
