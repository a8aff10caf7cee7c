/**
 * @description
 * This file holds the registry of assets the gateway will route, along with
 * address-format validation for each supported network. Validation runs before
 * anything is queued toward the upstream exchange, and the same address-family
 * checks are reused to cross-validate the deposit address the upstream returns.
 */

package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAddress   = errors.New("invalid recipient address for network")
	ErrUnsupportedAsset = errors.New("unsupported currency/network pair")
)

// Asset describes one routable currency on a specific network.
type Asset struct {
	Currency       string
	Network        string
	ShieldedTicker string // upstream ticker for the shielded form of this asset
	MinimumAmount  decimal.Decimal
}

var addressPatterns = map[string]*regexp.Regexp{
	// Base58 without 0, O, I, l; Solana public keys decode to 32 bytes.
	"sol": regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`),
	"eth": regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`),
	"btc": regexp.MustCompile(`^(bc1[0-9a-z]{25,59}|[13][1-9A-HJ-NP-Za-km-z]{25,34})$`),
}

var supportedAssets = map[string]Asset{
	"sol/sol": {Currency: "sol", Network: "sol", ShieldedTicker: "xsol", MinimumAmount: decimal.RequireFromString("0.1")},
	"usdc/sol": {Currency: "usdc", Network: "sol", ShieldedTicker: "xusdc", MinimumAmount: decimal.RequireFromString("1")},
	"eth/eth": {Currency: "eth", Network: "eth", ShieldedTicker: "xeth", MinimumAmount: decimal.RequireFromString("0.005")},
	"btc/btc": {Currency: "btc", Network: "btc", ShieldedTicker: "xbtc", MinimumAmount: decimal.RequireFromString("0.0005")},
}

// LookupAsset resolves a currency/network pair against the registry.
func LookupAsset(currency, network string) (Asset, error) {
	key := strings.ToLower(strings.TrimSpace(currency)) + "/" + strings.ToLower(strings.TrimSpace(network))
	asset, ok := supportedAssets[key]
	if !ok {
		return Asset{}, ErrUnsupportedAsset
	}
	return asset, nil
}

// AddressValidator checks recipient and deposit addresses against the
// address family expected for a network. It is a pure collaborator: no I/O.
type AddressValidator interface {
	Validate(network, address string) error
}

// RegexAddressValidator validates addresses with per-network patterns.
type RegexAddressValidator struct{}

func NewRegexAddressValidator() *RegexAddressValidator {
	return &RegexAddressValidator{}
}

func (v *RegexAddressValidator) Validate(network, address string) error {
	pattern, ok := addressPatterns[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return ErrUnsupportedAsset
	}
	if !pattern.MatchString(strings.TrimSpace(address)) {
		return ErrInvalidAddress
	}
	return nil
}

// RouteCurrencies resolves a transfer kind to the upstream from/to currency
// pair. Plain transfers move the asset as-is; shield converts into the
// shielded ticker and unshield converts back out of it.
func (a Asset) RouteCurrencies(kind string) (fromCurrency, toCurrency string, err error) {
	switch kind {
	case TransferKindTransfer:
		return a.Currency, a.Currency, nil
	case TransferKindShield:
		return a.Currency, a.ShieldedTicker, nil
	case TransferKindUnshield:
		return a.ShieldedTicker, a.Currency, nil
	default:
		return "", "", fmt.Errorf("unknown transfer kind %q", kind)
	}
}
