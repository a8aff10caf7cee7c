package app

import "errors"

// Typed errors surfaced by the coordinator. Validation and integrity errors
// are never retried and always carry a stable, user-safe message; transient
// upstream errors are retried inside the outbound queue and only surface here
// after the attempt cap is exhausted.
var (
	ErrInvalidTransferAmount = errors.New("transfer amount is not a valid decimal")
	ErrAmountBelowMinimum    = errors.New("transfer amount is below the minimum for this asset")
	ErrInvalidTransferKind   = errors.New("unknown transfer type")

	// ErrResponseIntegrity means the upstream create response failed
	// cross-validation: the payout address did not match the submitted
	// recipient, or the deposit address failed the expected address-family
	// check. Nothing is persisted when this happens.
	ErrResponseIntegrity = errors.New("upstream response failed integrity validation")

	// ErrUpstreamUnavailable wraps upstream failures after retry exhaustion.
	ErrUpstreamUnavailable = errors.New("upstream exchange unavailable")
)
