/**
 * @description
 * This file defines the core domain models for the gateway-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and upstream
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are carried as `decimal.Decimal` to avoid floating-point
 *   inaccuracies with asset quantities.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer kinds supported by the gateway.
const (
	TransferKindTransfer = "transfer"
	TransferKindShield   = "shield"
	TransferKindUnshield = "unshield"
)

// Coarse transaction statuses owned by this service. These are distinct from
// the upstream exchange's finer vocabulary and never revert once terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Upstream exchange lifecycle statuses, ordered by progress.
const (
	UpstreamStatusWaiting    = "waiting"
	UpstreamStatusConfirming = "confirming"
	UpstreamStatusExchanging = "exchanging"
	UpstreamStatusSending    = "sending"
	UpstreamStatusFinished   = "finished"
	UpstreamStatusFailed     = "failed"
	UpstreamStatusRefunded   = "refunded"
	UpstreamStatusExpired    = "expired"
)

// upstreamStatusMap translates the upstream vocabulary into our own.
var upstreamStatusMap = map[string]string{
	UpstreamStatusWaiting:    StatusPending,
	UpstreamStatusConfirming: StatusPending,
	UpstreamStatusExchanging: StatusPending,
	UpstreamStatusSending:    StatusPending,
	UpstreamStatusFinished:   StatusConfirmed,
	UpstreamStatusFailed:     StatusFailed,
	UpstreamStatusRefunded:   StatusFailed,
	UpstreamStatusExpired:    StatusFailed,
}

// NormalizeUpstreamStatus maps an upstream status string to the gateway's
// coarse vocabulary. The second return value reports whether the upstream
// value was recognized at all; callers treat unrecognized values as pending.
func NormalizeUpstreamStatus(upstream string) (string, bool) {
	normalized, ok := upstreamStatusMap[upstream]
	if !ok {
		return StatusPending, false
	}
	return normalized, true
}

// IsTerminalStatus reports whether a normalized status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return status == StatusConfirmed || status == StatusFailed
}

// RoutingMapping is the durable association between the internal reference a
// client holds and the transaction id assigned by the upstream exchange.
// This struct maps directly to the `routing_mappings` table, whose uniqueness
// constraint on internal_reference is the idempotency guard for creation.
type RoutingMapping struct {
	InternalReference     string    `json:"internal_reference"`
	UpstreamTransactionID string    `json:"upstream_transaction_id"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TransactionRecord is the gateway's own ledger row for a routed transfer.
// This struct maps directly to the `transactions` table.
type TransactionRecord struct {
	ID                uuid.UUID       `json:"id"`
	InternalReference string          `json:"internal_reference"`
	Type              string          `json:"type"` // 'transfer', 'shield', 'unshield'
	RequestedAmount   decimal.Decimal `json:"requested_amount"`
	Currency          string          `json:"currency"`
	Network           string          `json:"network"`
	RecipientAddress  string          `json:"recipient_address"`
	DepositAddress    string          `json:"deposit_address"`
	Status            string          `json:"status"` // 'pending', 'confirmed', 'failed'
	ErrorMessage      *string         `json:"error_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CreateTransferRequest is the DTO for incoming transfer-creation API requests.
type CreateTransferRequest struct {
	RecipientAddress string `json:"recipient_address"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Network          string `json:"network"`
	Type             string `json:"type,omitempty"` // defaults to 'transfer'
}

// CreateTransferResponse is sent back to the client immediately after a
// transfer has been routed through the upstream exchange. The deposit address
// is the address the client must fund for the transfer to proceed.
type CreateTransferResponse struct {
	InternalReference string `json:"internal_reference"`
	DepositAddress    string `json:"deposit_address"`
	RequestedAmount   string `json:"requested_amount"`
	Currency          string `json:"currency"`
	Network           string `json:"network"`
}

// TransferStatusView is the sanitized status projection exposed to callers.
// Raw upstream identifiers and full settlement hashes are deliberately absent;
// only a truncated hash fragment is surfaced once the transfer is terminal.
type TransferStatusView struct {
	Status                 string `json:"status"`
	SourceAmount           string `json:"source_amount,omitempty"`
	DestinationAmount      string `json:"destination_amount,omitempty"`
	SettlementHashFragment string `json:"settlement_hash_fragment,omitempty"`
}

// TransferStatusEvent is the payload published to RabbitMQ when a transfer
// reaches a terminal status.
type TransferStatusEvent struct {
	InternalReference string    `json:"internal_reference"`
	Status            string    `json:"status"`
	SourceAmount      string    `json:"source_amount,omitempty"`
	DestinationAmount string    `json:"destination_amount,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
