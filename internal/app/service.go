/**
 * @description
 * This file contains the core business logic for the gateway-service. The `Service`
 * struct is the transaction coordinator: it validates a transfer request, routes
 * the create call through the outbound queue, cross-validates the upstream
 * response, and persists the routing mapping plus the local transaction record.
 *
 * Key features:
 * - Orchestrates the Validating -> Submitting -> Routed state progression.
 * - Cross-validates upstream responses before anything is trusted or persisted.
 * - Persists the routing mapping first: its uniqueness constraint is the
 *   idempotency guard, and it alone is sufficient to resume status tracking.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For internal reference generation.
 * - github.com/shopspring/decimal: Amount arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/exchangeclient: For upstream communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shieldswap/gateway-service/internal/domain"
	"github.com/shieldswap/gateway-service/internal/store"
	"github.com/shieldswap/gateway-service/pkg/exchangeclient"
	"github.com/shopspring/decimal"
)

// ExchangeAPI is the slice of the upstream client the coordinator needs.
type ExchangeAPI interface {
	CreateTransaction(ctx context.Context, req exchangeclient.CreateTransactionRequest) (*exchangeclient.CreateTransactionResponse, error)
	GetTransactionStatus(ctx context.Context, upstreamID string) (*exchangeclient.TransactionStatusResponse, error)
}

// Service provides the core business logic for routing transfers.
type Service struct {
	repo      store.Repository
	exchange  ExchangeAPI
	queue     *OutboundQueue
	validator domain.AddressValidator
}

// NewService creates a new gateway service instance.
func NewService(repo store.Repository, exchange ExchangeAPI, queue *OutboundQueue, validator domain.AddressValidator) *Service {
	return &Service{
		repo:      repo,
		exchange:  exchange,
		queue:     queue,
		validator: validator,
	}
}

// newInternalReference generates the opaque identity a client holds for a
// transfer. Random UUIDv4, never sequential: references must be unguessable.
func newInternalReference() string {
	return "gw_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CreateTransfer runs the full coordination state machine for one transfer
// request. Each submission gets a fresh reference and a fresh upstream
// transaction; the upstream has no idempotency keys, so duplicate-submission
// protection by content is deliberately not attempted here. What this method
// does guarantee is that one internal reference never maps to more than one
// upstream transaction.
func (s *Service) CreateTransfer(ctx context.Context, req domain.CreateTransferRequest) (*domain.CreateTransferResponse, error) {
	// Validating: fail fast, no upstream call on any validation error.
	kind := strings.ToLower(strings.TrimSpace(req.Type))
	if kind == "" {
		kind = domain.TransferKindTransfer
	}
	if kind != domain.TransferKindTransfer && kind != domain.TransferKindShield && kind != domain.TransferKindUnshield {
		return nil, ErrInvalidTransferKind
	}

	asset, err := domain.LookupAsset(req.Currency, req.Network)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(asset.Network, req.RecipientAddress); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidTransferAmount
	}
	if amount.LessThan(asset.MinimumAmount) {
		return nil, ErrAmountBelowMinimum
	}

	fromCurrency, toCurrency, err := asset.RouteCurrencies(kind)
	if err != nil {
		return nil, ErrInvalidTransferKind
	}

	// Submitting: fresh reference, create call admitted at normal priority.
	reference := newInternalReference()
	recipient := strings.TrimSpace(req.RecipientAddress)

	createReq := exchangeclient.CreateTransactionRequest{
		FromCurrency:       fromCurrency,
		ToCurrency:         toCurrency,
		FromNetwork:        asset.Network,
		ToNetwork:          asset.Network,
		FromAmount:         amount.String(),
		DestinationAddress: recipient,
		Flow:               "standard",
	}

	raw, err := s.queue.Enqueue(ctx, OperationCreate, PriorityCreate, func(callCtx context.Context) (interface{}, error) {
		return s.exchange.CreateTransaction(callCtx, createReq)
	})
	if err != nil {
		var apiErr *exchangeclient.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, apiErr.Message)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	createResp, ok := raw.(*exchangeclient.CreateTransactionResponse)
	if !ok || createResp == nil {
		return nil, fmt.Errorf("%w: malformed create result", ErrUpstreamUnavailable)
	}

	// Routed: the response is cross-validated before anything is trusted. A
	// tampered or buggy upstream must not be able to silently redirect funds.
	if createResp.PayoutAddress != recipient {
		log.Printf("level=error component=coordinator reference=%s msg=\"payout address mismatch; nothing persisted\"", reference)
		return nil, ErrResponseIntegrity
	}
	if err := s.validator.Validate(asset.Network, createResp.PayinAddress); err != nil {
		log.Printf("level=error component=coordinator reference=%s msg=\"payin address failed address-family check; nothing persisted\" err=%v", reference, err)
		return nil, ErrResponseIntegrity
	}

	// Mapping first: its uniqueness constraint is the idempotency guard.
	mapping := &domain.RoutingMapping{
		InternalReference:     reference,
		UpstreamTransactionID: createResp.ID,
	}
	if err := s.repo.CreateRoutingMapping(ctx, mapping); err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			// Reference generation is random; a collision here is a logic
			// error, not a retryable condition.
			log.Printf("level=error component=coordinator reference=%s msg=\"reference collision on mapping insert\"", reference)
		}
		return nil, fmt.Errorf("failed to persist routing mapping: %w", err)
	}

	record := &domain.TransactionRecord{
		ID:                uuid.New(),
		InternalReference: reference,
		Type:              kind,
		RequestedAmount:   amount,
		Currency:          asset.Currency,
		Network:           asset.Network,
		RecipientAddress:  recipient,
		DepositAddress:    createResp.PayinAddress,
		Status:            domain.StatusPending,
	}
	if err := s.repo.CreateTransactionRecord(ctx, record); err != nil {
		// Not fatal to the client: the mapping already exists and the upstream
		// transaction is the authoritative state, so status tracking can resume.
		log.Printf("level=error component=coordinator reference=%s msg=\"transaction record write failed after mapping commit\" err=%v", reference, err)
	}

	log.Printf("level=info component=coordinator reference=%s kind=%s currency=%s network=%s msg=\"transfer routed\"", reference, kind, asset.Currency, asset.Network)

	return &domain.CreateTransferResponse{
		InternalReference: reference,
		DepositAddress:    createResp.PayinAddress,
		RequestedAmount:   amount.String(),
		Currency:          asset.Currency,
		Network:           asset.Network,
	}, nil
}
