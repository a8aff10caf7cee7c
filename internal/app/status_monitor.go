/**
 * @description
 * This file implements the status monitor: it translates the upstream
 * exchange's fine-grained lifecycle vocabulary into the gateway's coarse,
 * stable vocabulary, and persists terminal outcomes exactly once.
 *
 * Status lookups are enqueued at elevated priority because users actively
 * watching a transaction should not wait behind new submissions. Lookups for
 * records that already reached a terminal status short-circuit locally without
 * touching the upstream at all.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/exchangeclient, pkg/rabbitmq: Upstream communication and events.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shieldswap/gateway-service/internal/domain"
	"github.com/shieldswap/gateway-service/internal/store"
	"github.com/shieldswap/gateway-service/pkg/exchangeclient"
	"github.com/shieldswap/gateway-service/pkg/rabbitmq"
)

const settlementHashFragmentLen = 12

// StatusMonitor normalizes upstream status for callers and settles terminal
// outcomes into the transaction records.
type StatusMonitor struct {
	repo     store.Repository
	exchange ExchangeAPI
	queue    *OutboundQueue
	events   rabbitmq.Publisher
}

// NewStatusMonitor creates a status monitor. The events publisher may be nil;
// terminal-event publication is best-effort.
func NewStatusMonitor(repo store.Repository, exchange ExchangeAPI, queue *OutboundQueue, events rabbitmq.Publisher) *StatusMonitor {
	return &StatusMonitor{
		repo:     repo,
		exchange: exchange,
		queue:    queue,
		events:   events,
	}
}

// pendingView is the safe answer whenever the upstream cannot currently be
// consulted: unknown reference, propagation delay right after creation, or a
// transient upstream error. Callers polling a fresh transfer must see a
// pending-class status, never an error.
func pendingView() *domain.TransferStatusView {
	return &domain.TransferStatusView{Status: domain.StatusPending}
}

// Poll resolves the current normalized status for an internal reference and
// returns the sanitized projection exposed to untrusted callers.
func (m *StatusMonitor) Poll(ctx context.Context, internalReference string) (*domain.TransferStatusView, error) {
	// Terminal state never reverts; skip the upstream entirely.
	record, err := m.repo.FindTransactionByReference(ctx, internalReference)
	if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}
	if record != nil && domain.IsTerminalStatus(record.Status) {
		return &domain.TransferStatusView{Status: record.Status}, nil
	}

	mapping, err := m.repo.FindRoutingMappingByReference(ctx, internalReference)
	if err != nil {
		if errors.Is(err, store.ErrMappingNotFound) {
			return pendingView(), nil
		}
		return nil, err
	}

	raw, err := m.queue.Enqueue(ctx, OperationStatus, PriorityStatus, func(callCtx context.Context) (interface{}, error) {
		return m.exchange.GetTransactionStatus(callCtx, mapping.UpstreamTransactionID)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
			return nil, err
		}
		// Not yet indexed upstream, or a transient failure after retries: the
		// brief window after creation must not flood users with errors.
		log.Printf("level=warn component=status_monitor reference=%s msg=\"status lookup unavailable; reporting pending\" err=%v", internalReference, err)
		return pendingView(), nil
	}
	statusResp, ok := raw.(*exchangeclient.TransactionStatusResponse)
	if !ok || statusResp == nil {
		return pendingView(), nil
	}

	normalized, recognized := domain.NormalizeUpstreamStatus(statusResp.Status)
	if !recognized {
		log.Printf("level=warn component=status_monitor reference=%s msg=\"unrecognized upstream status; treating as pending\" upstream_status=%q", internalReference, statusResp.Status)
	}

	view := &domain.TransferStatusView{
		Status:            normalized,
		SourceAmount:      statusResp.FromAmount,
		DestinationAmount: statusResp.ToAmount,
	}

	if domain.IsTerminalStatus(normalized) {
		view.SettlementHashFragment = truncateHash(statusResp.PayoutHash)
		m.settle(ctx, internalReference, normalized, statusResp)
	}

	return view, nil
}

// settle persists a terminal outcome. The repository's pending-only guard
// makes the transition happen exactly once no matter how many pollers observe
// the terminal upstream status concurrently.
func (m *StatusMonitor) settle(ctx context.Context, internalReference, normalized string, statusResp *exchangeclient.TransactionStatusResponse) {
	var (
		updated bool
		err     error
	)
	if normalized == domain.StatusConfirmed {
		updated, err = m.repo.MarkTransactionConfirmed(ctx, internalReference)
	} else {
		updated, err = m.repo.MarkTransactionFailed(ctx, internalReference, "upstream reported "+statusResp.Status)
	}
	if err != nil {
		log.Printf("level=error component=status_monitor reference=%s msg=\"terminal status persist failed\" status=%s err=%v", internalReference, normalized, err)
		return
	}
	if !updated {
		// Either another poller already settled it, or the record write was
		// lost at creation time; the mapping alone keeps tracking alive.
		return
	}

	log.Printf("level=info component=status_monitor reference=%s status=%s msg=\"transfer settled\"", internalReference, normalized)

	if m.events != nil {
		event := domain.TransferStatusEvent{
			InternalReference: internalReference,
			Status:            normalized,
			SourceAmount:      statusResp.FromAmount,
			DestinationAmount: statusResp.ToAmount,
			Timestamp:         time.Now().UTC(),
		}
		if err := m.events.Publish(ctx, "gateway.events", "transfer.status."+normalized, event); err != nil {
			log.Printf("level=warn component=status_monitor reference=%s msg=\"terminal event publish failed\" err=%v", internalReference, err)
		}
	}
}

// SweepPending re-polls stale pending transactions so terminal outcomes land
// even when no client is actively watching. Invoked on a schedule from main.
func (m *StatusMonitor) SweepPending(ctx context.Context, olderThan time.Duration, limit int) {
	references, err := m.repo.FindStalePendingReferences(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		log.Printf("level=warn component=status_monitor msg=\"pending sweep query failed\" err=%v", err)
		return
	}
	for _, reference := range references {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.Poll(ctx, reference); err != nil {
			log.Printf("level=warn component=status_monitor reference=%s msg=\"sweep poll failed\" err=%v", reference, err)
		}
	}
	if len(references) > 0 {
		log.Printf("level=info component=status_monitor msg=\"pending sweep complete\" polled=%d", len(references))
	}
}

func truncateHash(hash string) string {
	if hash == "" {
		return ""
	}
	if len(hash) <= settlementHashFragmentLen {
		return hash
	}
	return hash[:settlementHashFragmentLen]
}
