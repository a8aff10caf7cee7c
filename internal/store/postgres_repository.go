/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * holding routing mappings and transaction records.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shieldswap/gateway-service/internal/domain"
)

var (
	ErrDuplicateReference  = errors.New("internal reference already exists")
	ErrMappingNotFound     = errors.New("routing mapping not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateRoutingMapping inserts the reference-to-upstream-id association.
// A unique violation on internal_reference means a racing create already
// committed a mapping for this reference; callers must not re-create.
func (r *PostgresRepository) CreateRoutingMapping(ctx context.Context, mapping *domain.RoutingMapping) error {
	query := `
		INSERT INTO routing_mappings (internal_reference, upstream_transaction_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, mapping.InternalReference, mapping.UpstreamTransactionID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// FindRoutingMappingByReference resolves the upstream transaction id for an internal reference.
func (r *PostgresRepository) FindRoutingMappingByReference(ctx context.Context, internalReference string) (*domain.RoutingMapping, error) {
	var mapping domain.RoutingMapping
	query := `
		SELECT internal_reference, upstream_transaction_id, created_at, updated_at
		FROM routing_mappings
		WHERE internal_reference = $1
	`
	err := r.db.QueryRow(ctx, query, internalReference).Scan(
		&mapping.InternalReference,
		&mapping.UpstreamTransactionID,
		&mapping.CreatedAt,
		&mapping.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

// CreateTransactionRecord inserts the local ledger row for a routed transfer.
func (r *PostgresRepository) CreateTransactionRecord(ctx context.Context, record *domain.TransactionRecord) error {
	query := `
		INSERT INTO transactions
			(id, internal_reference, type, requested_amount, currency, network,
			 recipient_address, deposit_address, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.InternalReference,
		record.Type,
		record.RequestedAmount,
		record.Currency,
		record.Network,
		record.RecipientAddress,
		record.DepositAddress,
		record.Status,
		record.ErrorMessage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// FindTransactionByReference retrieves the transaction record for an internal reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, internalReference string) (*domain.TransactionRecord, error) {
	var record domain.TransactionRecord
	query := `
		SELECT id, internal_reference, type, requested_amount, currency, network,
		       recipient_address, deposit_address, status, error_message, created_at, updated_at
		FROM transactions
		WHERE internal_reference = $1
	`
	err := r.db.QueryRow(ctx, query, internalReference).Scan(
		&record.ID,
		&record.InternalReference,
		&record.Type,
		&record.RequestedAmount,
		&record.Currency,
		&record.Network,
		&record.RecipientAddress,
		&record.DepositAddress,
		&record.Status,
		&record.ErrorMessage,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &record, nil
}

// MarkTransactionConfirmed transitions a pending record to confirmed. The
// status guard in the WHERE clause enforces terminal monotonicity: a record
// that already reached a terminal status is never rewritten, and the boolean
// return tells the caller whether this invocation performed the transition.
func (r *PostgresRepository) MarkTransactionConfirmed(ctx context.Context, internalReference string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = 'confirmed', updated_at = NOW()
		WHERE internal_reference = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, internalReference)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkTransactionFailed transitions a pending record to failed with a reason.
func (r *PostgresRepository) MarkTransactionFailed(ctx context.Context, internalReference string, errorMessage string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE internal_reference = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, internalReference, errorMessage)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// FindStalePendingReferences lists pending transactions that have not been
// touched since the cutoff, oldest first, for the reconciliation sweep.
func (r *PostgresRepository) FindStalePendingReferences(ctx context.Context, updatedBefore time.Time, limit int) ([]string, error) {
	query := `
		SELECT internal_reference
		FROM transactions
		WHERE status = 'pending' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var references []string
	for rows.Next() {
		var reference string
		if err := rows.Scan(&reference); err != nil {
			return nil, err
		}
		references = append(references, reference)
	}
	return references, rows.Err()
}
