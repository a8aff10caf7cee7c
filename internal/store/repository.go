/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the gateway-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/shieldswap/gateway-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Routing mapping methods. CreateRoutingMapping returns ErrDuplicateReference
	// when the internal reference already has a mapping; the uniqueness constraint
	// at the storage layer is the sole concurrency guard for this invariant.
	CreateRoutingMapping(ctx context.Context, mapping *domain.RoutingMapping) error
	FindRoutingMappingByReference(ctx context.Context, internalReference string) (*domain.RoutingMapping, error)

	// Transaction record methods. Status transitions are monotonic: the Mark*
	// methods only apply while the record is still pending and report whether
	// a row was actually updated.
	CreateTransactionRecord(ctx context.Context, record *domain.TransactionRecord) error
	FindTransactionByReference(ctx context.Context, internalReference string) (*domain.TransactionRecord, error)
	MarkTransactionConfirmed(ctx context.Context, internalReference string) (bool, error)
	MarkTransactionFailed(ctx context.Context, internalReference string, errorMessage string) (bool, error)

	// FindStalePendingReferences returns references of pending transactions not
	// updated since the cutoff, for the background reconciliation sweep.
	FindStalePendingReferences(ctx context.Context, updatedBefore time.Time, limit int) ([]string, error)
}
