package usage

import "context"

// Repository persists usage records
type Repository interface {
	// Create inserts the record. A record with the same feature and
	// correlation id already present returns ErrAlreadyExists and writes nothing.
	Create(ctx context.Context, record *Record) error
	GetByCorrelation(ctx context.Context, featureID, correlationID string) (*Record, error)
}
