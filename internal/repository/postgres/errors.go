package postgres

import (
	"database/sql"
	"errors"

	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/lib/pq"
)

const pqUniqueViolation = pq.ErrorCode("23505")

// errNoRows reports an UPDATE or DELETE that matched nothing
var errNoRows = sql.ErrNoRows

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// mapError converts driver errors into the error taxonomy. entity names the
// record type in hints.
func mapError(err error, entity, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			Mark(ierr.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return ierr.WithError(err).
			WithHintf("%s already exists", entity).
			Mark(ierr.ErrAlreadyExists)
	}
	return ierr.WithError(err).
		WithMessagef("failed to %s %s", op, entity).
		WithHintf("Failed to %s %s", op, entity).
		Mark(ierr.ErrDatabase)
}

func versionConflict(entity, id string) error {
	return ierr.NewErrorf("%s %s was modified concurrently", entity, id).
		WithHintf("%s was modified by another request, reload and retry", entity).
		WithReportableDetails(map[string]any{"id": id}).
		Mark(ierr.ErrVersionConflict)
}
