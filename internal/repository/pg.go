package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres condition codes for transactions that lost a lock race.
const (
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// IsRetryable reports whether err is a transient transaction failure, a
// deadlock or serialization error, that is safe to retry from the top.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pgDeadlockDetected || pqErr.Code == pgSerializationFailure
}
