package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

// SQLSTATE codes that mean another transaction won a lock race.
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeLockNotAvailable     pq.ErrorCode = "55P03"
)

// IsWriteConflict reports whether err is a retryable lock conflict.
func IsWriteConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// classifyWriteError tags lock conflicts with store.ErrWriteConflict and keeps
// the driver error in the chain.
func classifyWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsWriteConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, store.ErrWriteConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
