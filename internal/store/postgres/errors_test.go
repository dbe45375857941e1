package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, conflict: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, conflict: true},
		{name: "lock not available", err: &pq.Error{Code: "55P03"}, conflict: true},
		{name: "wrapped deadlock", err: fmt.Errorf("exec: %w", &pq.Error{Code: "40P01"}), conflict: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, conflict: false},
		{name: "plain error", err: errors.New("connection reset"), conflict: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyWriteError("apply", tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, store.ErrWriteConflict))
			assert.ErrorIs(t, got, tt.err)
			assert.Contains(t, got.Error(), "apply")
		})
	}
}

func TestClassifyWriteError_Nil(t *testing.T) {
	assert.NoError(t, classifyWriteError("apply", nil))
}
