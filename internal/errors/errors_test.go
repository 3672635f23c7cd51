package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassification(t *testing.T) {
	cases := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false},
		{ErrCodeNotFound, CategoryStorage, false},
		{ErrCodeTimeout, CategoryQuery, true},
		{ErrCodeMissingVector, CategoryValidation, false},
		{ErrCodeIndexInconsistency, CategoryIndex, true},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := New(tc.code, "boom", nil)
			assert.Equal(t, tc.category, err.Category)
			assert.Equal(t, tc.retryable, err.Retryable)
			assert.Contains(t, err.Error(), tc.code)
		})
	}
}

func TestHasCode_WalksWrappedChain(t *testing.T) {
	// Given: a coded error buried under fmt wrapping
	inner := NotFound("record minilm/doc1")
	wrapped := fmt.Errorf("upsert doc1: %w", inner)

	assert.True(t, HasCode(wrapped, ErrCodeNotFound))
	assert.False(t, HasCode(wrapped, ErrCodeTimeout))
	assert.False(t, HasCode(nil, ErrCodeNotFound))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := Timeout("query deadline", nil)
	b := Timeout("other deadline", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, NotFound("x")))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeStoreCorrupt, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Equal(t, SeverityFatal, err.Severity)

	assert.Nil(t, Wrap(ErrCodeStoreCorrupt, nil))
}

func TestWithDetail_Chains(t *testing.T) {
	err := IndexInconsistency("repair incomplete", nil).
		WithDetail("failed", "3").
		WithDetail("model_tag", "minilm")

	assert.Equal(t, "3", err.Details["failed"])
	assert.Equal(t, "minilm", err.Details["model_tag"])
}
