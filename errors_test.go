package auth_test

import (
	"errors"
	"fmt"
	"testing"

	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPredicates(t *testing.T) {
	assert.True(t, auth.IsTokenExpiredError(auth.ErrTokenExpired))
	assert.True(t, auth.IsNoCredential(auth.ErrNoCredential))
	assert.True(t, auth.IsStaleResetResult(auth.ErrStaleResetResult))
	assert.True(t, auth.IsUnparsable(auth.ErrTokenUnparsable))

	assert.False(t, auth.IsTokenExpiredError(nil))
	assert.False(t, auth.IsUnparsable(errors.New("token is unparsable")))
	assert.False(t, auth.IsNoCredential(auth.ErrTokenExpired))
}

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load session: %w", auth.ErrNoCredential)
	assert.True(t, auth.IsNoCredential(wrapped))
}

func TestUnparsableErrorCarriesReason(t *testing.T) {
	_, err := auth.DecodeToken("single")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
	assert.Equal(t, auth.TextCodeTokenUnparsable, richErr.TextCode)
	assert.NotEmpty(t, richErr.Metadata["reason"])

	// the shared sentinel is never mutated
	assert.Empty(t, auth.ErrTokenUnparsable.Metadata["reason"])
}

func TestSentinelCategories(t *testing.T) {
	tests := []struct {
		err      *goerrors.Error
		category goerrors.Category
	}{
		{err: auth.ErrTokenExpired, category: goerrors.CategoryAuth},
		{err: auth.ErrNoCredential, category: goerrors.CategoryNotFound},
		{err: auth.ErrInvalidResetTransition, category: goerrors.CategoryValidation},
		{err: auth.ErrStaleResetResult, category: goerrors.CategoryConflict},
		{err: auth.ErrResetInFlight, category: goerrors.CategoryConflict},
	}

	for _, tt := range tests {
		t.Run(tt.err.TextCode, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
		})
	}
}
