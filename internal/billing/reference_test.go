package billing_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink/billing/internal/billing"
)

func TestMintReference(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	ref, err := billing.MintReference(userID, "basic_monthly", "secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "sub_"))

	claims, err := billing.ParseReference(ref, "secret")
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "basic_monthly", claims.PlanID)
	assert.NotEmpty(t, claims.Nonce)
	assert.Positive(t, claims.IssuedAt)
}

func TestReferencesAreUnique(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	seen := make(map[string]struct{})
	for n := 0; n < 100; n++ {
		ref, err := billing.MintReference(userID, "basic_monthly", "secret")
		require.NoError(t, err)
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference minted: %s", ref)
		seen[ref] = struct{}{}
	}
}

func TestParseReferenceRejects(t *testing.T) {
	t.Parallel()

	ref, err := billing.MintReference(uuid.New(), "basic_monthly", "secret")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		_, err := billing.ParseReference(ref, "other")
		assert.ErrorIs(t, err, billing.ErrInvalidReference)
	})

	t.Run("missing prefix", func(t *testing.T) {
		t.Parallel()
		_, err := billing.ParseReference(strings.TrimPrefix(ref, "sub_"), "secret")
		assert.ErrorIs(t, err, billing.ErrInvalidReference)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := billing.ParseReference("sub_not.atoken", "secret")
		assert.ErrorIs(t, err, billing.ErrInvalidReference)
	})
}
