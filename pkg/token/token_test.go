package token_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink/billing/pkg/token"
)

type claims struct {
	UserID uuid.UUID `json:"uid"`
	Nonce  string    `json:"n"`
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	in := claims{UserID: uuid.New(), Nonce: "abc123"}

	tok, err := token.Generate(in, "secret")
	require.NoError(t, err)

	out, err := token.Parse[claims](tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tok, err := token.Generate(claims{UserID: uuid.New()}, "secret")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		_, err := token.Parse[claims](tok, "other-secret")
		assert.ErrorIs(t, err, token.ErrSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		payload, sig, _ := strings.Cut(tok, ".")
		forged, err := token.Generate(claims{UserID: uuid.New()}, "attacker")
		require.NoError(t, err)
		forgedPayload, _, _ := strings.Cut(forged, ".")
		_ = payload

		_, err = token.Parse[claims](forgedPayload+"."+sig, "secret")
		assert.ErrorIs(t, err, token.ErrSignatureInvalid)
	})

	t.Run("missing separator", func(t *testing.T) {
		t.Parallel()
		_, err := token.Parse[claims]("notatoken", "secret")
		assert.ErrorIs(t, err, token.ErrMalformed)
	})

	t.Run("invalid encoding", func(t *testing.T) {
		t.Parallel()
		_, err := token.Parse[claims]("!!.!!", "secret")
		assert.ErrorIs(t, err, token.ErrMalformed)
	})
}
