package billing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartlink/billing/pkg/token"
)

// referencePrefix makes references recognizable in the provider dashboard.
const referencePrefix = "sub_"

// ReferenceClaims is the payload embedded in every payment reference.
// The redirect callback arrives outside any authenticated session, so the
// reference itself must carry enough to recover the owning user; the
// signature makes that recovery tamper-proof.
type ReferenceClaims struct {
	UserID   uuid.UUID `json:"uid"`
	PlanID   string    `json:"pid"`
	Nonce    string    `json:"n"`
	IssuedAt int64     `json:"iat"`
}

// MintReference creates a unique signed reference for a checkout attempt.
func MintReference(userID uuid.UUID, planID, secret string) (string, error) {
	nonce := make([]byte, 6)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	tok, err := token.Generate(ReferenceClaims{
		UserID:   userID,
		PlanID:   planID,
		Nonce:    hex.EncodeToString(nonce),
		IssuedAt: time.Now().Unix(),
	}, secret)
	if err != nil {
		return "", err
	}
	return referencePrefix + tok, nil
}

// ParseReference verifies a reference and returns its claims.
func ParseReference(reference, secret string) (ReferenceClaims, error) {
	tok, ok := strings.CutPrefix(reference, referencePrefix)
	if !ok {
		return ReferenceClaims{}, ErrInvalidReference
	}

	claims, err := token.Parse[ReferenceClaims](tok, secret)
	if err != nil {
		return ReferenceClaims{}, errors.Join(ErrInvalidReference, err)
	}
	return claims, nil
}
