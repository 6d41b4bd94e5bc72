// Package token produces compact HMAC-signed payload tokens.
//
// A token is base64url(json(payload)) + "." + base64url(sig) where sig is
// the first 8 bytes of HMAC-SHA256 over the JSON payload. The payload is
// readable by anyone holding the token; the signature only proves it was
// minted by a holder of the secret. Do not put secrets in the payload.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMalformed        = errors.New("token: malformed token")
	ErrSignatureInvalid = errors.New("token: signature mismatch")
)

const signatureLen = 8

// Generate signs payload with secret and returns the encoded token.
func Generate[T any](payload T, secret string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	sig := h.Sum(nil)[:signatureLen]

	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Parse verifies the token's signature and decodes the payload into T.
func Parse[T any](tok string, secret string) (T, error) {
	var payload T

	encData, encSig, ok := strings.Cut(tok, ".")
	if !ok {
		return payload, ErrMalformed
	}

	data, err := base64.RawURLEncoding.DecodeString(encData)
	if err != nil {
		return payload, errors.Join(ErrMalformed, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return payload, errors.Join(ErrMalformed, err)
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	want := h.Sum(nil)[:signatureLen]

	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrMalformed, err)
	}
	return payload, nil
}
