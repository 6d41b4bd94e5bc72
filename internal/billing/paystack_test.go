package billing_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink/billing/internal/billing"
)

func newPaystack(t *testing.T, handler http.HandlerFunc) *billing.PaystackProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := billing.NewPaystackProvider(billing.PaystackConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestPaystackInitialize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	req := billing.InitializeRequest{
		Reference:   "sub_abc",
		Amount:      250000,
		Currency:    "NGN",
		Email:       "ada@example.com",
		CallbackURL: "https://app.example.com/subscriptions/callback",
		Metadata:    map[string]string{"user_id": "u1"},
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/transaction/initialize", r.URL.Path)
			assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(250000), body["amount"])
			assert.Equal(t, "sub_abc", body["reference"])
			assert.Equal(t, "https://app.example.com/subscriptions/callback", body["callback_url"])

			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  true,
				"message": "Authorization URL created",
				"data": map[string]any{
					"authorization_url": "https://checkout.paystack.com/xyz",
					"access_code":       "xyz",
					"reference":         "sub_abc",
				},
			})
		})

		checkout, err := p.Initialize(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.paystack.com/xyz", checkout.AuthorizationURL)
		assert.Equal(t, "sub_abc", checkout.Reference)
	})

	t.Run("malformed amount rejected locally", func(t *testing.T) {
		t.Parallel()

		p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request should reach the gateway")
		})

		bad := req
		bad.Amount = 0
		_, err := p.Initialize(ctx, bad)
		assert.ErrorIs(t, err, billing.ErrInvalidChargeRequest)

		bad = req
		bad.Currency = "NAIRA"
		_, err = p.Initialize(ctx, bad)
		assert.ErrorIs(t, err, billing.ErrInvalidChargeRequest)
	})

	t.Run("provider 4xx maps to invalid request", func(t *testing.T) {
		t.Parallel()

		p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid currency"})
		})

		_, err := p.Initialize(ctx, req)
		require.ErrorIs(t, err, billing.ErrInvalidChargeRequest)
		assert.Contains(t, err.Error(), "Invalid currency")
	})

	t.Run("provider 5xx maps to gateway unavailable", func(t *testing.T) {
		t.Parallel()

		p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := p.Initialize(ctx, req)
		assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
	})

	t.Run("unreachable provider maps to gateway unavailable", func(t *testing.T) {
		t.Parallel()

		p, err := billing.NewPaystackProvider(billing.PaystackConfig{
			SecretKey: "sk_test_secret",
			BaseURL:   "http://127.0.0.1:1", // nothing listens here
			Timeout:   200 * time.Millisecond,
		})
		require.NoError(t, err)

		_, err = p.Initialize(ctx, req)
		assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
	})
}

func TestPaystackVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success settlement", func(t *testing.T) {
		t.Parallel()

		p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transaction/verify/sub_abc", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data": map[string]any{
					"status":   "success",
					"amount":   250000,
					"currency": "NGN",
					"paid_at":  "2026-08-30T11:22:33Z",
				},
			})
		})

		result, err := p.Verify(ctx, "sub_abc")
		require.NoError(t, err)
		assert.Equal(t, billing.SettlementSuccess, result.Status)
		assert.Equal(t, int64(250000), result.AmountPaid)
		require.NotNil(t, result.PaidAt)
		assert.Equal(t, 2026, result.PaidAt.Year())
	})

	t.Run("status normalization", func(t *testing.T) {
		t.Parallel()

		for provider, want := range map[string]billing.SettlementStatus{
			"failed":     billing.SettlementFailed,
			"reversed":   billing.SettlementFailed,
			"abandoned":  billing.SettlementAbandoned,
			"ongoing":    billing.SettlementPending,
			"processing": billing.SettlementPending,
			"queued":     billing.SettlementPending,
		} {
			provider, want := provider, want
			t.Run(provider, func(t *testing.T) {
				t.Parallel()

				p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
					_ = json.NewEncoder(w).Encode(map[string]any{
						"status": true,
						"data":   map[string]any{"status": provider, "amount": 0, "currency": "NGN"},
					})
				})

				result, err := p.Verify(ctx, "sub_abc")
				require.NoError(t, err)
				assert.Equal(t, want, result.Status)
			})
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		t.Parallel()

		p := newPaystack(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Transaction reference not found"})
		})

		_, err := p.Verify(ctx, "sub_nope")
		assert.ErrorIs(t, err, billing.ErrReferenceNotFound)
	})
}

func TestPaystackWebhookSignature(t *testing.T) {
	t.Parallel()

	p, err := billing.NewPaystackProvider(billing.PaystackConfig{SecretKey: "sk_test_secret"})
	require.NoError(t, err)

	payload := []byte(`{"event":"charge.success","data":{"reference":"sub_abc"}}`)

	sign := func(secret string) string {
		mac := hmac.New(sha512.New, []byte(secret))
		mac.Write(payload)
		return hex.EncodeToString(mac.Sum(nil))
	}

	assert.NoError(t, p.VerifyWebhookSignature(payload, sign("sk_test_secret")))
	assert.ErrorIs(t, p.VerifyWebhookSignature(payload, sign("sk_wrong")), billing.ErrInvalidSignature)
	assert.ErrorIs(t, p.VerifyWebhookSignature(payload, ""), billing.ErrInvalidSignature)
	assert.ErrorIs(t, p.VerifyWebhookSignature(nil, sign("sk_test_secret")), billing.ErrInvalidSignature)
}
