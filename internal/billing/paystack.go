package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// PaystackConfig holds credentials and endpoint settings for the Paystack
// gateway.
type PaystackConfig struct {
	SecretKey string        `env:"PAYSTACK_SECRET_KEY,required"`
	BaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	Timeout   time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"20s"`
}

// PaystackProvider implements PaymentProvider against the Paystack REST
// API. Paystack publishes no Go SDK, so this speaks the wire format
// directly. Amounts are already in the minor unit (kobo), matching what
// Paystack expects.
type PaystackProvider struct {
	cfg    PaystackConfig
	client *http.Client
}

// NewPaystackProvider validates cfg and returns a provider.
func NewPaystackProvider(cfg PaystackConfig) (*PaystackProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("paystack secret key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	return &PaystackProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// envelope is Paystack's standard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *PaystackProvider) Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidChargeRequest, req.Amount)
	}
	if len(req.Currency) != 3 {
		return nil, fmt.Errorf("%w: invalid currency %q", ErrInvalidChargeRequest, req.Currency)
	}

	body := map[string]any{
		"amount":       req.Amount,
		"currency":     req.Currency,
		"email":        req.Email,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	if data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: no authorization url in response", ErrGatewayUnavailable)
	}

	return &Checkout{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (p *PaystackProvider) Verify(ctx context.Context, reference string) (*VerificationResult, error) {
	var data struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		PaidAt   string `json:"paid_at"`
	}
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return nil, err
	}

	result := &VerificationResult{
		Reference:  reference,
		Status:     normalizeSettlement(data.Status),
		AmountPaid: data.Amount,
		Currency:   data.Currency,
	}
	if data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			result.PaidAt = &paidAt
		}
	}
	return result, nil
}

// VerifyWebhookSignature checks the x-paystack-signature header scheme:
// hex(HMAC-SHA512(secret_key, raw_body)).
func (p *PaystackProvider) VerifyWebhookSignature(payload []byte, signature string) error {
	if len(payload) == 0 || signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(p.cfg.SecretKey))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// do issues one API request and decodes the data payload into out.
func (p *PaystackProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return errors.Join(ErrInvalidChargeRequest, err)
		}
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, nil)
	}
	if err != nil {
		return errors.Join(ErrGatewayUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Covers timeouts, DNS failures, refused connections.
		return errors.Join(ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil && resp.StatusCode < http.StatusInternalServerError {
		return errors.Join(ErrGatewayUnavailable, decErr)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: provider returned %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrReferenceNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidChargeRequest, env.Message)
	case !env.Status:
		return fmt.Errorf("%w: %s", ErrInvalidChargeRequest, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Join(ErrGatewayUnavailable, err)
		}
	}
	return nil
}

// normalizeSettlement maps Paystack transaction statuses onto the
// reconciliation set. In-flight states (ongoing, processing, queued) are
// pending; a reversed charge never activates anything.
func normalizeSettlement(s string) SettlementStatus {
	switch s {
	case "success":
		return SettlementSuccess
	case "failed", "reversed":
		return SettlementFailed
	case "abandoned":
		return SettlementAbandoned
	default:
		return SettlementPending
	}
}
