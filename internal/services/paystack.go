package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"cirvee_lms/internal/apperrors"
	"cirvee_lms/internal/money"
)

// Gateway charge statuses as reported by the provider.
const (
	GatewayStatusSuccess   = "success"
	GatewayStatusFailed    = "failed"
	GatewayStatusAbandoned = "abandoned"
	GatewayStatusPending   = "pending"
)

// AuthorizeRequest opens a charge with the payment provider.
type AuthorizeRequest struct {
	AmountKobo money.Kobo
	Email      string
	Reference  string
	Metadata   map[string]interface{}
}

// GatewayAuthorization is the provider's handle for a charge the customer
// still has to complete.
type GatewayAuthorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// GatewayVerification is the provider's ledger view of a reference. Verify may
// be called any number of times for one reference and always reports the same
// settled outcome.
type GatewayVerification struct {
	Status           string
	AmountKobo       money.Kobo
	GatewayReference string
	PaidAt           *time.Time
	Channel          string
}

// PaymentGateway is the external payment provider capability. The engine never
// assumes synchronous settlement.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*GatewayAuthorization, error)
	Verify(ctx context.Context, reference string) (*GatewayVerification, error)
}

// PaystackClient talks to the Paystack REST API. Calls carry a bounded timeout;
// a timed-out call is an unknown outcome, surfaced as a gateway error and left
// for later reconciliation.
type PaystackClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewPaystackClient() *PaystackClient {
	baseURL := os.Getenv("PAYSTACK_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &PaystackClient{
		secretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	ID      int64      `json:"id"`
	Status  string     `json:"status"`
	Amount  int64      `json:"amount"`
	Channel string     `json:"channel"`
	PaidAt  *time.Time `json:"paid_at"`
}

func (c *PaystackClient) Authorize(ctx context.Context, req AuthorizeRequest) (*GatewayAuthorization, error) {
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    int64(req.AmountKobo),
		"reference": req.Reference,
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}

	var data paystackInitializeData
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}

	return &GatewayAuthorization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *PaystackClient) Verify(ctx context.Context, reference string) (*GatewayVerification, error) {
	var data paystackVerifyData
	if err := c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return nil, err
	}

	return &GatewayVerification{
		Status:           data.Status,
		AmountKobo:       money.Kobo(data.Amount),
		GatewayReference: strconv.FormatInt(data.ID, 10),
		PaidAt:           data.PaidAt,
		Channel:          data.Channel,
	}, nil
}

func (c *PaystackClient) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal gateway request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Gateway(err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	var envelope paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apperrors.Gateway(err, "invalid payment gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		return apperrors.Gateway(nil, "payment gateway error: %s", envelope.Message)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return apperrors.Gateway(err, "invalid payment gateway payload")
		}
	}
	return nil
}
