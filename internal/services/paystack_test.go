package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cirvee_lms/internal/apperrors"
	"cirvee_lms/internal/money"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *PaystackClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("PAYSTACK_BASE_URL", server.URL)
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_abc123")
	return NewPaystackClient()
}

func TestPaystackAuthorize(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	client := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         "CRV-TEST-1",
			},
		})
	})

	auth, err := client.Authorize(context.Background(), AuthorizeRequest{
		AmountKobo: 250000,
		Email:      "ada@example.com",
		Reference:  "CRV-TEST-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/transaction/initialize", gotPath)
	assert.Equal(t, "Bearer sk_test_abc123", gotAuth)
	assert.Equal(t, float64(250000), gotBody["amount"])
	assert.Equal(t, "ada@example.com", gotBody["email"])
	assert.Equal(t, "https://checkout.paystack.com/abc", auth.AuthorizationURL)
	assert.Equal(t, "abc", auth.AccessCode)
}

func TestPaystackVerify(t *testing.T) {
	client := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/CRV-TEST-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"id":      4099260516,
				"status":  "success",
				"amount":  250000,
				"channel": "card",
			},
		})
	})

	verification, err := client.Verify(context.Background(), "CRV-TEST-1")
	require.NoError(t, err)

	assert.Equal(t, GatewayStatusSuccess, verification.Status)
	assert.Equal(t, money.Kobo(250000), verification.AmountKobo)
	assert.Equal(t, "4099260516", verification.GatewayReference)
	assert.Equal(t, "card", verification.Channel)
}

func TestPaystackErrorEnvelope(t *testing.T) {
	client := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  false,
			"message": "Transaction reference not found",
		})
	})

	_, err := client.Verify(context.Background(), "CRV-MISSING")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "Transaction reference not found")
}

func TestPaystackUnreachable(t *testing.T) {
	client := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {})
	// Point at a closed port.
	client.baseURL = "http://127.0.0.1:1"

	_, err := client.Verify(context.Background(), "CRV-TEST-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))
}
