package iyzico

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/httpclient"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/testutil"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.GetDefaultConfig()
	cfg.Payment.Iyzico = config.IyzicoConfig{APIKey: "api-key", SecretKey: "secret-key", BaseURL: srv.URL}

	p := NewProvider(cfg, httpclient.NewClient(httpclient.ClientConfig{Timeout: time.Second}), logger.NewNopLogger())
	p.randomKey = func() string { return "rnd123" }
	return p
}

func chargeRequest() *payment.ChargeRequest {
	return &payment.ChargeRequest{
		TenantID:         "tenant_1",
		InvoiceID:        "inv_1",
		UserID:           "user_1",
		Amount:           decimal.NewFromInt(100),
		Currency:         "try",
		CustomerRef:      "card_user_key",
		PaymentMethodRef: "card_token",
		IdempotencyKey:   "inv_1-1",
		Attempt:          1,
	}
}

func TestCharge_Success(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, paymentPath, r.URL.Path)
		assert.Equal(t, "rnd123", r.Header.Get("x-iyzi-rnd"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, expectedAuth("api-key", "secret-key", "rnd123", body), r.Header.Get("Authorization"))

		var req paymentRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "100.00", req.Price)
		assert.Equal(t, "TRY", req.Currency)
		assert.Equal(t, "inv_1-1", req.ConversationID)

		_, _ = w.Write([]byte(`{"status":"success","paymentId":"pay_1"}`))
	})

	res, err := p.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusSucceeded, res.Status)
	assert.Equal(t, "pay_1", res.Reference)
}

func expectedAuth(apiKey, secret, rnd string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rnd + paymentPath + string(body)))
	raw := "apiKey:" + apiKey + "&randomKey:" + rnd + "&signature:" + hex.EncodeToString(mac.Sum(nil))
	return "IYZWSv2 " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestCharge_DeclineIsPermanent(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failure","errorCode":"10051","errorMessage":"insufficient funds"}`))
	})

	_, err := p.Charge(context.Background(), chargeRequest())

	var perr *payment.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Transient)
	assert.Equal(t, "10051", perr.Code)
}

func TestCharge_ThreeDSRequiresAction(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failure","errorCode":"10217","paymentId":"pay_2"}`))
	})

	res, err := p.Charge(context.Background(), chargeRequest())
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusRequiresAction, res.Status)
}

func TestCharge_ServerErrorIsTransient(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Charge(context.Background(), chargeRequest())

	var perr *payment.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Transient)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestAvailable_MissingCredentials(t *testing.T) {
	p := NewProvider(config.GetDefaultConfig(), httpclient.NewDefaultClient(), logger.NewNopLogger())
	assert.True(t, ierr.IsConfiguration(p.Available()))
}

func TestCharge_NetworkFailureIsTransient(t *testing.T) {
	client := testutil.NewMockHTTPClient()
	client.RegisterResponse(paymentPath, testutil.MockResponse{Err: context.DeadlineExceeded})

	cfg := config.GetDefaultConfig()
	cfg.Payment.Iyzico = config.IyzicoConfig{APIKey: "api-key", SecretKey: "secret-key", BaseURL: "https://iyzico.test"}
	p := NewProvider(cfg, client, logger.NewNopLogger())

	_, err := p.Charge(context.Background(), chargeRequest())

	var perr *payment.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Transient)
	assert.Equal(t, payment.ErrorCodeTimeout, perr.Code)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://iyzico.test"+paymentPath, reqs[0].URL)
	assert.Equal(t, "inv_1", basketID(t, reqs[0].Body))
}

func basketID(t *testing.T, body []byte) string {
	var out struct {
		BasketID string `json:"basketId"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.BasketID
}
