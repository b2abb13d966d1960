// Package iyzico charges stored cards through the iyzico REST API
package iyzico

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/httpclient"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/types"
	"github.com/oklog/ulid/v2"
)

const (
	paymentPath = "/payment/auth"

	statusSuccess = "success"

	// errorCodeThreeDSRequired is returned when the issuer insists on 3DS
	errorCodeThreeDSRequired = "10217"
)

type Provider struct {
	cfg    config.IyzicoConfig
	client httpclient.Client
	logger *logger.Logger
	// randomKey is swappable so signatures can be asserted in tests
	randomKey func() string
}

func NewProvider(cfg *config.Configuration, client httpclient.Client, logger *logger.Logger) *Provider {
	return &Provider{
		cfg:       cfg.Payment.Iyzico,
		client:    client,
		logger:    logger,
		randomKey: func() string { return ulid.Make().String() },
	}
}

func (p *Provider) Name() types.PaymentProvider {
	return types.PaymentProviderIyzico
}

func (p *Provider) Available() error {
	if p.cfg.APIKey == "" || p.cfg.SecretKey == "" || p.cfg.BaseURL == "" {
		return ierr.NewError("iyzico credentials not configured").
			WithHint("Iyzico is not configured").
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

type paymentCard struct {
	CardUserKey string `json:"cardUserKey"`
	CardToken   string `json:"cardToken"`
}

type buyer struct {
	ID string `json:"id"`
}

type paymentRequest struct {
	Locale         string      `json:"locale"`
	ConversationID string      `json:"conversationId"`
	Price          string      `json:"price"`
	PaidPrice      string      `json:"paidPrice"`
	Currency       string      `json:"currency"`
	Installment    int         `json:"installment"`
	BasketID       string      `json:"basketId"`
	PaymentChannel string      `json:"paymentChannel"`
	PaymentGroup   string      `json:"paymentGroup"`
	PaymentCard    paymentCard `json:"paymentCard"`
	Buyer          buyer       `json:"buyer"`
}

type paymentResponse struct {
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode"`
	ErrorMessage   string `json:"errorMessage"`
	PaymentID      string `json:"paymentId"`
	ConversationID string `json:"conversationId"`
}

func (p *Provider) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.Result, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}

	amount := req.Amount.StringFixed(2)
	body, err := json.Marshal(paymentRequest{
		Locale:         "en",
		ConversationID: req.IdempotencyKey,
		Price:          amount,
		PaidPrice:      amount,
		Currency:       strings.ToUpper(req.Currency),
		Installment:    1,
		BasketID:       req.InvoiceID,
		PaymentChannel: "WEB",
		PaymentGroup:   "SUBSCRIPTION",
		PaymentCard: paymentCard{
			CardUserKey: req.CustomerRef,
			CardToken:   req.PaymentMethodRef,
		},
		Buyer: buyer{ID: req.UserID},
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode iyzico payment request").
			Mark(ierr.ErrSystem)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + paymentPath
	rnd := p.randomKey()

	resp, err := p.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Body:   body,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": p.authorization(rnd, paymentPath, body),
			"x-iyzi-rnd":    rnd,
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}

	var out paymentResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, payment.NewTransient(p.Name(), "invalid_response", "unreadable iyzico response")
	}

	if out.Status == statusSuccess {
		return &payment.Result{
			Status:       types.PaymentStatusSucceeded,
			Reference:    out.PaymentID,
			ResponseCode: out.Status,
		}, nil
	}
	if out.ErrorCode == errorCodeThreeDSRequired {
		return &payment.Result{
			Status:       types.PaymentStatusRequiresAction,
			Reference:    out.PaymentID,
			ResponseCode: out.ErrorCode,
		}, nil
	}
	return nil, payment.NewDecline(p.Name(), out.ErrorCode, out.ErrorMessage)
}

// authorization builds the IYZWSv2 header:
// base64("apiKey:<key>&randomKey:<rnd>&signature:<hex hmac-sha256(secret, rnd+path+body)>")
func (p *Provider) authorization(rnd, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.SecretKey))
	mac.Write([]byte(rnd + path + string(body)))
	signature := hex.EncodeToString(mac.Sum(nil))

	params := "apiKey:" + p.cfg.APIKey + "&randomKey:" + rnd + "&signature:" + signature
	return "IYZWSv2 " + base64.StdEncoding.EncodeToString([]byte(params))
}

func classifyError(err error) error {
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		perr := &payment.ProviderError{
			Provider:   types.PaymentProviderIyzico,
			Code:       http.StatusText(httpErr.StatusCode),
			Message:    string(httpErr.Response),
			StatusCode: httpErr.StatusCode,
			Transient:  httpErr.Retryable(),
		}
		return perr
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return payment.NewTransient(types.PaymentProviderIyzico, payment.ErrorCodeTimeout, err.Error())
	}
	return payment.NewTransient(types.PaymentProviderIyzico, payment.ErrorCodeUnknown, err.Error())
}
