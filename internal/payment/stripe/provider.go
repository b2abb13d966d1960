package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// Provider charges stored payment methods with off-session PaymentIntents
type Provider struct {
	secretKey string
	client    *stripe.Client
	logger    *logger.Logger
}

func NewProvider(cfg *config.Configuration, logger *logger.Logger) *Provider {
	p := &Provider{
		secretKey: cfg.Payment.Stripe.SecretKey,
		logger:    logger,
	}
	if p.secretKey != "" {
		p.client = stripe.NewClient(p.secretKey, nil)
	}
	return p
}

func (p *Provider) Name() types.PaymentProvider {
	return types.PaymentProviderStripe
}

func (p *Provider) Available() error {
	if p.client == nil {
		return ierr.NewError("stripe secret key not configured").
			WithHint("Stripe is not configured").
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

func (p *Provider) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.Result, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	if req.CustomerRef == "" || req.PaymentMethodRef == "" {
		return nil, payment.NewDecline(p.Name(), "missing_payment_method", "no stored payment method for customer")
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Metadata: map[string]string{
			"invoice_id":      req.InvoiceID,
			"invoice_number":  req.InvoiceNumber,
			"subscription_id": req.SubscriptionID,
			"tenant_id":       req.TenantID,
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeAuthenticationRequired {
			result := &payment.Result{
				Status:       types.PaymentStatusRequiresAction,
				ResponseCode: string(stripeErr.Code),
			}
			if stripeErr.PaymentIntent != nil {
				result.Reference = stripeErr.PaymentIntent.ID
			}
			return result, nil
		}
		return nil, classifyError(err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &payment.Result{
			Status:       types.PaymentStatusSucceeded,
			Reference:    intent.ID,
			ResponseCode: string(intent.Status),
		}, nil
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return &payment.Result{
			Status:       types.PaymentStatusRequiresAction,
			Reference:    intent.ID,
			ResponseCode: string(intent.Status),
		}, nil
	case stripe.PaymentIntentStatusProcessing:
		// settles asynchronously; treat like a retryable gateway hiccup so the
		// next attempt reuses the idempotency key and picks up the final state
		return nil, &payment.ProviderError{
			Provider:  p.Name(),
			Code:      string(intent.Status),
			Message:   "payment is still processing",
			Transient: true,
		}
	default:
		return nil, payment.NewDecline(p.Name(), string(intent.Status), "payment intent was not completed")
	}
}

// classifyError maps stripe errors onto the payment failure taxonomy
func classifyError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return payment.NewTransient(types.PaymentProviderStripe, payment.ErrorCodeUnknown, err.Error())
	}

	perr := &payment.ProviderError{
		Provider:   types.PaymentProviderStripe,
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
		StatusCode: stripeErr.HTTPStatusCode,
	}
	if perr.Code == "" {
		perr.Code = string(stripeErr.Type)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		if stripeErr.DeclineCode != "" {
			perr.Code = string(stripeErr.DeclineCode)
		}
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode >= 500,
		stripeErr.Type == stripe.ErrorTypeAPI,
		stripeErr.Type == stripe.ErrorTypeIdempotency:
		perr.Transient = true
	}
	return perr
}

// toMinorUnits converts an amount to the smallest currency unit
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
