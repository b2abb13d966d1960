// Package mock is a payment provider for local runs. It never talks to a
// network; the payment method reference selects the outcome.
package mock

import (
	"context"

	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/types"
)

// Payment method references with a scripted outcome. Anything else succeeds.
const (
	MethodDeclined       = "pm_card_declined"
	MethodRequiresAction = "pm_requires_action"
	MethodUnavailable    = "pm_provider_unavailable"
)

type Provider struct {
	enabled bool
}

func NewProvider(cfg *config.Configuration) *Provider {
	return &Provider{enabled: cfg.Payment.Mock.Enabled}
}

func (p *Provider) Name() types.PaymentProvider {
	return types.PaymentProviderMock
}

func (p *Provider) Available() error {
	if !p.enabled {
		return ierr.NewError("mock payment provider is disabled").
			WithHint("Mock payment provider is disabled").
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

func (p *Provider) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch req.PaymentMethodRef {
	case MethodDeclined:
		return nil, payment.NewDecline(p.Name(), "card_declined", "Your card was declined.")
	case MethodUnavailable:
		return nil, payment.NewTransient(p.Name(), "unavailable", "Provider temporarily unavailable.")
	case MethodRequiresAction:
		return &payment.Result{
			Status:       types.PaymentStatusRequiresAction,
			Reference:    "mock_" + req.IdempotencyKey,
			ResponseCode: "authentication_required",
		}, nil
	}

	return &payment.Result{
		Status:       types.PaymentStatusSucceeded,
		Reference:    "mock_" + req.IdempotencyKey,
		ResponseCode: "approved",
	}, nil
}
