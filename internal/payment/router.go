package payment

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/retry"
	"github.com/flexprice/billing/internal/types"
	"github.com/samber/lo"
)

const (
	// ErrorCodeTimeout is recorded when the provider call hit its deadline
	ErrorCodeTimeout = "timeout"
	// ErrorCodeUnknown is recorded for failures a provider did not classify
	ErrorCodeUnknown = "provider_error"
)

// Router picks the provider for a charge and hides transient provider
// trouble behind same-provider retries and an optional fallback
type Router struct {
	mu        sync.RWMutex
	providers map[types.PaymentProvider]Provider
	cfg       config.PaymentConfig
	retry     *retry.Policy
	logger    *logger.Logger
}

func NewRouter(cfg *config.Configuration, logger *logger.Logger, providers ...Provider) *Router {
	interval := cfg.Payment.RetryInterval
	r := &Router{
		providers: make(map[types.PaymentProvider]Provider),
		cfg:       cfg.Payment,
		retry: retry.NewPolicy(config.BackoffConfig{
			Base:   interval,
			Cap:    8 * interval,
			Jitter: 0.2,
		}),
		logger: logger,
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Providers lists the registered provider names in sorted order
func (r *Router) Providers() []types.PaymentProvider {
	r.mu.RLock()
	names := lo.Keys(r.providers)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// ValidateConfig checks that the default provider and every tenant override
// name a registered provider. Credentials are not checked here; a provider
// without them is rejected when selected.
func (r *Router) ValidateConfig() error {
	registered := r.Providers()
	if !lo.Contains(registered, r.cfg.DefaultProvider) {
		return ierr.NewErrorf("default payment provider %s is not registered", r.cfg.DefaultProvider).
			WithHintf("Registered payment providers: %v", registered).
			Mark(ierr.ErrConfiguration)
	}
	for tenantID, name := range r.cfg.TenantProviders {
		if !lo.Contains(registered, name) {
			return ierr.NewErrorf("payment provider %s for tenant %s is not registered", name, tenantID).
				WithHintf("Registered payment providers: %v", registered).
				Mark(ierr.ErrConfiguration)
		}
	}
	return nil
}

func (r *Router) lookup(name types.PaymentProvider) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ierr.NewErrorf("payment provider %s is not registered", name).
			WithHintf("Payment provider %s is not configured", name).
			Mark(ierr.ErrConfiguration)
	}
	if err := p.Available(); err != nil {
		return nil, err
	}
	return p, nil
}

// Resolve selects the provider for tenantID: the invoice preference, then
// the tenant preference, then the default. An unusable preference falls
// back to the default; an unusable default is an ErrConfiguration error.
func (r *Router) Resolve(ctx context.Context, tenantID string, preferred *types.PaymentProvider) (Provider, error) {
	var candidates []types.PaymentProvider
	if preferred != nil && *preferred != "" {
		candidates = append(candidates, *preferred)
	}
	if p, ok := r.cfg.PreferredProvider(tenantID); ok {
		candidates = append(candidates, p)
	}

	for _, name := range lo.Uniq(candidates) {
		if name == r.cfg.DefaultProvider {
			break
		}
		p, err := r.lookup(name)
		if err == nil {
			return p, nil
		}
		r.logger.Warnw("preferred payment provider unusable, trying default",
			"tenant_id", tenantID,
			"provider", name,
			"error", err,
		)
	}

	p, err := r.lookup(r.cfg.DefaultProvider)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Default payment provider %s is not usable", r.cfg.DefaultProvider).
			WithReportableDetails(map[string]any{
				"tenant_id": tenantID,
				"provider":  r.cfg.DefaultProvider,
			}).
			Mark(ierr.ErrConfiguration)
	}
	return p, nil
}

// Charge runs req against the resolved provider. Provider failures are
// returned as a failed Result; the error is reserved for configuration
// problems, which must not count as a payment attempt.
func (r *Router) Charge(ctx context.Context, req *ChargeRequest, preferred *types.PaymentProvider) (*Result, error) {
	p, err := r.Resolve(ctx, req.TenantID, preferred)
	if err != nil {
		return nil, err
	}
	return r.ChargeWith(ctx, p, req)
}

// ChargeWith charges through an already resolved provider
func (r *Router) ChargeWith(ctx context.Context, p Provider, req *ChargeRequest) (*Result, error) {
	result := r.chargeWithRetries(ctx, p, req)
	if !result.Failed() || !result.Transient {
		return result, nil
	}

	if !r.cfg.FallbackEnabled || p.Name() == r.cfg.DefaultProvider || ctx.Err() != nil {
		return result, nil
	}

	fallback, err := r.lookup(r.cfg.DefaultProvider)
	if err != nil {
		r.logger.Warnw("fallback payment provider unusable",
			"invoice_id", req.InvoiceID,
			"provider", r.cfg.DefaultProvider,
			"error", err,
		)
		return result, nil
	}

	r.logger.Infow("falling back to default payment provider",
		"invoice_id", req.InvoiceID,
		"from", p.Name(),
		"to", fallback.Name(),
		"error_code", result.ErrorCode,
	)
	return r.chargeWithRetries(ctx, fallback, req), nil
}

func (r *Router) chargeWithRetries(ctx context.Context, p Provider, req *ChargeRequest) *Result {
	var result *Result
	tries := 0

	operation := func() error {
		tries++
		res, err := p.Charge(ctx, req)
		if err == nil {
			result = res
			result.Provider = p.Name()
			return nil
		}

		result = failedResult(ctx, p.Name(), err)
		if result.Transient {
			r.logger.Debugw("transient payment failure",
				"invoice_id", req.InvoiceID,
				"provider", p.Name(),
				"try", tries,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(r.retry.BackOff(r.cfg.TransientRetries), ctx)
	_ = backoff.Retry(operation, policy)
	return result
}

// failedResult normalizes a provider error. Errors that are not
// ProviderErrors (network, deadline) are treated as transient.
func failedResult(ctx context.Context, provider types.PaymentProvider, err error) *Result {
	result := &Result{
		Status:       types.PaymentStatusFailed,
		Provider:     provider,
		ErrorMessage: err.Error(),
	}

	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		result.ErrorCode = perr.Code
		result.ResponseCode = perr.Code
		result.ErrorMessage = perr.Message
		result.Transient = perr.Transient
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.ErrorCode = ErrorCodeTimeout
		result.Transient = true
	default:
		result.ErrorCode = ErrorCodeUnknown
		result.Transient = true
	}
	return result
}
