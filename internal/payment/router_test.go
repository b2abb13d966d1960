package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/billing/internal/config"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeProvider struct {
	mu        sync.Mutex
	name      types.PaymentProvider
	available error
	outcomes  []error
	calls     int
	keys      []string
}

func (f *fakeProvider) Name() types.PaymentProvider { return f.name }
func (f *fakeProvider) Available() error            { return f.available }

func (f *fakeProvider) Charge(_ context.Context, req *ChargeRequest) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, req.IdempotencyKey)

	if len(f.outcomes) == 0 {
		return &Result{Status: types.PaymentStatusSucceeded, Reference: string(f.name) + "_ref"}, nil
	}
	next := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	if next == nil {
		return &Result{Status: types.PaymentStatusSucceeded, Reference: string(f.name) + "_ref"}, nil
	}
	return nil, next
}

type RouterSuite struct {
	suite.Suite
	cfg    *config.Configuration
	stripe *fakeProvider
	iyzico *fakeProvider
	router *Router
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.cfg = config.GetDefaultConfig()
	s.cfg.Payment.DefaultProvider = types.PaymentProviderStripe
	s.cfg.Payment.TransientRetries = 2
	s.cfg.Payment.RetryInterval = time.Millisecond
	s.cfg.Payment.FallbackEnabled = true
	s.cfg.Payment.TenantProviders = map[string]types.PaymentProvider{"tenant_tr": types.PaymentProviderIyzico}

	s.stripe = &fakeProvider{name: types.PaymentProviderStripe}
	s.iyzico = &fakeProvider{name: types.PaymentProviderIyzico}
	s.router = NewRouter(s.cfg, logger.NewNopLogger(), s.stripe, s.iyzico)
}

func (s *RouterSuite) request(tenantID string) *ChargeRequest {
	return &ChargeRequest{
		TenantID:       tenantID,
		InvoiceID:      "inv_1",
		Amount:         decimal.NewFromInt(100),
		Currency:       "TRY",
		IdempotencyKey: "inv_1-1",
		Attempt:        1,
	}
}

func (s *RouterSuite) TestResolve_Order() {
	p, err := s.router.Resolve(context.Background(), "tenant_tr", nil)
	s.Require().NoError(err)
	s.Equal(types.PaymentProviderIyzico, p.Name())

	p, err = s.router.Resolve(context.Background(), "tenant_tr", lo.ToPtr(types.PaymentProviderStripe))
	s.Require().NoError(err)
	s.Equal(types.PaymentProviderStripe, p.Name())

	p, err = s.router.Resolve(context.Background(), "other", nil)
	s.Require().NoError(err)
	s.Equal(types.PaymentProviderStripe, p.Name())
}

func (s *RouterSuite) TestResolve_UnavailablePreferenceFallsBackToDefault() {
	s.iyzico.available = ierr.NewError("no creds").Mark(ierr.ErrConfiguration)

	p, err := s.router.Resolve(context.Background(), "tenant_tr", nil)
	s.Require().NoError(err)
	s.Equal(types.PaymentProviderStripe, p.Name())
}

func (s *RouterSuite) TestResolve_UnavailableDefaultIsConfigurationError() {
	s.stripe.available = ierr.NewError("no creds").Mark(ierr.ErrConfiguration)

	_, err := s.router.Resolve(context.Background(), "other", nil)
	s.True(ierr.IsConfiguration(err))

	_, err = s.router.Charge(context.Background(), s.request("other"), nil)
	s.True(ierr.IsConfiguration(err))
	s.Zero(s.stripe.calls)
}

func (s *RouterSuite) TestValidateConfig() {
	s.Equal([]types.PaymentProvider{types.PaymentProviderIyzico, types.PaymentProviderStripe}, s.router.Providers())
	s.NoError(s.router.ValidateConfig())

	s.cfg.Payment.TenantProviders["tenant_x"] = types.PaymentProviderMock
	router := NewRouter(s.cfg, logger.NewNopLogger(), s.stripe, s.iyzico)
	s.True(ierr.IsConfiguration(router.ValidateConfig()))

	s.cfg.Payment.TenantProviders = nil
	s.cfg.Payment.DefaultProvider = types.PaymentProviderMock
	router = NewRouter(s.cfg, logger.NewNopLogger(), s.stripe, s.iyzico)
	s.True(ierr.IsConfiguration(router.ValidateConfig()))

	router.Register(&fakeProvider{name: types.PaymentProviderMock})
	s.NoError(router.ValidateConfig())
}

func (s *RouterSuite) TestCharge_TransientRetriedOnSameProvider() {
	s.stripe.outcomes = []error{NewTransient(types.PaymentProviderStripe, "rate_limit", "slow down"), nil}

	res, err := s.router.Charge(context.Background(), s.request("other"), nil)
	s.Require().NoError(err)
	s.True(res.Succeeded())
	s.Equal(2, s.stripe.calls)
	s.Equal([]string{"inv_1-1", "inv_1-1"}, s.stripe.keys)
}

func (s *RouterSuite) TestCharge_DeclineNotRetried() {
	s.stripe.outcomes = []error{NewDecline(types.PaymentProviderStripe, "card_declined", "declined")}

	res, err := s.router.Charge(context.Background(), s.request("other"), nil)
	s.Require().NoError(err)
	s.True(res.Failed())
	s.False(res.Transient)
	s.Equal("card_declined", res.ErrorCode)
	s.Equal(1, s.stripe.calls)
}

func (s *RouterSuite) TestCharge_FallbackToDefaultAfterTransientExhaustion() {
	transient := NewTransient(types.PaymentProviderIyzico, "Bad Gateway", "bad gateway")
	s.iyzico.outcomes = []error{transient, transient, transient}

	res, err := s.router.Charge(context.Background(), s.request("tenant_tr"), nil)
	s.Require().NoError(err)
	s.True(res.Succeeded())
	s.Equal(types.PaymentProviderStripe, res.Provider)
	s.Equal(3, s.iyzico.calls)
	s.Equal(1, s.stripe.calls)
}

func (s *RouterSuite) TestCharge_NoFallbackWhenDisabled() {
	s.cfg.Payment.FallbackEnabled = false
	s.router = NewRouter(s.cfg, logger.NewNopLogger(), s.stripe, s.iyzico)

	transient := NewTransient(types.PaymentProviderIyzico, "timeout", "timeout")
	s.iyzico.outcomes = []error{transient, transient, transient}

	res, err := s.router.Charge(context.Background(), s.request("tenant_tr"), nil)
	s.Require().NoError(err)
	s.True(res.Failed())
	s.True(res.Transient)
	s.Zero(s.stripe.calls)
}

func TestFailedResult_DeadlineIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	res := failedResult(ctx, types.PaymentProviderStripe, context.DeadlineExceeded)
	require.True(t, res.Failed())
	assert.True(t, res.Transient)
	assert.Equal(t, ErrorCodeTimeout, res.ErrorCode)
}
