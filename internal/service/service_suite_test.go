package service

import (
	"time"

	"github.com/flexprice/billing/internal/cache"
	"github.com/flexprice/billing/internal/domain/plan"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/testutil"
	"github.com/flexprice/billing/internal/types"
	"github.com/flexprice/billing/internal/webhook"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	testPlanID   = "plan_pro"
	testUserID   = "user_1"
	testCurrency = "TRY"
)

// billingSuite wires every service over the in-memory stores with a
// scripted mock provider as the default payment provider
type billingSuite struct {
	testutil.BaseServiceTestSuite
	params   ServiceParams
	provider *testutil.ScriptedProvider
	router   *payment.Router
}

func (s *billingSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.provider = testutil.NewScriptedProvider(types.PaymentProviderMock)
	s.buildParams()
}

// buildParams rebuilds the service dependencies; call it again after
// changing the config in a test
func (s *billingSuite) buildParams() {
	stores := s.GetStores()
	cfg := s.GetConfig()
	log := s.GetLogger()
	clock := s.GetClock()

	s.router = payment.NewRouter(cfg, log, s.provider)
	s.params = ServiceParams{
		Logger:              log,
		Config:              cfg,
		DB:                  s.GetDB(),
		Clock:               clock,
		Cache:               cache.NewInMemoryCache(cfg),
		SubRepo:             stores.SubscriptionRepo,
		ChangeLogRepo:       stores.ChangeLogRepo,
		ItemRepo:            stores.ItemRepo,
		PlanRepo:            stores.PlanRepo,
		InvoiceRepo:         stores.InvoiceRepo,
		UsageRepo:           stores.UsageRepo,
		WebhookEndpointRepo: stores.WebhookEndpointRepo,
		WebhookDeliveryRepo: stores.WebhookDeliveryRepo,
		PaymentRouter:       s.router,
		EventPublisher:      outbox.NewPublisher(stores.OutboxRepo, clock, log),
		WebhookDeliverer:    webhook.NewDeliverer(cfg, stores.WebhookDeliveryRepo, clock, log, nil),
	}
}

func (s *billingSuite) seedPlan(amount int64) {
	ctx := s.GetContext()
	store := s.GetPlanStore()

	s.NoError(store.AddPlan(ctx, &plan.Plan{
		ID:        testPlanID,
		Name:      "Pro",
		BaseModel: types.GetDefaultBaseModel(ctx),
	}))
	store.AddPrice(&plan.Price{
		ID:                 "price_pro_try",
		PlanID:             testPlanID,
		Currency:           testCurrency,
		Amount:             decimal.NewFromInt(amount),
		BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
		BillingPeriodCount: 1,
		EffectiveFrom:      time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		BaseModel:          types.GetDefaultBaseModel(ctx),
	})
}

func (s *billingSuite) seedFeature(featureID string, limit *decimal.Decimal, allowOverage bool, overusePrice *decimal.Decimal, reset types.ResetInterval) {
	s.GetPlanStore().AddFeature(&plan.Feature{
		ID:            "pf_" + featureID,
		PlanID:        testPlanID,
		FeatureID:     featureID,
		Name:          featureID,
		IsMetered:     true,
		Limit:         limit,
		AllowOverage:  allowOverage,
		OverusePrice:  overusePrice,
		ResetInterval: reset,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	})
}

// dueSubscription creates a monthly subscription anchored on the 31st whose
// period ends at 2024-01-31 00:00, i.e. due at the suite's start time
func (s *billingSuite) dueSubscription(mutate ...func(sub *subscription.Subscription)) *subscription.Subscription {
	ctx := s.GetContext()
	start := time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		UserID:             testUserID,
		PlanID:             testPlanID,
		Currency:           testCurrency,
		UnitPrice:          decimal.NewFromInt(100),
		BillingPeriod:      types.BILLING_PERIOD_MONTHLY,
		BillingPeriodCount: 1,
		BillingAnchor:      start,
		StartAt:            start,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		RenewAt:            lo.ToPtr(end),
		RenewalPolicy:      types.RenewalPolicyAuto,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	for _, fn := range mutate {
		fn(sub)
	}
	s.NoError(s.GetStores().SubscriptionRepo.Create(ctx, sub))
	return sub
}

func (s *billingSuite) getSubscription(id string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return sub
}

func (s *billingSuite) changeTypes(subID string) []types.SubscriptionChangeType {
	changes, err := s.GetStores().ChangeLogRepo.ListBySubscription(s.GetContext(), subID)
	s.Require().NoError(err)
	return lo.Map(changes, func(c *subscription.ChangeLog, _ int) types.SubscriptionChangeType {
		return c.ChangeType
	})
}
