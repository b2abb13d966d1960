package service

import (
	"context"
	"time"

	"github.com/flexprice/billing/internal/api/dto"
	"github.com/flexprice/billing/internal/cache"
	"github.com/flexprice/billing/internal/domain/plan"
	"github.com/flexprice/billing/internal/domain/subscription"
	"github.com/flexprice/billing/internal/domain/usage"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/outbox"
	"github.com/flexprice/billing/internal/types"
	"github.com/shopspring/decimal"
)

const usageResetBatchSize = 500

type UsageService interface {
	// RecordUsage applies usage to the feature counter of a subscription.
	// A correlation id seen before is accepted without counting it again.
	RecordUsage(ctx context.Context, req dto.RecordUsageRequest) (*dto.RecordUsageResponse, error)
	// ResetDueCounters zeroes every counter whose reset time has passed and
	// returns how many were reset
	ResetDueCounters(ctx context.Context, now time.Time) (int, error)
}

type usageService struct {
	ServiceParams
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{ServiceParams: params}
}

func (s *usageService) RecordUsage(ctx context.Context, req dto.RecordUsageRequest) (*dto.RecordUsageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cacheKey := cache.GenerateKey(cache.PrefixUsageCorrelation,
		types.GetTenantID(ctx), req.FeatureID, req.CorrelationID)
	if cached, ok := s.Cache.Get(ctx, cacheKey); ok {
		if resp, ok := cached.(*dto.RecordUsageResponse); ok {
			replay := *resp
			replay.Duplicate = true
			return &replay, nil
		}
	}

	sub, err := s.resolveSubscription(ctx, req)
	if err != nil {
		return nil, err
	}

	feature, err := s.PlanRepo.GetFeature(ctx, sub.PlanID, req.FeatureID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("Feature %s is not part of the subscription's plan", req.FeatureID).
				Mark(ierr.ErrValidation)
		}
		return nil, err
	}
	if !feature.IsMetered {
		return nil, ierr.NewErrorf("feature %s is not metered", req.FeatureID).
			WithHintf("Feature %s does not track usage", req.FeatureID).
			Mark(ierr.ErrValidation)
	}

	now := s.Clock.Now()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	var resp *dto.RecordUsageResponse
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.getOrCreateItem(ctx, sub, feature, now)
		if err != nil {
			return err
		}

		existing, err := s.UsageRepo.GetByCorrelation(ctx, req.FeatureID, req.CorrelationID)
		if err == nil {
			resp = newUsageResponse(existing, item, true)
			return nil
		}
		if !ierr.IsNotFound(err) {
			return err
		}

		if item.ResetDue(now) {
			item.Reset(now, sub.BillingAnchor)
		}

		if err := s.checkAllotment(item, req.Quantity); err != nil {
			return err
		}

		rec := &usage.Record{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			FeatureID:      req.FeatureID,
			Quantity:       req.Quantity,
			CorrelationID:  req.CorrelationID,
			OccurredAt:     occurredAt,
			CreatedAt:      now,
			CreatedBy:      types.GetUserID(ctx),
		}
		if err := s.UsageRepo.Create(ctx, rec); err != nil {
			if !ierr.IsAlreadyExists(err) {
				return err
			}
			// a concurrent request with the same correlation id won
			existing, err := s.UsageRepo.GetByCorrelation(ctx, req.FeatureID, req.CorrelationID)
			if err != nil {
				return err
			}
			resp = newUsageResponse(existing, item, true)
			return nil
		}

		item.Used = item.Used.Add(req.Quantity)
		item.Touch(ctx, now)
		if err := s.ItemRepo.Update(ctx, item); err != nil {
			return err
		}

		if err := s.EventPublisher.Publish(ctx, sub.TenantID, types.EventUsageRecorded, outbox.NewUsageEventPayload(rec, item)); err != nil {
			return err
		}

		resp = newUsageResponse(rec, item, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, cacheKey, resp, s.Config.Usage.DuplicateCacheTTL)

	if !resp.Duplicate {
		s.Logger.Debugw("usage recorded",
			"subscription_id", sub.ID,
			"feature_id", req.FeatureID,
			"quantity", req.Quantity.String(),
			"used", resp.Item.Used.String(),
		)
	}
	return resp, nil
}

func newUsageResponse(rec *usage.Record, item *subscription.Item, duplicate bool) *dto.RecordUsageResponse {
	return &dto.RecordUsageResponse{
		Record:    rec,
		Item:      item,
		Duplicate: duplicate,
		Remaining: item.Remaining(),
		Overage:   item.Overage(),
	}
}

// resolveSubscription finds the subscription usage is reported against: the
// explicit one, or the user's live subscription
func (s *usageService) resolveSubscription(ctx context.Context, req dto.RecordUsageRequest) (*subscription.Subscription, error) {
	var (
		sub *subscription.Subscription
		err error
	)
	if req.SubscriptionID != "" {
		sub, err = s.SubRepo.Get(ctx, req.SubscriptionID)
	} else {
		sub, err = s.SubRepo.GetLiveByUser(ctx, req.UserID)
	}
	if err != nil {
		return nil, err
	}

	if req.UserID != "" && sub.UserID != req.UserID {
		return nil, ierr.NewErrorf("subscription %s does not belong to user %s", sub.ID, req.UserID).
			WithHint("Subscription does not belong to the user").
			Mark(ierr.ErrValidation)
	}
	if !sub.SubscriptionStatus.IsLive() {
		return nil, ierr.NewErrorf("subscription %s is %s", sub.ID, sub.SubscriptionStatus).
			WithHintf("Subscription is %s and cannot record usage", sub.SubscriptionStatus).
			Mark(ierr.ErrInvalidOperation)
	}
	return sub, nil
}

func (s *usageService) getOrCreateItem(ctx context.Context, sub *subscription.Subscription, feature *plan.Feature, now time.Time) (*subscription.Item, error) {
	item, err := s.ItemRepo.GetByFeature(ctx, sub.ID, feature.FeatureID)
	if err == nil {
		return item, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	item = &subscription.Item{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_ITEM),
		SubscriptionID: sub.ID,
		FeatureID:      feature.FeatureID,
		Allotted:       feature.Limit,
		Used:           decimal.Zero,
		AllowOverage:   feature.AllowOverage,
		OverusePrice:   feature.OverusePrice,
		ResetInterval:  feature.ResetInterval,
		ResetsAt:       feature.ResetInterval.NextResetAt(now, sub.BillingAnchor),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	item.TenantID = sub.TenantID

	if err := s.ItemRepo.Create(ctx, item); err != nil {
		if ierr.IsAlreadyExists(err) {
			return s.ItemRepo.GetByFeature(ctx, sub.ID, feature.FeatureID)
		}
		return nil, err
	}
	return item, nil
}

// checkAllotment enforces the block overage policy. Under cap, usage past
// the allotment is recorded but never billed.
func (s *usageService) checkAllotment(item *subscription.Item, quantity decimal.Decimal) error {
	if s.Config.Usage.OveragePolicy != types.OveragePolicyBlock || item.Allotted == nil || item.AllowOverage {
		return nil
	}

	if item.Used.Add(quantity).GreaterThan(*item.Allotted) {
		return ierr.NewErrorf("usage of %s would exceed its allotment", item.FeatureID).
			WithHintf("Usage limit for %s reached", item.FeatureID).
			WithReportableDetails(map[string]any{
				"feature_id": item.FeatureID,
				"allotted":   item.Allotted.String(),
				"used":       item.Used.String(),
				"requested":  quantity.String(),
			}).
			Mark(ierr.ErrLimitExceeded)
	}
	return nil
}

func (s *usageService) ResetDueCounters(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for ctx.Err() == nil {
		items, err := s.ItemRepo.ListResetDue(ctx, now, usageResetBatchSize)
		if err != nil {
			return total, err
		}

		reset := 0
		for _, item := range items {
			if err := s.resetItem(ctx, item, now); err != nil {
				s.Logger.Errorw("failed to reset usage counter",
					"item_id", item.ID,
					"subscription_id", item.SubscriptionID,
					"error", err,
				)
				continue
			}
			reset++
		}
		total += reset

		if len(items) < usageResetBatchSize || reset == 0 {
			break
		}
	}

	if total > 0 {
		s.Logger.Infow("usage counters reset", "count", total)
	}
	return total, nil
}

func (s *usageService) resetItem(ctx context.Context, item *subscription.Item, now time.Time) error {
	ctx = types.WithTenantScope(ctx, item.TenantID)

	anchor := *item.ResetsAt
	if sub, err := s.SubRepo.Get(ctx, item.SubscriptionID); err == nil {
		anchor = sub.BillingAnchor
	}

	item.Reset(now, anchor)
	item.Touch(ctx, now)
	return s.ItemRepo.Update(ctx, item)
}
