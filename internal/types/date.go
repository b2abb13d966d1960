package types

import (
	"fmt"
	"time"
)

// BillingPeriod is the unit of a subscription's billing cadence
type BillingPeriod string

const (
	BILLING_PERIOD_DAILY   BillingPeriod = "DAILY"
	BILLING_PERIOD_WEEKLY  BillingPeriod = "WEEKLY"
	BILLING_PERIOD_MONTHLY BillingPeriod = "MONTHLY"
	BILLING_PERIOD_ANNUAL  BillingPeriod = "ANNUAL"
)

func (p BillingPeriod) Validate() error {
	switch p {
	case BILLING_PERIOD_DAILY, BILLING_PERIOD_WEEKLY, BILLING_PERIOD_MONTHLY, BILLING_PERIOD_ANNUAL:
		return nil
	}
	return fmt.Errorf("invalid billing period type: %s", p)
}

// NextBillingDate returns the end of the period starting at currentPeriodStart.
//
// Daily and weekly periods add whole days. Monthly and annual periods land on
// the billing anchor's day of month, clamped to the last day of the target
// month, so a subscription anchored on Jan 31 renews Feb 29 (leap year),
// Mar 31, Apr 30 and never drifts to the 28th/29th for good.
// The wall clock time of currentPeriodStart is preserved.
func NextBillingDate(currentPeriodStart, billingAnchor time.Time, unit int, period BillingPeriod) (time.Time, error) {
	if unit <= 0 {
		return currentPeriodStart, fmt.Errorf("billing period unit must be a positive integer, got %d", unit)
	}

	switch period {
	case BILLING_PERIOD_DAILY:
		return currentPeriodStart.AddDate(0, 0, unit), nil
	case BILLING_PERIOD_WEEKLY:
		return currentPeriodStart.AddDate(0, 0, 7*unit), nil
	case BILLING_PERIOD_MONTHLY:
		return addMonthsAnchored(currentPeriodStart, billingAnchor, unit), nil
	case BILLING_PERIOD_ANNUAL:
		return addMonthsAnchored(currentPeriodStart, billingAnchor, 12*unit), nil
	default:
		return currentPeriodStart, fmt.Errorf("invalid billing period type: %s", period)
	}
}

func addMonthsAnchored(start, anchor time.Time, months int) time.Time {
	if anchor.IsZero() {
		anchor = start
	}

	y, m, _ := start.Date()
	h, min, sec := start.Clock()

	// normalise through the first of the month so time.Date does not
	// overflow into the following month before clamping
	target := time.Date(y, m, 1, 0, 0, 0, 0, start.Location()).AddDate(0, months, 0)

	day := anchor.In(start.Location()).Day()
	if last := DaysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, h, min, sec, start.Nanosecond(), start.Location())
}

// DaysInMonth returns the number of days in the given month
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ResetInterval is the cadence at which a usage counter returns to zero.
// Daily, weekly, monthly and yearly allotments map to DAILY, WEEKLY, MONTHLY
// and ANNUAL. A one-time allotment is NEVER with a numeric limit. Unlimited
// is a nil allotment, which never overruns whatever the interval; it is
// normally paired with NEVER.
type ResetInterval string

const (
	RESET_INTERVAL_NEVER   ResetInterval = "NEVER"
	RESET_INTERVAL_DAILY   ResetInterval = "DAILY"
	RESET_INTERVAL_WEEKLY  ResetInterval = "WEEKLY"
	RESET_INTERVAL_MONTHLY ResetInterval = "MONTHLY"
	RESET_INTERVAL_ANNUAL  ResetInterval = "ANNUAL"
	// RESET_INTERVAL_BILLING_PERIOD resets on every successful renewal
	RESET_INTERVAL_BILLING_PERIOD ResetInterval = "BILLING_PERIOD"
)

func (r ResetInterval) Validate() error {
	switch r {
	case RESET_INTERVAL_NEVER, RESET_INTERVAL_DAILY, RESET_INTERVAL_WEEKLY,
		RESET_INTERVAL_MONTHLY, RESET_INTERVAL_ANNUAL, RESET_INTERVAL_BILLING_PERIOD:
		return nil
	}
	return fmt.Errorf("invalid reset interval: %s", r)
}

// NextResetAt returns the next reset time after from, anchored on anchor for
// calendar intervals. Intervals that do not reset on a clock return nil.
func (r ResetInterval) NextResetAt(from, anchor time.Time) *time.Time {
	var next time.Time
	switch r {
	case RESET_INTERVAL_DAILY:
		next = from.AddDate(0, 0, 1)
	case RESET_INTERVAL_WEEKLY:
		next = from.AddDate(0, 0, 7)
	case RESET_INTERVAL_MONTHLY:
		next = addMonthsAnchored(from, anchor, 1)
	case RESET_INTERVAL_ANNUAL:
		next = addMonthsAnchored(from, anchor, 12)
	default:
		return nil
	}
	return &next
}
