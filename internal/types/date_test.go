package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ist = time.FixedZone("IST", 5*60*60+30*60)
	pst = time.FixedZone("PST", -8*60*60)
)

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name          string
		currentPeriod time.Time
		billingAnchor time.Time
		unit          int
		period        BillingPeriod
		want          time.Time
		wantErr       bool
		errMsg        string
	}{
		{
			name:          "daily crosses month boundary",
			currentPeriod: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			unit:          5,
			period:        BILLING_PERIOD_DAILY,
			want:          time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "daily leap year february",
			currentPeriod: time.Date(2024, time.February, 27, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.February, 27, 0, 0, 0, 0, time.UTC),
			unit:          3,
			period:        BILLING_PERIOD_DAILY,
			want:          time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "weekly crosses year boundary",
			currentPeriod: time.Date(2024, time.December, 29, 10, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.December, 29, 10, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_WEEKLY,
			want:          time.Date(2025, time.January, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			name:          "monthly from jan 31 clamps to leap february",
			currentPeriod: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "monthly returns to anchor day after short month",
			currentPeriod: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "monthly clamps to 30 day month",
			currentPeriod: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "monthly non leap february",
			currentPeriod: time.Date(2023, time.January, 30, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2023, time.January, 30, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "quarterly across year",
			currentPeriod: time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
			unit:          3,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "annual from leap day",
			currentPeriod: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_ANNUAL,
			want:          time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "annual back to leap day",
			currentPeriod: time.Date(2027, time.February, 28, 0, 0, 0, 0, time.UTC),
			billingAnchor: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_ANNUAL,
			want:          time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "zero anchor falls back to period start",
			currentPeriod: time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "timezone preserved",
			currentPeriod: time.Date(2024, time.January, 31, 23, 30, 0, 0, ist),
			billingAnchor: time.Date(2024, time.January, 31, 23, 30, 0, 0, ist),
			unit:          1,
			period:        BILLING_PERIOD_MONTHLY,
			want:          time.Date(2024, time.February, 29, 23, 30, 0, 0, ist),
		},
		{
			name:          "timezone daily",
			currentPeriod: time.Date(2024, time.March, 1, 20, 0, 0, 0, pst),
			billingAnchor: time.Date(2024, time.March, 1, 20, 0, 0, 0, pst),
			unit:          1,
			period:        BILLING_PERIOD_DAILY,
			want:          time.Date(2024, time.March, 2, 20, 0, 0, 0, pst),
		},
		{
			name:          "invalid unit",
			currentPeriod: time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
			unit:          0,
			period:        BILLING_PERIOD_MONTHLY,
			wantErr:       true,
			errMsg:        "billing period unit must be a positive integer",
		},
		{
			name:          "invalid period",
			currentPeriod: time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
			unit:          1,
			period:        BillingPeriod("FORTNIGHTLY"),
			wantErr:       true,
			errMsg:        "invalid billing period type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextBillingDate(tt.currentPeriod, tt.billingAnchor, tt.unit, tt.period)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestNextBillingDate_NoDriftOverAYear(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)
	start := anchor

	want := []int{29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31, 31}
	for i, day := range want {
		end, err := NextBillingDate(start, anchor, 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.Equal(t, day, end.Day(), "period %d", i+1)
		assert.Equal(t, 9, end.Hour())
		start = end
	}
}

func TestResetInterval_NextResetAt(t *testing.T) {
	from := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, RESET_INTERVAL_NEVER.NextResetAt(from, from))
	assert.Nil(t, RESET_INTERVAL_BILLING_PERIOD.NextResetAt(from, from))

	daily := RESET_INTERVAL_DAILY.NextResetAt(from, from)
	require.NotNil(t, daily)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), *daily)

	monthly := RESET_INTERVAL_MONTHLY.NextResetAt(from, from)
	require.NotNil(t, monthly)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), *monthly)
}
