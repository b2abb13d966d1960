package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypesCSVMatches(t *testing.T) {
	tests := []struct {
		name      string
		csv       string
		eventType string
		want      bool
	}{
		{"empty subscribes to everything", "", EventInvoicePaid, true},
		{"blank entries only subscribe to everything", " , ,", EventInvoicePaid, true},
		{"listed", "invoice.paid,subscription.renewed", EventSubscriptionRenewed, true},
		{"whitespace tolerated", " invoice.paid , subscription.renewed ", EventInvoicePaid, true},
		{"not listed", "invoice.paid", EventSubscriptionCanceled, false},
		{"no prefix matching", "invoice", EventInvoicePaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventTypesCSVMatches(tt.csv, tt.eventType))
		})
	}
}

func TestSubscriptionStatus(t *testing.T) {
	assert.True(t, SubscriptionStatusPastDue.IsLive())
	assert.False(t, SubscriptionStatusCanceled.IsLive())
	assert.True(t, SubscriptionStatusExpired.IsTerminal())
	assert.Error(t, SubscriptionStatus("paused").Validate())
}
