package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/billing/internal/payment"
	"github.com/flexprice/billing/internal/types"
)

// ChargeOutcome is one scripted answer of a ScriptedProvider
type ChargeOutcome struct {
	Result *payment.Result
	Err    error
}

// OutcomeSucceed answers with a successful charge
func OutcomeSucceed(reference string) ChargeOutcome {
	return ChargeOutcome{Result: &payment.Result{Status: types.PaymentStatusSucceeded, Reference: reference}}
}

// OutcomeRequiresAction answers with a pending customer authentication
func OutcomeRequiresAction(reference string) ChargeOutcome {
	return ChargeOutcome{Result: &payment.Result{
		Status:       types.PaymentStatusRequiresAction,
		Reference:    reference,
		ResponseCode: "authentication_required",
	}}
}

// OutcomeDecline answers with a permanent decline
func OutcomeDecline(name types.PaymentProvider, code string) ChargeOutcome {
	return ChargeOutcome{Err: payment.NewDecline(name, code, "card was declined")}
}

// OutcomeTransient answers with a retryable provider failure
func OutcomeTransient(name types.PaymentProvider, code string) ChargeOutcome {
	return ChargeOutcome{Err: payment.NewTransient(name, code, "provider unavailable")}
}

// ScriptedProvider is a payment.Provider that answers from a queue. Once the
// queue is drained it keeps returning Fallback.
type ScriptedProvider struct {
	mu       sync.Mutex
	name     types.PaymentProvider
	queue    []ChargeOutcome
	Fallback ChargeOutcome
	// Unavailable is returned from Available when set
	Unavailable error
	requests    []payment.ChargeRequest
}

func NewScriptedProvider(name types.PaymentProvider, outcomes ...ChargeOutcome) *ScriptedProvider {
	return &ScriptedProvider{
		name:     name,
		queue:    outcomes,
		Fallback: OutcomeSucceed("ref_" + string(name)),
	}
}

func (p *ScriptedProvider) Name() types.PaymentProvider {
	return p.name
}

func (p *ScriptedProvider) Available() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Unavailable
}

// Push queues more outcomes
func (p *ScriptedProvider) Push(outcomes ...ChargeOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, outcomes...)
}

func (p *ScriptedProvider) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, *req)
	outcome := p.Fallback
	if len(p.queue) > 0 {
		outcome = p.queue[0]
		p.queue = p.queue[1:]
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	res := *outcome.Result
	return &res, nil
}

// Requests returns every charge request received, in order
func (p *ScriptedProvider) Requests() []payment.ChargeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment.ChargeRequest(nil), p.requests...)
}

// Calls returns how many charges were attempted
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

var _ payment.Provider = (*ScriptedProvider)(nil)
