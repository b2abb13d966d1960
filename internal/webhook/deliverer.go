package webhook

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flexprice/billing/internal/config"
	domainWebhook "github.com/flexprice/billing/internal/domain/webhook"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/httpclient"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/retry"
	"github.com/flexprice/billing/internal/sentry"
	"github.com/flexprice/billing/internal/types"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// Deliverer posts signed payloads to endpoints and appends one Delivery row
// per attempt
type Deliverer struct {
	client  httpclient.Client
	repo    domainWebhook.DeliveryRepository
	limiter *rate.Limiter
	cfg     config.Webhook
	policy  *retry.Policy
	clock   types.Clock
	logger  *logger.Logger
	sentry  *sentry.Service
}

func NewDeliverer(
	cfg *config.Configuration,
	repo domainWebhook.DeliveryRepository,
	clock types.Clock,
	logger *logger.Logger,
	sentry *sentry.Service,
) *Deliverer {
	return &Deliverer{
		client: httpclient.NewClient(httpclient.ClientConfig{
			Timeout:         cfg.Webhook.Timeout,
			FollowRedirects: false,
		}),
		repo:    repo,
		limiter: rate.NewLimiter(rate.Limit(cfg.Webhook.RateLimit), cfg.Webhook.Burst),
		cfg:     cfg.Webhook,
		policy:  retry.NewPolicy(cfg.Webhook.Backoff),
		clock:   clock,
		logger:  logger,
		sentry:  sentry,
	}
}

// attempt is the raw outcome of one POST
type attempt struct {
	statusCode *int
	body       string
	err        error
	duration   time.Duration
}

func (a *attempt) succeeded() bool {
	return a.err == nil && a.statusCode != nil && *a.statusCode >= 200 && *a.statusCode < 300
}

func (a *attempt) errorMessage() string {
	switch {
	case a.err != nil:
		return a.err.Error()
	case a.statusCode == nil:
		return "no response"
	case *a.statusCode >= 300 && *a.statusCode < 400:
		return "endpoint answered with a redirect"
	default:
		return "endpoint answered with status " + strconv.Itoa(*a.statusCode)
	}
}

// Deliver sends payload for eventID to endpoint. retryCount is the index of
// this attempt, 0 for the first. A failed attempt is rescheduled
// base*2^(retryCount+1) later until MaxRetries, after which the delivery is
// marked permanently failed. The returned error is reserved for rate limiter
// cancellation and persistence failures; endpoint failures are recorded on
// the Delivery.
func (d *Deliverer) Deliver(
	ctx context.Context,
	endpoint *domainWebhook.Endpoint,
	eventID, eventType string,
	payload []byte,
	retryCount int,
) (*domainWebhook.Delivery, error) {
	res, err := d.post(ctx, endpoint, eventID, eventType, payload)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	delivery := &domainWebhook.Delivery{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_DELIVERY),
		TenantID:           endpoint.TenantID,
		EndpointID:         endpoint.ID,
		EventID:            eventID,
		EventType:          eventType,
		Payload:            payload,
		AttemptedAt:        now,
		ResponseStatusCode: res.statusCode,
		ResponseBody:       res.body,
		RetryCount:         retryCount,
		Success:            res.succeeded(),
		CreatedAt:          now,
	}

	log := d.logger.With(
		"endpoint_id", endpoint.ID,
		"event_id", eventID,
		"event_type", eventType,
		"retry_count", retryCount,
	)

	if !delivery.Success {
		delivery.Error = lo.ToPtr(res.errorMessage())
		if retryCount >= d.cfg.MaxRetries {
			delivery.PermanentlyFailed = true
		} else {
			// indexed by failures so far, as renewal retries are
			delivery.NextRetryAt = lo.ToPtr(d.policy.NextRetryAt(now, retryCount+1))
		}
	}

	if err := d.repo.Create(ctx, delivery); err != nil {
		log.Errorw("failed to record webhook delivery", "error", err)
		return nil, err
	}

	switch {
	case delivery.Success:
		log.Infow("webhook delivered", "status_code", lo.FromPtr(res.statusCode), "duration", res.duration)
	case delivery.PermanentlyFailed:
		log.Errorw("webhook permanently failed", "error", *delivery.Error)
		d.sentry.CaptureWithTags(ctx,
			ierr.NewErrorf("webhook delivery to %s permanently failed: %s", endpoint.URL, *delivery.Error).
				WithReportableDetails(map[string]any{"endpoint_id": endpoint.ID, "event_id": eventID}).
				Mark(ierr.ErrHTTPClient),
			map[string]string{
				"tenant_id":   endpoint.TenantID,
				"endpoint_id": endpoint.ID,
				"event_type":  eventType,
			})
	default:
		log.Warnw("webhook delivery failed, will retry",
			"error", *delivery.Error,
			"next_retry_at", delivery.NextRetryAt,
		)
	}

	return delivery, nil
}

// post signs and sends one request. Only rate limiter cancellation is
// returned as an error.
func (d *Deliverer) post(ctx context.Context, endpoint *domainWebhook.Endpoint, eventID, eventType string, payload []byte) (*attempt, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Webhook delivery was cancelled").
			Mark(ierr.ErrSystem)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	timestamp := d.clock.Now().Unix()
	req := &httpclient.Request{
		Method: http.MethodPost,
		URL:    endpoint.URL,
		Headers: map[string]string{
			HeaderSignature: Sign(endpoint.Secret, timestamp, payload),
			HeaderTimestamp: strconv.FormatInt(timestamp, 10),
			HeaderID:        eventID,
			HeaderEvent:     eventType,
			"User-Agent":    "billing-webhooks/1.0",
		},
		Body: payload,
	}

	start := time.Now()
	resp, err := d.client.Send(ctx, req)
	res := &attempt{duration: time.Since(start)}

	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			res.statusCode = lo.ToPtr(httpErr.StatusCode)
			res.body = d.truncate(httpErr.Response)
			return res, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ierr.WithError(err).
				WithHintf("Endpoint did not answer within %s", d.cfg.Timeout).
				Mark(ierr.ErrHTTPClient)
		}
		res.err = err
		return res, nil
	}

	res.statusCode = lo.ToPtr(resp.StatusCode)
	res.body = d.truncate(resp.Body)
	return res, nil
}

func (d *Deliverer) truncate(body []byte) string {
	if len(body) > d.cfg.ResponseBodyLimit {
		body = body[:d.cfg.ResponseBodyLimit]
	}
	return strings.ToValidUTF8(string(body), "")
}

// PingResult is the raw answer of an endpoint to a synthetic event
type PingResult struct {
	StatusCode *int   `json:"status_code,omitempty"`
	Body       string `json:"body"`
	// Reachable is true whenever the endpoint answered at all, including 4xx
	// rejections of the payload
	Reachable  bool   `json:"reachable"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Ping sends a signed payload without recording a delivery
func (d *Deliverer) Ping(ctx context.Context, endpoint *domainWebhook.Endpoint, eventID string, payload []byte) (*PingResult, error) {
	res, err := d.post(ctx, endpoint, eventID, types.EventWebhookPing, payload)
	if err != nil {
		return nil, err
	}

	out := &PingResult{
		StatusCode: res.statusCode,
		Body:       res.body,
		Reachable:  res.statusCode != nil,
		Success:    res.succeeded(),
		DurationMs: res.duration.Milliseconds(),
	}
	if !out.Success {
		out.Error = res.errorMessage()
	}
	return out, nil
}
