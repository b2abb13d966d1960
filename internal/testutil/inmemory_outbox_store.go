package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/billing/internal/domain/outbox"
	ierr "github.com/flexprice/billing/internal/errors"
)

// InMemoryOutboxStore implements outbox.Repository
type InMemoryOutboxStore struct {
	*InMemoryStore[*outbox.Message]
}

func NewInMemoryOutboxStore() *InMemoryOutboxStore {
	return &InMemoryOutboxStore{InMemoryStore: NewInMemoryStore[*outbox.Message]()}
}

func copyMessage(msg *outbox.Message) *outbox.Message {
	cp := *msg
	return &cp
}

func (s *InMemoryOutboxStore) Create(ctx context.Context, msg *outbox.Message) error {
	return s.InMemoryStore.Create(ctx, msg.ID, copyMessage(msg))
}

func (s *InMemoryOutboxStore) Get(ctx context.Context, id string) (*outbox.Message, error) {
	msg, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyMessage(msg), nil
}

func (s *InMemoryOutboxStore) ClaimPending(ctx context.Context, params outbox.ClaimParams) ([]*outbox.Message, error) {
	var claimed []*outbox.Message
	s.Mutate(func(items map[string]*outbox.Message) {
		var pending []*outbox.Message
		for _, msg := range items {
			if msg.ProcessedAt != nil || msg.Retries >= params.MaxRetries {
				continue
			}
			if msg.LeaseUntil != nil && msg.LeaseUntil.After(params.Now) {
				continue
			}
			pending = append(pending, msg)
		}
		sort.SliceStable(pending, func(i, j int) bool {
			if pending[i].OccurredAt.Equal(pending[j].OccurredAt) {
				return pending[i].ID < pending[j].ID
			}
			return pending[i].OccurredAt.Before(pending[j].OccurredAt)
		})
		if params.Limit > 0 && len(pending) > params.Limit {
			pending = pending[:params.Limit]
		}
		for _, msg := range pending {
			lease := params.LeaseUntil
			msg.LeaseUntil = &lease
			claimed = append(claimed, copyMessage(msg))
		}
	})
	return claimed, nil
}

func (s *InMemoryOutboxStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	return s.update(id, func(msg *outbox.Message) {
		if msg.ProcessedAt != nil {
			return
		}
		msg.ProcessedAt = &processedAt
		msg.LeaseUntil = nil
		msg.LastError = nil
	})
}

func (s *InMemoryOutboxStore) MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	return s.update(id, func(msg *outbox.Message) {
		if msg.ProcessedAt != nil {
			return
		}
		msg.Retries++
		msg.LastError = &lastError
		msg.LeaseUntil = &nextAttemptAt
	})
}

func (s *InMemoryOutboxStore) Defer(ctx context.Context, id string, reason string, nextAttemptAt time.Time) error {
	return s.update(id, func(msg *outbox.Message) {
		if msg.ProcessedAt != nil {
			return
		}
		msg.LastError = &reason
		msg.LeaseUntil = &nextAttemptAt
	})
}

func (s *InMemoryOutboxStore) update(id string, fn func(msg *outbox.Message)) error {
	var err error
	s.Mutate(func(items map[string]*outbox.Message) {
		msg, ok := items[id]
		if !ok {
			err = ierr.NewErrorf("outbox message %s not found", id).Mark(ierr.ErrNotFound)
			return
		}
		fn(msg)
	})
	return err
}

// ListByType returns recorded messages of eventType in occurrence order
func (s *InMemoryOutboxStore) ListByType(ctx context.Context, eventType string) []*outbox.Message {
	msgs, _ := s.List(ctx, nil, func(_ context.Context, msg *outbox.Message, _ interface{}) bool {
		return eventType == "" || msg.EventType == eventType
	}, func(i, j *outbox.Message) bool {
		if i.OccurredAt.Equal(j.OccurredAt) {
			return i.ID < j.ID
		}
		return i.OccurredAt.Before(j.OccurredAt)
	})
	return msgs
}

// EventTypes returns the event types of all recorded messages in order
func (s *InMemoryOutboxStore) EventTypes(ctx context.Context) []string {
	msgs := s.ListByType(ctx, "")
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.EventType
	}
	return out
}

var _ outbox.Repository = (*InMemoryOutboxStore)(nil)
