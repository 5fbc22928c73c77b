package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

// IntentStore is an in-process IntentStore. A single mutex serialises every
// operation, which gives ClaimDue the same exclusivity as the SQL claim.
type IntentStore struct {
	mu      sync.Mutex
	intents map[string]*model.Intent
}

var _ repository.IntentStore = (*IntentStore)(nil)

func NewIntentStore() *IntentStore {
	return &IntentStore{intents: make(map[string]*model.Intent)}
}

func (s *IntentStore) Create(_ context.Context, intent model.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.ID]; exists {
		return fmt.Errorf("intent %s: %w", intent.ID, repository.ErrDuplicateKey)
	}
	c := intent.Clone()
	s.intents[intent.ID] = &c
	return nil
}

func (s *IntentStore) Get(_ context.Context, id string) (*model.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.intents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := it.Clone()
	return &c, nil
}

func (s *IntentStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]model.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*model.Intent
	for _, it := range s.intents {
		if it.Status == model.StatusPending && it.NextEligibleAt != nil && !it.NextEligibleAt.After(now) {
			due = append(due, it)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextEligibleAt.Equal(*due[j].NextEligibleAt) {
			return due[i].NextEligibleAt.Before(*due[j].NextEligibleAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]model.Intent, 0, len(due))
	for _, it := range due {
		it.Status = model.StatusProcessing
		t := now
		it.ClaimedAt = &t
		claimed = append(claimed, it.Clone())
	}
	return claimed, nil
}

func (s *IntentStore) Commit(_ context.Context, id string, o model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.intents[id]
	if !ok || it.Status != model.StatusProcessing {
		return fmt.Errorf("intent %s: %w", id, repository.ErrNotProcessing)
	}

	it.Status = o.Status
	evaluated := o.EvaluatedAt
	it.LastEvaluatedAt = &evaluated
	it.ClaimedAt = nil

	switch {
	case o.ConsumeSignal && it.CopyTrade != nil:
		if len(it.CopyTrade.Signals) > 0 {
			it.CopyTrade.Signals = append([]model.TradeSignal(nil), it.CopyTrade.Signals[1:]...)
		}
		if len(it.CopyTrade.Signals) > 0 {
			next := o.EvaluatedAt
			it.NextEligibleAt = &next
		} else {
			it.NextEligibleAt = nil
		}
	case o.NextEligibleAt != nil:
		next := *o.NextEligibleAt
		it.NextEligibleAt = &next
	}

	if o.RetryCount != nil {
		it.RetryCount = *o.RetryCount
	}
	if o.TradeRef != nil {
		ref := *o.TradeRef
		it.TradeRef = &ref
	}
	switch {
	case o.FailureReason != nil:
		reason := *o.FailureReason
		it.FailureReason = &reason
	case o.ClearFailureReason:
		it.FailureReason = nil
	}
	if it.DCA != nil {
		if o.ExecutedOrders != nil {
			it.DCA.ExecutedOrders = *o.ExecutedOrders
		}
		if o.LastExecutedAt != nil {
			last := *o.LastExecutedAt
			it.DCA.LastExecutedAt = &last
		}
	}
	return nil
}

func (s *IntentStore) ReclaimStale(_ context.Context, now time.Time, threshold time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-threshold)
	n := 0
	for _, it := range s.intents {
		if it.Status == model.StatusProcessing && it.ClaimedAt != nil && it.ClaimedAt.Before(cutoff) {
			it.Status = model.StatusPending
			it.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *IntentStore) Cancel(_ context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.intents[id]
	if !ok || it.UserID != userID {
		return false, repository.ErrNotFound
	}
	switch it.Status {
	case model.StatusPending:
		it.Status = model.StatusCancelled
		it.NextEligibleAt = nil
		return true, nil
	case model.StatusProcessing:
		return false, repository.ErrIntentBusy
	}
	return false, nil
}

func (s *IntentStore) FindByUser(_ context.Context, userID string) ([]model.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Intent
	for _, it := range s.intents {
		if it.UserID == userID {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *IntentStore) AppendSignal(_ context.Context, traderAddress string, signal model.TradeSignal, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.intents {
		if !it.Active() || it.CopyTrade == nil || it.CopyTrade.TraderAddress != traderAddress {
			continue
		}
		if queued(it.CopyTrade.Signals, signal.Signature) {
			continue
		}
		it.CopyTrade.Signals = append(it.CopyTrade.Signals, signal)
		if it.NextEligibleAt == nil {
			t := now
			it.NextEligibleAt = &t
		}
		n++
	}
	return n, nil
}

func queued(signals []model.TradeSignal, signature string) bool {
	for _, s := range signals {
		if s.Signature == signature {
			return true
		}
	}
	return false
}
