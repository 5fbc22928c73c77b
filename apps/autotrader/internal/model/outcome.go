package model

import "time"

// Outcome describes how a processing intent leaves its claim. Nil fields keep the
// stored value, so a no-op commit only touches status and evaluation time.
type Outcome struct {
	Status         IntentStatus
	EvaluatedAt    time.Time
	NextEligibleAt *time.Time
	RetryCount     *int
	TradeRef       *string
	FailureReason  *string
	ExecutedOrders *int
	LastExecutedAt *time.Time
	// ClearFailureReason removes the reason left by an earlier failed firing.
	// FailureReason wins when both are set.
	ClearFailureReason bool
	// ConsumeSignal drops the oldest queued copy-trade signal. Eligibility is then
	// recomputed from whatever signals remain.
	ConsumeSignal bool
}
