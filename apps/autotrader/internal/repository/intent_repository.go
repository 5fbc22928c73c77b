package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
)

const intentColumns = `id, user_id, wallet_ref, token_address, kind, status, payload, created_at, expires_at,
	next_eligible_at, claimed_at, last_evaluated_at, retry_count, executed_orders, last_executed_at,
	trade_ref, failure_reason`

// intentPayload is the JSONB column holding the static kind parameters. DCA
// progress lives in its own columns.
type intentPayload struct {
	Snipe     *model.SnipeParams     `json:"snipe,omitempty"`
	Limit     *model.LimitParams     `json:"limit,omitempty"`
	DCA       *dcaPayload            `json:"dca,omitempty"`
	CopyTrade *model.CopyTradeParams `json:"copy_trade,omitempty"`
}

type dcaPayload struct {
	TotalAmount     decimal.Decimal `json:"total_amount"`
	IntervalSeconds int64           `json:"interval_seconds"`
	PlannedOrders   int             `json:"planned_orders"`
}

type IntentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ IntentStore = (*IntentRepository)(nil)

func NewIntentRepository(db *sql.DB, logger *zap.Logger) *IntentRepository {
	return &IntentRepository{db: db, logger: logger}
}

func (r *IntentRepository) Create(ctx context.Context, intent model.Intent) error {
	payload, err := encodePayload(intent)
	if err != nil {
		return err
	}
	executed := 0
	var lastExecuted *time.Time
	if intent.DCA != nil {
		executed = intent.DCA.ExecutedOrders
		lastExecuted = intent.DCA.LastExecutedAt
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO intents (id, user_id, wallet_ref, token_address, kind, status, payload, created_at,
			expires_at, next_eligible_at, executed_orders, last_executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, intent.ID, intent.UserID, intent.WalletRef, intent.TokenAddress, string(intent.Kind), string(intent.Status),
		string(payload), intent.CreatedAt, intent.ExpiresAt, intent.NextEligibleAt, executed, lastExecuted)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("intent %s: %w", intent.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create intent: %w", err)
	}

	r.logger.Info("Created intent",
		zap.String("intent_id", intent.ID),
		zap.String("user_id", intent.UserID),
		zap.String("kind", string(intent.Kind)),
		zap.String("token_address", intent.TokenAddress))
	return nil
}

func (r *IntentRepository) Get(ctx context.Context, id string) (*model.Intent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id)
	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return intent, nil
}

func (r *IntentRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Intent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin claim: %w", ErrStoreUnavailable, err)
	}
	defer tx.Rollback() // ignored once committed

	rows, err := tx.QueryContext(ctx, `
		SELECT `+intentColumns+`
		FROM intents
		WHERE status = 'pending' AND next_eligible_at IS NOT NULL AND next_eligible_at <= $1
		ORDER BY next_eligible_at, created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select due intents: %w", ErrStoreUnavailable, err)
	}

	var claimed []model.Intent
	var ids []string
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: failed to scan intent: %w", ErrStoreUnavailable, err)
		}
		claimed = append(claimed, *intent)
		ids = append(ids, intent.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: error iterating due intents: %w", ErrStoreUnavailable, err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	// Rows are locked by this transaction, so the status guard only matters for
	// rows another writer touched before the lock was taken.
	if _, err := tx.ExecContext(ctx, `
		UPDATE intents
		SET status = 'processing', claimed_at = $2
		WHERE id = ANY($1) AND status = 'pending'
	`, pq.Array(ids), now); err != nil {
		return nil, fmt.Errorf("%w: failed to mark intents processing: %w", ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit claim: %w", ErrStoreUnavailable, err)
	}

	for i := range claimed {
		claimed[i].Status = model.StatusProcessing
		t := now
		claimed[i].ClaimedAt = &t
	}
	return claimed, nil
}

func (r *IntentRepository) Commit(ctx context.Context, id string, outcome model.Outcome) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intents SET
			status = $2,
			last_evaluated_at = $3,
			claimed_at = NULL,
			next_eligible_at = CASE
				WHEN $4 THEN CASE
					WHEN jsonb_array_length(COALESCE(payload->'copy_trade'->'signals', '[]'::jsonb) - 0) > 0 THEN $3
					ELSE NULL
				END
				ELSE COALESCE($5, next_eligible_at)
			END,
			retry_count = COALESCE($6, retry_count),
			trade_ref = COALESCE($7, trade_ref),
			failure_reason = CASE WHEN $11 AND $8::text IS NULL THEN NULL ELSE COALESCE($8, failure_reason) END,
			executed_orders = COALESCE($9, executed_orders),
			last_executed_at = COALESCE($10, last_executed_at),
			payload = CASE
				WHEN $4 THEN jsonb_set(payload, '{copy_trade,signals}', COALESCE(payload->'copy_trade'->'signals', '[]'::jsonb) - 0)
				ELSE payload
			END
		WHERE id = $1 AND status = 'processing'
	`, id, string(outcome.Status), outcome.EvaluatedAt, outcome.ConsumeSignal, outcome.NextEligibleAt,
		outcome.RetryCount, outcome.TradeRef, outcome.FailureReason, outcome.ExecutedOrders, outcome.LastExecutedAt,
		outcome.ClearFailureReason)
	if err != nil {
		return fmt.Errorf("failed to commit intent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read commit result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("intent %s: %w", id, ErrNotProcessing)
	}
	return nil
}

func (r *IntentRepository) ReclaimStale(ctx context.Context, now time.Time, threshold time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intents
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < $1
	`, now.Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale intents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reclaim result: %w", err)
	}
	if n > 0 {
		r.logger.Warn("Reclaimed stale intents", zap.Int64("count", n), zap.Duration("threshold", threshold))
	}
	return int(n), nil
}

func (r *IntentRepository) Cancel(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intents
		SET status = 'cancelled', next_eligible_at = NULL
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel intent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.logger.Info("Cancelled intent", zap.String("intent_id", id), zap.String("user_id", userID))
		return true, nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM intents WHERE id = $1 AND user_id = $2`, id, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to check intent status: %w", err)
	}
	if model.IntentStatus(status) == model.StatusProcessing {
		return false, ErrIntentBusy
	}
	return false, nil
}

func (r *IntentRepository) FindByUser(ctx context.Context, userID string) ([]model.Intent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+intentColumns+`
		FROM intents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find intents: %w", err)
	}
	defer rows.Close()

	var intents []model.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intents: %w", err)
	}
	return intents, nil
}

func (r *IntentRepository) AppendSignal(ctx context.Context, traderAddress string, signal model.TradeSignal, now time.Time) (int, error) {
	blob, err := json.Marshal(signal)
	if err != nil {
		return 0, fmt.Errorf("failed to encode signal: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE intents SET
			payload = jsonb_set(payload, '{copy_trade,signals}',
				COALESCE(payload->'copy_trade'->'signals', '[]'::jsonb) || jsonb_build_array($2::jsonb)),
			next_eligible_at = COALESCE(next_eligible_at, $3)
		WHERE kind = 'copy_trade'
			AND status IN ('pending', 'processing')
			AND payload->'copy_trade'->>'trader_address' = $1
			AND NOT COALESCE(payload->'copy_trade'->'signals', '[]'::jsonb) @> jsonb_build_array(jsonb_build_object('signature', $4::text))
	`, traderAddress, string(blob), now, signal.Signature)
	if err != nil {
		return 0, fmt.Errorf("failed to append copy-trade signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read append result: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(s rowScanner) (*model.Intent, error) {
	var (
		intent       model.Intent
		kind, status string
		payload      []byte
		executed     int
		lastExecuted *time.Time
	)
	if err := s.Scan(&intent.ID, &intent.UserID, &intent.WalletRef, &intent.TokenAddress, &kind, &status,
		&payload, &intent.CreatedAt, &intent.ExpiresAt, &intent.NextEligibleAt, &intent.ClaimedAt,
		&intent.LastEvaluatedAt, &intent.RetryCount, &executed, &lastExecuted, &intent.TradeRef,
		&intent.FailureReason); err != nil {
		return nil, err
	}
	intent.Kind = model.IntentKind(kind)
	intent.Status = model.IntentStatus(status)

	var p intentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload of intent %s: %w", intent.ID, err)
	}
	intent.Snipe = p.Snipe
	intent.Limit = p.Limit
	intent.CopyTrade = p.CopyTrade
	if p.DCA != nil {
		intent.DCA = &model.DCAParams{
			TotalAmount:    p.DCA.TotalAmount,
			Interval:       time.Duration(p.DCA.IntervalSeconds) * time.Second,
			PlannedOrders:  p.DCA.PlannedOrders,
			ExecutedOrders: executed,
			LastExecutedAt: lastExecuted,
		}
	}
	return &intent, nil
}

func encodePayload(intent model.Intent) ([]byte, error) {
	p := intentPayload{Snipe: intent.Snipe, Limit: intent.Limit, CopyTrade: intent.CopyTrade}
	if intent.DCA != nil {
		p.DCA = &dcaPayload{
			TotalAmount:     intent.DCA.TotalAmount,
			IntervalSeconds: int64(intent.DCA.Interval / time.Second),
			PlannedOrders:   intent.DCA.PlannedOrders,
		}
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent payload: %w", err)
	}
	return blob, nil
}
