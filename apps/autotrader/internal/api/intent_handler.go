package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

// IntentHandler handles intent registration, listing and cancellation
type IntentHandler struct {
	responder
	intents repository.IntentStore
	users   repository.UserStore
	wallets repository.WalletStore
	now     func() time.Time
}

func NewIntentHandler(intents repository.IntentStore, users repository.UserStore, wallets repository.WalletStore, logger *zap.Logger) *IntentHandler {
	return &IntentHandler{
		responder: responder{logger: logger},
		intents:   intents,
		users:     users,
		wallets:   wallets,
		now:       time.Now,
	}
}

// CreateIntent handles POST /api/intents
func (h *IntentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req CreateIntentRequest
	if !h.decode(w, r, &req) {
		return
	}

	intent, err := buildIntent(req, h.now().UTC())
	if err == nil {
		err = intent.Validate()
	}
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	if _, err := h.users.GetUser(r.Context(), intent.UserID); err != nil {
		h.writeLookupError(w, err, "user_not_found", "User not found")
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), intent.WalletRef)
	if err == nil && wallet.UserID != intent.UserID {
		err = repository.ErrNotFound
	}
	if err != nil {
		h.writeLookupError(w, err, "wallet_not_found", "Wallet not found for user")
		return
	}

	if err := h.intents.Create(r.Context(), intent); err != nil {
		h.logger.Error("Failed to create intent", zap.String("user_id", intent.UserID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to create intent")
		return
	}

	h.logger.Info("Registered intent",
		zap.String("intent_id", intent.ID),
		zap.String("user_id", intent.UserID),
		zap.String("kind", string(intent.Kind)))
	h.writeJSONResponse(w, http.StatusCreated, toIntentResponse(intent))
}

// ListIntents handles GET /api/users/{id}/intents
func (h *IntentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	intents, err := h.intents.FindByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list intents", zap.String("user_id", userID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to list intents")
		return
	}

	resp := make([]IntentResponse, 0, len(intents))
	for _, intent := range intents {
		resp = append(resp, toIntentResponse(intent))
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// CancelIntent handles DELETE /api/intents/{id}?user_id=. Stopping a copy trade is a cancel.
func (h *IntentHandler) CancelIntent(w http.ResponseWriter, r *http.Request) {
	intentID := mux.Vars(r)["id"]
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_user_id", "user_id query parameter is required")
		return
	}

	cancelled, err := h.intents.Cancel(r.Context(), intentID, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "intent_not_found", "Intent not found")
		return
	case errors.Is(err, repository.ErrIntentBusy):
		h.writeErrorResponse(w, http.StatusConflict, "intent_busy", "Intent is executing, try again shortly")
		return
	case err != nil:
		h.logger.Error("Failed to cancel intent", zap.String("intent_id", intentID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to cancel intent")
		return
	}

	intent, err := h.intents.Get(r.Context(), intentID)
	if err != nil {
		h.writeLookupError(w, err, "intent_not_found", "Intent not found")
		return
	}
	if cancelled {
		h.logger.Info("Cancelled intent", zap.String("intent_id", intentID), zap.String("user_id", userID))
	}
	h.writeJSONResponse(w, http.StatusOK, CancelIntentResponse{Cancelled: cancelled, Intent: toIntentResponse(*intent)})
}

func (h *IntentHandler) writeLookupError(w http.ResponseWriter, err error, code, message string) {
	if errors.Is(err, repository.ErrNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, code, message)
		return
	}
	h.logger.Error("Lookup failed", zap.String("error_code", code), zap.Error(err))
	h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to load "+strings.TrimSuffix(code, "_not_found"))
}

// buildIntent converts the request into a pending intent. Parameter presence and
// ranges are left to Intent.Validate.
func buildIntent(req CreateIntentRequest, now time.Time) (model.Intent, error) {
	intent := model.Intent{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		WalletRef:    req.WalletID,
		TokenAddress: strings.TrimSpace(req.TokenAddress),
		Kind:         model.IntentKind(strings.ToLower(req.Kind)),
		Status:       model.StatusPending,
		CreatedAt:    now,
		ExpiresAt:    req.ExpiresAt,
	}

	var err error
	switch intent.Kind {
	case model.KindSnipe:
		if req.Snipe != nil {
			intent.Snipe, err = buildSnipe(*req.Snipe)
		}
	case model.KindLimit:
		if req.Limit != nil {
			intent.Limit, err = buildLimit(*req.Limit)
		}
	case model.KindDCA:
		if req.DCA != nil {
			intent.DCA, err = buildDCA(*req.DCA)
		}
	case model.KindCopyTrade:
		intent.TokenAddress = ""
		if req.CopyTrade != nil {
			intent.CopyTrade, err = buildCopyTrade(*req.CopyTrade)
		}
	}
	if err != nil {
		return model.Intent{}, err
	}

	// copy trades wait for their first signal
	if intent.Kind != model.KindCopyTrade {
		eligible := now
		intent.NextEligibleAt = &eligible
	}
	return intent, nil
}

func buildSnipe(req SnipeRequest) (*model.SnipeParams, error) {
	amount, err := model.ParsePositive("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	p := &model.SnipeParams{Amount: amount}
	switch strings.ToLower(req.Mode) {
	case "", "absolute", "regular":
		p.Mode = model.SnipeAbsolute
		p.Threshold, err = model.ParsePositive("max_price", req.MaxPrice)
	case "percentage", "pumpfun":
		p.Mode = model.SnipePercentage
		p.Threshold, err = model.ParsePositive("target_percentage", req.TargetPercentage)
	default:
		p.Mode = model.SnipeMode(req.Mode)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func buildLimit(req LimitRequest) (*model.LimitParams, error) {
	amount, err := model.ParsePositive("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	price, err := model.ParsePositive("price", req.Price)
	if err != nil {
		return nil, err
	}
	return &model.LimitParams{
		Side:         model.Side(strings.ToLower(req.Side)),
		Amount:       amount,
		TriggerPrice: price,
	}, nil
}

func buildDCA(req DCARequest) (*model.DCAParams, error) {
	total, err := model.ParsePositive("total_amount", req.TotalAmount)
	if err != nil {
		return nil, err
	}

	var interval time.Duration
	switch {
	case req.IntervalHours != "":
		interval, err = parseInterval("interval_hours", req.IntervalHours, time.Hour)
	case req.IntervalSeconds != "":
		interval, err = parseInterval("interval_seconds", req.IntervalSeconds, time.Second)
	default:
		err = &model.ValidationError{Field: "interval", Message: "interval_hours or interval_seconds is required"}
	}
	if err != nil {
		return nil, err
	}

	return &model.DCAParams{
		TotalAmount:   total,
		Interval:      interval,
		PlannedOrders: req.NumberOfOrders,
	}, nil
}

// parseInterval converts a count of units to a duration, bounded before the
// conversion so large inputs cannot overflow.
func parseInterval(field, raw string, unit time.Duration) (time.Duration, error) {
	n, err := model.ParsePositive(field, raw)
	if err != nil {
		return 0, err
	}
	d := n.Mul(decimal.NewFromInt(int64(unit)))
	if d.GreaterThan(decimal.NewFromInt(int64(model.MaxDCAInterval))) {
		return 0, &model.ValidationError{Field: field, Message: fmt.Sprintf("must be at most %s", model.MaxDCAInterval)}
	}
	return time.Duration(d.IntPart()), nil
}

func buildCopyTrade(req CopyTradeRequest) (*model.CopyTradeParams, error) {
	maxAmount, err := model.ParsePositive("max_amount_per_trade", req.MaxAmountPerTrade)
	if err != nil {
		return nil, err
	}
	return &model.CopyTradeParams{
		TraderAddress:     strings.TrimSpace(req.TraderAddress),
		MaxAmountPerTrade: maxAmount,
	}, nil
}
