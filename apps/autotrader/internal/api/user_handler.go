package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

// UserHandler handles users, referrals, settings and wallets
type UserHandler struct {
	responder
	users   repository.UserStore
	wallets repository.WalletStore
}

func NewUserHandler(users repository.UserStore, wallets repository.WalletStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{responder: responder{logger: logger}, users: users, wallets: wallets}
}

// CreateUser handles POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TelegramID <= 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_telegram_id", "Telegram id is required")
		return
	}

	user := model.User{
		ID:           uuid.New().String(),
		TelegramID:   req.TelegramID,
		ReferralCode: model.NewReferralCode(),
		Settings:     model.DefaultSettings(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			h.writeErrorResponse(w, http.StatusConflict, "user_exists", "User already registered")
			return
		}
		h.logger.Error("Failed to create user", zap.Int64("telegram_id", req.TelegramID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to create user")
		return
	}

	h.logger.Info("Registered user", zap.String("user_id", user.ID), zap.Int64("telegram_id", user.TelegramID))
	h.writeJSONResponse(w, http.StatusCreated, toUserResponse(&user))
}

// GetUser handles GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toUserResponse(user))
}

// SetReferrer handles PUT /api/users/{id}/referrer
func (h *UserHandler) SetReferrer(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req SetReferrerRequest
	if !h.decode(w, r, &req) {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
	if code == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_referral_code", "Referral code is required")
		return
	}

	err := h.users.SetReferrer(r.Context(), userID, code)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	case errors.Is(err, repository.ErrReferralAlreadySet):
		h.writeErrorResponse(w, http.StatusConflict, "referrer_already_set", "Referrer can only be set once")
		return
	case errors.Is(err, repository.ErrInvalidReferrer):
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_referral_code", "Referral code does not belong to another user")
		return
	case err != nil:
		h.logger.Error("Failed to set referrer", zap.String("user_id", userID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to set referrer")
		return
	}

	h.GetUser(w, r)
}

// UpdateSettings handles PUT /api/users/{id}/settings
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}

	settings := user.Settings
	if req.Slippage != nil {
		slippage, err := model.ParseDecimal("slippage", *req.Slippage)
		if err == nil {
			err = model.ValidateSlippage(slippage)
		}
		if err != nil {
			h.writeValidationError(w, err)
			return
		}
		settings.Slippage = slippage
	}
	if req.AutoBuy != nil {
		settings.AutoBuy = *req.AutoBuy
	}
	if req.AutoSell != nil {
		settings.AutoSell = *req.AutoSell
	}

	if err := h.users.UpdateSettings(r.Context(), user.ID, settings); err != nil {
		h.logger.Error("Failed to update settings", zap.String("user_id", user.ID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to update settings")
		return
	}
	user.Settings = settings
	h.writeJSONResponse(w, http.StatusOK, toUserResponse(user))
}

// AddWallet handles POST /api/users/{id}/wallets
func (h *UserHandler) AddWallet(w http.ResponseWriter, r *http.Request) {
	var req AddWalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	if err := model.ValidateWalletAddress(strings.TrimSpace(req.Address)); err != nil {
		h.writeValidationError(w, err)
		return
	}

	wallet := model.Wallet{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Address:   strings.TrimSpace(req.Address),
		SignerRef: req.SignerRef,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.wallets.AddWallet(r.Context(), wallet); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			h.writeErrorResponse(w, http.StatusConflict, "wallet_exists", "Wallet already registered")
			return
		}
		h.logger.Error("Failed to add wallet", zap.String("user_id", user.ID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to add wallet")
		return
	}

	h.logger.Info("Added wallet", zap.String("user_id", user.ID), zap.String("wallet_id", wallet.ID))
	h.writeJSONResponse(w, http.StatusCreated, toWalletResponse(wallet))
}

// ListWallets handles GET /api/users/{id}/wallets
func (h *UserHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	wallets, err := h.wallets.ListWallets(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to list wallets", zap.String("user_id", user.ID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to list wallets")
		return
	}

	resp := make([]WalletResponse, 0, len(wallets))
	for _, wallet := range wallets {
		resp = append(resp, toWalletResponse(wallet))
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *UserHandler) loadUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	userID := mux.Vars(r)["id"]
	user, err := h.users.GetUser(r.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, "user_not_found", "User not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get user", zap.String("user_id", userID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to retrieve user")
		return nil, false
	}
	return user, true
}
