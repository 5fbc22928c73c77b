package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
)

type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var (
	_ UserStore   = (*UserRepository)(nil)
	_ WalletStore = (*UserRepository)(nil)
)

func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) CreateUser(ctx context.Context, user model.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, telegram_id, referral_code, slippage, auto_buy, auto_sell, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.TelegramID, user.ReferralCode, user.Settings.Slippage, user.Settings.AutoBuy,
		user.Settings.AutoSell, user.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("user %d: %w", user.TelegramID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Info("Created user",
		zap.String("user_id", user.ID),
		zap.String("referral_code", user.ReferralCode))
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, telegram_id, referral_code, referred_by, slippage, auto_buy, auto_sell, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.TelegramID, &user.ReferralCode, &user.ReferredBy, &user.Settings.Slippage,
		&user.Settings.AutoBuy, &user.Settings.AutoSell, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) SetReferrer(ctx context.Context, userID, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET referred_by = $2
		WHERE id = $1
			AND referred_by IS NULL
			AND referral_code <> $2
			AND EXISTS (SELECT 1 FROM users referrer WHERE referrer.referral_code = $2)
	`, userID, code)
	if err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.logger.Info("Set referrer", zap.String("user_id", userID), zap.String("referred_by", code))
		return nil
	}

	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ReferredBy != nil {
		return ErrReferralAlreadySet
	}
	return ErrInvalidReferrer
}

func (r *UserRepository) UpdateSettings(ctx context.Context, userID string, settings model.Settings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET slippage = $2, auto_buy = $3, auto_sell = $4
		WHERE id = $1
	`, userID, settings.Slippage, settings.AutoBuy, settings.AutoSell)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) AddWallet(ctx context.Context, wallet model.Wallet) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, address, signer_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, wallet.ID, wallet.UserID, wallet.Address, wallet.SignerRef, wallet.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("wallet %s: %w", wallet.Address, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to add wallet: %w", err)
	}

	r.logger.Info("Added wallet",
		zap.String("user_id", wallet.UserID),
		zap.String("wallet_id", wallet.ID),
		zap.String("address", wallet.Address))
	return nil
}

func (r *UserRepository) GetWallet(ctx context.Context, id string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, address, signer_ref, created_at FROM wallets WHERE id = $1
	`, id).Scan(&w.ID, &w.UserID, &w.Address, &w.SignerRef, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (r *UserRepository) ListWallets(ctx context.Context, userID string) ([]model.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, address, signer_ref, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &w.SignerRef, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}
	return wallets, nil
}
