package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

// UserStore keeps users and their wallets.
type UserStore struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	wallets map[string]model.Wallet
}

var (
	_ repository.UserStore   = (*UserStore)(nil)
	_ repository.WalletStore = (*UserStore)(nil)
)

func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]*model.User),
		wallets: make(map[string]model.Wallet),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == user.ID || u.TelegramID == user.TelegramID || u.ReferralCode == user.ReferralCode {
			return fmt.Errorf("user %d: %w", user.TelegramID, repository.ErrDuplicateKey)
		}
	}
	u := user
	u.ReferredBy = nil
	s.users[user.ID] = &u
	return nil
}

func (s *UserStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	if u.ReferredBy != nil {
		ref := *u.ReferredBy
		c.ReferredBy = &ref
	}
	return &c, nil
}

func (s *UserStore) SetReferrer(_ context.Context, userID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.ReferredBy != nil {
		return repository.ErrReferralAlreadySet
	}
	if code == u.ReferralCode {
		return repository.ErrInvalidReferrer
	}
	for _, other := range s.users {
		if other.ReferralCode == code {
			c := code
			u.ReferredBy = &c
			return nil
		}
	}
	return repository.ErrInvalidReferrer
}

func (s *UserStore) UpdateSettings(_ context.Context, userID string, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Settings = settings
	return nil
}

func (s *UserStore) AddWallet(_ context.Context, wallet model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[wallet.UserID]; !ok {
		return fmt.Errorf("user %s: %w", wallet.UserID, repository.ErrNotFound)
	}
	for _, w := range s.wallets {
		if w.ID == wallet.ID || (w.UserID == wallet.UserID && w.Address == wallet.Address) {
			return fmt.Errorf("wallet %s: %w", wallet.Address, repository.ErrDuplicateKey)
		}
	}
	s.wallets[wallet.ID] = wallet
	return nil
}

func (s *UserStore) GetWallet(_ context.Context, id string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (s *UserStore) ListWallets(_ context.Context, userID string) ([]model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
