package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("not found")

	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStoreUnavailable means the backing database could not be reached or the
	// claim transaction failed. Callers treat it as nothing having been claimed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotProcessing is returned when committing an intent that is not claimed.
	ErrNotProcessing = errors.New("intent is not processing")

	// ErrIntentBusy is returned when cancelling an intent that is currently claimed.
	ErrIntentBusy = errors.New("intent is being executed")

	ErrReferralAlreadySet = errors.New("referrer already set")

	ErrInvalidReferrer = errors.New("invalid referral code")
)

const pqUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
