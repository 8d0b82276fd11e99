// Package profile loads (and lazily creates) the profile and account
// records behind an authenticated identity.
package profile

import (
	"context"
	"errors"
	"fmt"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"go.uber.org/zap"
)

type Loader struct {
	profiles store.ProfileStore
	accounts store.AccountStore
}

func NewLoader(profiles store.ProfileStore, accounts store.AccountStore) *Loader {
	return &Loader{profiles: profiles, accounts: accounts}
}

// Load fetches the profile for an identity, creating a default one on
// first login. Guarantees of the upsert-on-first-login contract:
//   - a profile exists after the first successful load, and Load never
//     creates a second one for the same id (retry is idempotent);
//   - an insert failure is reported but non-fatal: the caller proceeds
//     with a nil profile rather than blocking login;
//   - Load always returns, whatever failed.
//
// Bank accounts are fetched read-only; an account fetch failure is
// logged and yields an empty list, not an error.
func (l *Loader) Load(ctx context.Context, identity models.Identity) (*models.Profile, []models.BankAccount, error) {
	prof, err := l.loadOrCreate(ctx, identity)
	if err != nil {
		// Report and continue with nil profile; accounts may still load.
		zap.L().Error("Unable to load profile",
			zap.String("user_id", identity.Id),
			zap.Error(err))
	}

	accounts, aerr := l.accounts.GetBankAccounts(ctx, identity.Id)
	if aerr != nil {
		zap.L().Error("Unable to load bank accounts",
			zap.String("user_id", identity.Id),
			zap.Error(aerr))
		accounts = nil
	}

	return prof, accounts, err
}

func (l *Loader) loadOrCreate(ctx context.Context, identity models.Identity) (*models.Profile, error) {
	prof, err := l.profiles.GetProfile(ctx, identity.Id)
	if err == nil {
		return prof, nil
	}
	if !errors.Is(err, store.ErrRowNotFound) {
		return nil, fmt.Errorf("profile fetch failed: %w", err)
	}

	// First login: synthesize a default profile from the identity.
	params := store.CreateProfileParams{
		Id:          identity.Id,
		DisplayName: identity.DisplayName(),
		Handle:      identity.EmailLocalPart(),
		Phone:       identity.Phone,
	}

	zap.L().Info("No profile found, creating default",
		zap.String("user_id", identity.Id),
		zap.String("handle", params.Handle))

	created, cerr := l.profiles.CreateProfile(ctx, params)
	if cerr == nil {
		return created, nil
	}

	// Another client may have won the race; the row is there either way.
	if errors.Is(cerr, store.ErrDuplicateRow) {
		return l.profiles.GetProfile(ctx, identity.Id)
	}

	return nil, fmt.Errorf("profile create failed: %w", cerr)
}
