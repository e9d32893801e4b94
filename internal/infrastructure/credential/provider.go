package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erp/claimsync/internal/domain/returns"
)

// TokenRefresher performs the OAuth refresh_token grant
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*returns.TokenGrant, error)
}

// Provider resolves marketplace access tokens from the credential store and
// refreshes them on demand. Concurrent refreshes of one account share a single
// upstream call.
type Provider struct {
	repo      returns.CredentialRepository
	cipher    *Cipher
	refresher TokenRefresher
	logger    *zap.Logger
	now       func() time.Time
	group     singleflight.Group
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithClock overrides the provider clock
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a credential provider
func NewProvider(repo returns.CredentialRepository, cipher *Cipher, refresher TokenRefresher, logger *zap.Logger, opts ...ProviderOption) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		repo:      repo,
		cipher:    cipher,
		refresher: refresher,
		logger:    logger.Named("credential"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetAccessToken returns the stored access token of an account. Missing rows,
// unusable statuses and undecryptable bundles all fail with reconnect_required.
func (p *Provider) GetAccessToken(ctx context.Context, accountID string) (returns.AccessToken, error) {
	cred, bundle, err := p.load(ctx, accountID)
	if err != nil {
		return returns.AccessToken{}, err
	}
	if !cred.Status.Usable() {
		return returns.AccessToken{}, returns.NewReconnectRequired(accountID, fmt.Errorf("credential status is %s", cred.Status))
	}
	return toAccessToken(accountID, bundle), nil
}

// RefreshToken exchanges the stored refresh token and persists the new bundle.
// A rejected grant marks the account reconnect_required.
func (p *Provider) RefreshToken(ctx context.Context, accountID string) (returns.AccessToken, error) {
	v, err, shared := p.group.Do(accountID, func() (any, error) {
		return p.refresh(ctx, accountID)
	})
	if shared {
		p.logger.Debug("Joined in-flight token refresh", zap.String("account_id", accountID))
	}
	if err != nil {
		return returns.AccessToken{}, err
	}
	return v.(returns.AccessToken), nil
}

func (p *Provider) refresh(ctx context.Context, accountID string) (returns.AccessToken, error) {
	cred, bundle, err := p.load(ctx, accountID)
	if err != nil {
		return returns.AccessToken{}, err
	}
	if !cred.Status.Usable() {
		return returns.AccessToken{}, returns.NewReconnectRequired(accountID, fmt.Errorf("credential status is %s", cred.Status))
	}
	if bundle.RefreshToken == "" {
		return returns.AccessToken{}, p.markReconnect(ctx, accountID, errors.New("no refresh token stored"))
	}

	grant, err := p.refresher.RefreshAccessToken(ctx, bundle.RefreshToken)
	if err != nil {
		if errors.Is(err, returns.ErrInvalidGrant) {
			return returns.AccessToken{}, p.markReconnect(ctx, accountID, err)
		}
		return returns.AccessToken{}, fmt.Errorf("refresh token for account %s: %w", accountID, err)
	}

	next := Bundle{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    p.now().Add(grant.ExpiresIn),
		SellerID:     grant.SellerID,
	}
	// The marketplace may omit fields it did not rotate.
	if next.RefreshToken == "" {
		next.RefreshToken = bundle.RefreshToken
	}
	if next.SellerID == "" {
		next.SellerID = bundle.SellerID
	}

	sealed, err := p.cipher.Seal(accountID, next)
	if err != nil {
		return returns.AccessToken{}, err
	}
	if err := p.repo.Save(ctx, &returns.Credential{
		AccountID: accountID,
		Bundle:    sealed,
		Status:    returns.CredentialActive,
		UpdatedAt: p.now(),
	}); err != nil {
		return returns.AccessToken{}, fmt.Errorf("store refreshed credential: %w", err)
	}

	p.logger.Info("Refreshed marketplace token",
		zap.String("account_id", accountID),
		zap.Time("expires_at", next.ExpiresAt))
	return toAccessToken(accountID, next), nil
}

func (p *Provider) load(ctx context.Context, accountID string) (*returns.Credential, Bundle, error) {
	cred, err := p.repo.FindByAccount(ctx, accountID)
	if err != nil {
		if returns.IsNotFound(err) {
			return nil, Bundle{}, returns.NewReconnectRequired(accountID, errors.New("account is not connected"))
		}
		return nil, Bundle{}, fmt.Errorf("load credential for account %s: %w", accountID, err)
	}

	bundle, err := p.cipher.Open(accountID, cred.Bundle)
	if err != nil {
		p.logger.Warn("Stored credential bundle cannot be opened",
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, Bundle{}, returns.NewReconnectRequired(accountID, err)
	}
	return cred, bundle, nil
}

func (p *Provider) markReconnect(ctx context.Context, accountID string, cause error) error {
	if err := p.repo.UpdateStatus(ctx, accountID, returns.CredentialReconnectRequired); err != nil {
		p.logger.Error("Failed to flag credential for reconnection",
			zap.String("account_id", accountID),
			zap.Error(err))
	}
	p.logger.Warn("Marketplace refused token refresh, account needs reconnection",
		zap.String("account_id", accountID),
		zap.Error(cause))
	return returns.NewReconnectRequired(accountID, cause)
}

func toAccessToken(accountID string, b Bundle) returns.AccessToken {
	return returns.AccessToken{
		AccountID: accountID,
		SellerID:  b.SellerID,
		Value:     b.AccessToken,
		ExpiresAt: b.ExpiresAt,
	}
}

var _ returns.CredentialProvider = (*Provider)(nil)
