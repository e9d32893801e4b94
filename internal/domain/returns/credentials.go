package returns

import (
	"context"
	"errors"
	"time"
)

// AccessToken is a resolved marketplace access token for one account.
type AccessToken struct {
	AccountID string
	// SellerID is the marketplace user id the token belongs to.
	SellerID  string
	Value     string
	ExpiresAt time.Time
}

// CredentialStatus is the state the auth subsystem keeps for a connected account.
type CredentialStatus string

const (
	CredentialActive            CredentialStatus = "active"
	CredentialExpired           CredentialStatus = "expired"
	CredentialReconnectRequired CredentialStatus = "reconnect_required"
)

// Usable reports whether tokens may be issued from a bundle in this state.
func (s CredentialStatus) Usable() bool {
	return s == CredentialActive
}

// TokenGrant is the result of an OAuth refresh_token exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	SellerID     string
	ExpiresIn    time.Duration
}

// ErrInvalidGrant is returned when the marketplace rejects a refresh token.
var ErrInvalidGrant = errors.New("marketplace rejected the refresh token")

// CredentialProvider resolves and refreshes marketplace access tokens.
//
// GetAccessToken fails with *AuthError{Reason: reconnect_required} when the account has
// no usable bundle. RefreshToken exchanges the stored refresh token for a new bundle; the
// caller decides when a refresh is warranted.
type CredentialProvider interface {
	GetAccessToken(ctx context.Context, accountID string) (AccessToken, error)
	RefreshToken(ctx context.Context, accountID string) (AccessToken, error)
}

// Credential is the stored credential row of one account. Bundle is the sealed
// token bundle; only the credential provider can open it.
type Credential struct {
	AccountID string
	Bundle    []byte
	Status    CredentialStatus
	UpdatedAt time.Time
}

// CredentialRepository persists credential rows. The auth subsystem owns most writes;
// this service only rewrites the bundle after a refresh and flags dead grants.
type CredentialRepository interface {
	// FindByAccount returns *NotFoundError when the account has never been connected.
	FindByAccount(ctx context.Context, accountID string) (*Credential, error)
	Save(ctx context.Context, credential *Credential) error
	UpdateStatus(ctx context.Context, accountID string, status CredentialStatus) error
}
