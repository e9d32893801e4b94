package ecommerce

import (
	"errors"
	"strings"
)

// MarketplaceConfig holds configuration for the marketplace REST API.
type MarketplaceConfig struct {
	// APIBaseURL is the base URL of the marketplace API
	APIBaseURL string
	// TokenURL is the OAuth token endpoint; defaults to APIBaseURL + "/oauth/token"
	TokenURL string
	// ClientID and ClientSecret identify this application for the refresh_token grant
	ClientID     string
	ClientSecret string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// RequestsPerSecond caps outbound calls per account (0 disables the limiter)
	RequestsPerSecond float64
	// Burst is the limiter bucket size
	Burst int
}

const (
	// DefaultMarketplaceAPIURL is the production API endpoint
	DefaultMarketplaceAPIURL = "https://api.mercadolibre.com"
	defaultTimeoutSeconds    = 30
	defaultBurst             = 5
)

// Errors for marketplace configuration
var (
	ErrMarketplaceConfigMissingClientID     = errors.New("marketplace: client id is required")
	ErrMarketplaceConfigMissingClientSecret = errors.New("marketplace: client secret is required")
	ErrMarketplaceConfigInvalidRate         = errors.New("marketplace: requests per second cannot be negative")
)

// NewMarketplaceConfig creates a configuration with defaults
func NewMarketplaceConfig(clientID, clientSecret string) *MarketplaceConfig {
	return &MarketplaceConfig{
		APIBaseURL:        DefaultMarketplaceAPIURL,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		TimeoutSeconds:    defaultTimeoutSeconds,
		RequestsPerSecond: 10,
		Burst:             defaultBurst,
	}
}

// Validate validates the configuration and fills in defaults
func (c *MarketplaceConfig) Validate() error {
	if c.ClientID == "" {
		return ErrMarketplaceConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMarketplaceConfigMissingClientSecret
	}
	if c.RequestsPerSecond < 0 {
		return ErrMarketplaceConfigInvalidRate
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultMarketplaceAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.TokenURL == "" {
		c.TokenURL = c.APIBaseURL + "/oauth/token"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	return nil
}
