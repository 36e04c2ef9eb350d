package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

var (
	// ErrNotConfigured is returned when app credentials are missing.
	ErrNotConfigured = errors.New("azure app credentials are not configured")
	// ErrAccessTokenRequired is returned when a scan needs a delegated token
	// and none was supplied.
	ErrAccessTokenRequired = errors.New("a delegated access token is required")
)

// Credentials identify the app registration used for application-permission
// calls.
type Credentials struct {
	TenantID     string `mapstructure:"tenant_id" yaml:"tenant_id"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// Validate reports which fields are missing, wrapping ErrNotConfigured.
func (c Credentials) Validate() error {
	var missing []string
	if c.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// NewCredential builds a client-secret credential. azidentity caches and
// refreshes the token internally.
func NewCredential(c Credentials) (azcore.TokenCredential, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cred, err := azidentity.NewClientSecretCredential(c.TenantID, c.ClientID, c.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create client secret credential: %w", err)
	}
	return cred, nil
}
