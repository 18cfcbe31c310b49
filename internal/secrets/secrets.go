// Package secrets fetches per-invocation tool credentials. Nothing here is
// cached by the orchestration core; each execution asks again.
package secrets

import (
	"os"
	"strings"

	"github.com/vinayprograms/agentkit/credentials"
)

// Provider is the secrets collaborator contract.
type Provider interface {
	// GetCredential returns the secret for a tool, or "" when the tool
	// has none configured.
	GetCredential(toolName string) string
}

// CredentialsProvider resolves secrets from the standard credentials file
// with an environment-variable fallback (STEWARD_TOOL_<NAME>_TOKEN).
type CredentialsProvider struct {
	creds *credentials.Credentials
}

// NewCredentialsProvider loads credentials from their standard location.
// A missing credentials file is not an error; env fallback still works.
func NewCredentialsProvider() *CredentialsProvider {
	p := &CredentialsProvider{}
	if creds, _, err := credentials.Load(); err == nil {
		p.creds = creds
	}
	return p
}

// GetCredential resolves the secret for a tool.
func (p *CredentialsProvider) GetCredential(toolName string) string {
	if p.creds != nil {
		if key := p.creds.GetAPIKey(toolName); key != "" {
			return key
		}
	}
	env := "STEWARD_TOOL_" + strings.ToUpper(toolName) + "_TOKEN"
	return os.Getenv(env)
}

// Static is a fixed-map provider for tests and single-tenant setups.
type Static map[string]string

// GetCredential returns the configured secret for a tool.
func (s Static) GetCredential(toolName string) string {
	return s[toolName]
}
