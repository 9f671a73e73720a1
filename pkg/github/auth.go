package github

import (
	"context"
	"fmt"
	"strings"
)

// TokenInfo contains information about the authenticated token
type TokenInfo struct {
	User   string   `json:"user"`
	Scopes []string `json:"scopes"`
}

// Authenticate resolves the token owner and checks that a classic token carries
// the scopes needed to create repositories and read organization members.
// Fine-grained tokens report no scopes and are accepted as-is.
func (c *Client) Authenticate(ctx context.Context) (*TokenInfo, error) {
	user, resp, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return nil, WrapGitHubError(err, "authenticated user")
	}

	info := &TokenInfo{User: user.GetLogin()}
	if resp != nil {
		info.Scopes = parseScopes(resp.Header.Get("X-OAuth-Scopes"))
	}

	if err := validateScopes(info.Scopes); err != nil {
		return info, err
	}

	return info, nil
}

func parseScopes(header string) []string {
	var scopes []string
	for _, s := range strings.Split(header, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// validateScopes checks a classic token's scopes. Each entry lists acceptable alternatives.
func validateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return nil
	}

	granted := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		granted[s] = true
	}

	required := [][]string{
		{"repo", "public_repo"},
		{"read:org", "write:org", "admin:org"},
	}

	var missing []string
	for _, alternatives := range required {
		found := false
		for _, s := range alternatives {
			if granted[s] {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(alternatives, " or "))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("GitHub token missing required permissions: %s", strings.Join(missing, "; "))
	}
	return nil
}

// GetAuthInstructions returns instructions for setting up GitHub authentication
func GetAuthInstructions() string {
	return `GitHub authentication is required. Please set up authentication using one of the following methods:

1. Environment Variable (Recommended for CI/CD):
   export GITHUB_TOKEN="your_personal_access_token"

2. Configuration File:
   Add the following to ~/.hackops/config.yaml:

   github:
     token: "your_personal_access_token"

The token needs the 'public_repo' (or 'repo') scope to create team repositories
and manage collaborators, and 'read:org' to list organization members.`
}
