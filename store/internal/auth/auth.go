// Package auth builds go-git authentication methods for HTTPS remotes.
package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Basic returns a basic-auth method for the given credentials. For token
// authentication, pass the token as the password.
//
//nolint:ireturn // go-git consumes the transport.AuthMethod interface
func Basic(username, password string) transport.AuthMethod {
	return &http.BasicAuth{Username: username, Password: password}
}

// HTTPSProvider answers authentication for HTTPS remotes, optionally
// restricted to a set of host patterns.
type HTTPSProvider struct {
	auth *http.BasicAuth

	// AllowedHosts restricts authentication to specific host patterns.
	// If empty, authentication is offered for all HTTPS URLs.
	// Supports glob patterns like "*.github.com" or "gitlab.*".
	AllowedHosts []string
}

// NewHTTPSProvider creates a provider from a username and password.
func NewHTTPSProvider(username, password string) *HTTPSProvider {
	return &HTTPSProvider{
		auth: &http.BasicAuth{Username: username, Password: password},
	}
}

// WithAllowedHosts sets the allowed hosts for this provider.
// Only URLs matching these patterns will be authenticated.
func (p *HTTPSProvider) WithAllowedHosts(hosts ...string) *HTTPSProvider {
	p.AllowedHosts = hosts
	return p
}

// Method returns the authentication method for the given remote URL.
// Returns nil for URLs outside the allowed patterns.
//
//nolint:ireturn // go-git consumes the transport.AuthMethod interface
func (p *HTTPSProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	parsedURL, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "https" {
		// Non-HTTPS remotes (file paths in particular) need no credentials.
		return nil, nil
	}

	if len(p.AllowedHosts) > 0 && !p.isHostAllowed(parsedURL.Host) {
		return nil, nil
	}

	return p.auth, nil
}

// isHostAllowed checks if the given host matches any of the allowed host patterns.
func (p *HTTPSProvider) isHostAllowed(host string) bool {
	for _, pattern := range p.AllowedHosts {
		if matchesPattern(host, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a host matches a pattern with "*" wildcards.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}

	// Only support patterns with exactly one "*"
	if strings.Count(pattern, "*") != 1 {
		return false
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, suffix) || host == suffix
	}

	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(host, prefix+".")
	}

	return false
}
