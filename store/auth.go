package store

import (
	"github.com/architectureofthings/archi-modelrepository-plugin/store/internal/auth"
)

// NewHTTPSAuthProvider returns an AuthProvider that answers basic auth for
// HTTPS remotes, optionally restricted to host patterns such as
// "*.github.com". Non-HTTPS remotes get no credentials from it.
//
//nolint:ireturn // the provider is consumed through the AuthProvider interface
func NewHTTPSAuthProvider(username, password string, allowedHosts ...string) AuthProvider {
	p := auth.NewHTTPSProvider(username, password)
	if len(allowedHosts) > 0 {
		p.WithAllowedHosts(allowedHosts...)
	}
	return p
}
