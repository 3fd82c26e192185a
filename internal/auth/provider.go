// Package auth is the boundary to the external authentication
// collaborator. The chat core consumes identities through Provider and
// never inspects credentials beyond it.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	tokenQueryKey = "token"
)

var ErrInvalidToken = errors.New("invalid token")

// Provider resolves an opaque credential into an identity.
type Provider interface {
	Verify(ctx context.Context, token string) (identity string, err error)
}

// TokenFromRequest extracts the bearer token from the Authorization
// header, falling back to the token query parameter for websocket
// handshakes where custom headers are awkward to set.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get(AuthHeaderKey)
	if strings.HasPrefix(header, BearerPrefix) {
		return strings.TrimPrefix(header, BearerPrefix)
	}
	return r.URL.Query().Get(tokenQueryKey)
}
