// internal/auth/middleware.go
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("missing or invalid Authorization header")

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", ErrMissingToken
	}
	return strings.TrimPrefix(h, "Bearer "), nil
}

// Authorize checks that r carries a valid token issued for tenant.
func (a *Authenticator) Authorize(r *http.Request, tenant string) error {
	tokenStr, err := BearerToken(r)
	if err != nil {
		return err
	}

	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return err
	}
	if claims.TenantID != tenant {
		return fmt.Errorf("token issued for tenant %q", claims.TenantID)
	}
	return nil
}
