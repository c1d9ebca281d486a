// Package claims holds the access-token claims type and the request-context
// helpers shared by auth and the packages it depends on. It lives below auth
// so that those packages can read claims without importing auth itself.
package claims

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type ContextKey string

const UserClaimsKey ContextKey = "user_claims"

func GetUserClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*AccessClaims)
	return claims
}
