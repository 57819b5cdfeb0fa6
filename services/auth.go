package services

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Authenticator turns a presented credential into a verified identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (Identity, error)
}

// JWTAuthenticator verifies HS256 session tokens signed with a shared secret.
// The user id is the "sub" claim; "name" or "username" supplies the display name.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, eris.Wrap(ErrAuthentication, "credential missing")
	}
	if len(a.secret) == 0 {
		return Identity{}, eris.Wrap(ErrAuthentication, "authenticator has no secret")
	}

	claims, err := parseHS256(credential, a.secret)
	if err != nil {
		return Identity{}, eris.Wrap(ErrAuthentication, err.Error())
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, eris.Wrap(ErrAuthentication, "credential has no subject")
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["username"].(string)
	}
	return Identity{UserID: sub, DisplayName: NormalizeDisplayName(name, sub)}, nil
}
