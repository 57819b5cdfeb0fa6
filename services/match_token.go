package services

import (
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// MatchTokenIssuer signs the per-player authorization handed out in match_start.
type MatchTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewMatchTokenIssuer(secret string, ttl time.Duration) *MatchTokenIssuer {
	return &MatchTokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for userID in matchID and its expiry.
func (s *MatchTokenIssuer) Issue(userID, matchID, modeID string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, eris.New("match token secret is not configured")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"mid":  matchID,
		"mode": modeID,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
		"jti":  uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, eris.Wrap(err, "failed to sign match token")
	}
	return signed, exp, nil
}

// Verify checks that token was issued for userID and matchID and is unexpired.
func (s *MatchTokenIssuer) Verify(token, userID, matchID string) error {
	claims, err := parseHS256(token, s.secret)
	if err != nil {
		return eris.Wrap(ErrPermissionDenied, err.Error())
	}
	if sub, _ := claims["sub"].(string); sub != userID {
		return eris.Wrap(ErrPermissionDenied, "match token issued to another user")
	}
	if mid, _ := claims["mid"].(string); mid != matchID {
		return eris.Wrap(ErrPermissionDenied, "match token issued for another match")
	}
	return nil
}

func parseHS256(token string, secret []byte) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, eris.New("invalid token claims")
	}
	return claims, nil
}
