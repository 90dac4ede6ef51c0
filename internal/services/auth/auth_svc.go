package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// IAuthService verifies the optional bearer credential presented at the
// websocket handshake. The gateway treats both error kinds as "no
// credential"; callers that care (logging) can tell them apart.
type IAuthService interface {
	VerifyCredential(token string) (*jwt.RegisteredClaims, error)
	IssueToken(userID string, ttl time.Duration) (string, error)
}

type authService struct {
	secret []byte
	issuer string
}

func NewAuthService(secret, issuer string) IAuthService {
	return &authService{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (svc *authService) VerifyCredential(tokenString string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return svc.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a short-lived HS256 token for userID. Used by the login
// path of the surrounding application and by tests.
func (svc *authService) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    svc.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
}
