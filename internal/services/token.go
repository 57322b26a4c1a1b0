package services

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenExpiration is the validity window of a minted token.
const TokenExpiration = time.Hour

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verification is the outcome of checking a bearer credential. Failures are
// carried as a value (Success=false plus a message), never as an error, so
// resolvers must check Success and ExpiresAt before trusting Username.
type Verification struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Username  string     `json:"username,omitempty"`
	ExpiresAt *time.Time `json:"-"`
}

// TokenService signs and verifies bearer tokens with a process-wide secret
// loaded once at startup.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Sign mints an HS256 token for the given username.
func (s *TokenService) Sign(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks a raw Authorization header value of the form
// "Bearer <token>". The value is split on whitespace and the second segment
// is taken as the signed token; a missing segment, bad signature, malformed
// token, or expired token all yield a failed Verification.
func (s *TokenService) Verify(headerValue string) Verification {
	parts := strings.Fields(headerValue)
	if len(parts) < 2 {
		return Verification{Success: false, Message: "Token is invalid"}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Verification{Success: false, Message: "Token is invalid"}
	}

	v := Verification{Success: true, Username: claims.Username}
	if claims.ExpiresAt != nil {
		expiry := claims.ExpiresAt.Time
		v.ExpiresAt = &expiry
	}
	return v
}
