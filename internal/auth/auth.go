// Package auth owns agent credentials: bcrypt password hashes and the signed
// session tokens accepted by the REST API and the live channel.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer = "propdesk"

	// SessionTTL applies to a normal login; RememberTTL to "remember me".
	SessionTTL  = 24 * time.Hour
	RememberTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims identify the agent behind a session token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Session is a freshly issued token and the instant it stops being valid.
type Session struct {
	Token     string
	TTL       time.Duration
	ExpiresAt time.Time
}

type Service struct {
	key    []byte
	ttl    time.Duration
	method jwt.SigningMethod
	now    func() time.Time
}

func NewService(secret string) *Service {
	return &Service{
		key:    []byte(secret),
		ttl:    SessionTTL,
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}
}

func (s *Service) TokenTTL() time.Duration { return s.ttl }

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword hides the bcrypt failure reason behind ErrInvalidCredentials.
func (s *Service) CheckPassword(hash, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Issue signs a session for a login. remember selects RememberTTL.
func (s *Service) Issue(userID, username string, remember bool) (*Session, error) {
	ttl := s.ttl
	if remember {
		ttl = RememberTTL
	}
	return s.issue(userID, username, ttl)
}

func (s *Service) GenerateToken(userID, username string) (string, error) {
	return s.GenerateTokenWithTTL(userID, username, s.ttl)
}

func (s *Service) GenerateTokenWithTTL(userID, username string, ttl time.Duration) (string, error) {
	sess, err := s.issue(userID, username, ttl)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (s *Service) issue(userID, username string, ttl time.Duration) (*Session, error) {
	if userID == "" {
		return nil, errors.New("auth: empty user id")
	}
	issued := s.now()
	expires := issued.Add(ttl)
	signed, err := jwt.NewWithClaims(s.method, &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(s.key)
	if err != nil {
		return nil, err
	}
	return &Session{Token: signed, TTL: ttl, ExpiresAt: expires.UTC()}, nil
}

// ValidateToken maps every verification failure onto ErrInvalidToken except
// an otherwise good token past its expiry, which gives ErrTokenExpired.
func (s *Service) ValidateToken(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return s.key, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil, claims.UserID == "":
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
