package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when login credentials do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a presented token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Config contains authentication configuration. PasswordHash is a bcrypt
// hash of the single API user's password.
type Config struct {
	Secret       string
	Username     string
	PasswordHash string
	TokenTTL     time.Duration
}

// Service issues and verifies bearer tokens.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates an authentication service.
func NewService(config Config) (*Service, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("auth secret cannot be empty")
	}
	if config.Username == "" || config.PasswordHash == "" {
		return nil, fmt.Errorf("auth username and password hash cannot be empty")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = time.Hour
	}

	return &Service{config: config, now: time.Now}, nil
}

// Login verifies the credentials and returns a signed bearer token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.config.Username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(s.config.TokenTTL).Unix(),
	})

	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify validates a presented token and returns its subject.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}
