package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatrelay/chatrelay/internal/config"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service issues and verifies the two token kinds: admin API tokens and
// thread-scoped chat tokens handed to the web widget.
type Service struct {
	secret       []byte
	tokenTTL     time.Duration
	chatTokenTTL time.Duration
	logger       *slog.Logger
}

func NewService(log *slog.Logger, cfg config.AuthConfig) (*Service, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("auth: jwt_secret is required")
	}
	tokenTTL, err := time.ParseDuration(cfg.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("auth: parse jwt_expires_in: %w", err)
	}
	chatTokenTTL, err := time.ParseDuration(cfg.ChatTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth: parse chat_token_ttl: %w", err)
	}
	return &Service{
		secret:       []byte(cfg.JWTSecret),
		tokenTTL:     tokenTTL,
		chatTokenTTL: chatTokenTTL,
		logger:       log.With(slog.String("service", "auth")),
	}, nil
}

// GenerateAdminToken returns a signed token for the admin API surface.
func (s *Service) GenerateAdminToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": RoleAdmin,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ChatClaims is the identity carried by a widget's chat token. The token is
// scoped to a single thread.
type ChatClaims struct {
	CustomerID string
	ThreadID   string
	Username   string
}

// GenerateChatToken returns a signed token the widget presents on the
// WebSocket and history endpoints.
func (s *Service) GenerateChatToken(customerID, threadID, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       customerID,
		"role":      RoleCustomer,
		"thread_id": threadID,
		"username":  username,
		"iat":       now.Unix(),
		"exp":       now.Add(s.chatTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseChatToken verifies a chat token and extracts its claims.
func (s *Service) ParseChatToken(raw string) (ChatClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return ChatClaims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ChatClaims{}, ErrInvalidToken
	}
	if claimString(claims, "role") != RoleCustomer {
		return ChatClaims{}, ErrInvalidToken
	}
	return ChatClaims{
		CustomerID: claimString(claims, "sub"),
		ThreadID:   claimString(claims, "thread_id"),
		Username:   claimString(claims, "username"),
	}, nil
}

// Middleware returns the echo JWT middleware validating admin tokens.
// Requests matched by skipper pass through unauthenticated.
func (s *Service) Middleware(skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: s.secret,
		Skipper:    skipper,
	})
}

// AdminFromContext reads the admin username from the validated token the
// middleware stored on the request context.
func AdminFromContext(c echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	return claimString(claims, "sub")
}

// VerifyPassword checks a candidate against the configured admin secret,
// which may be a bcrypt hash or a plain value.
func VerifyPassword(stored, candidate string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return v
}
