package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bitfleet/bitfleet/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid operator credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Credentials are the operator API key pair exchanged for a token.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse is the issued JWT and its expiry.
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims is the JWT claims structure for operator tokens.
type Claims struct {
	jwt.RegisteredClaims
	OperatorID  string   `json:"operator_id"`
	Permissions []string `json:"permissions"`
}

// Service issues and validates operator tokens. The secret is injected at
// construction; credentials are registered at startup from configuration.
type Service struct {
	jwtSecret   []byte
	credentials map[string]string // map[APIKey]APISecret
}

// NewService creates an auth service signing with the given secret.
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret:   []byte(jwtSecret),
		credentials: make(map[string]string),
	}
}

// RegisterCredentials adds an operator API key pair.
func (s *Service) RegisterCredentials(apiKey, apiSecret string) {
	s.credentials[apiKey] = apiSecret
}

// GenerateToken exchanges valid credentials for a 24-hour operator token.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	secret, exists := s.credentials[creds.APIKey]
	if !exists || secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		OperatorID:  creds.APIKey,
		Permissions: []string{"operate"},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{Token: tokenString, Expiration: expiration}, nil
}

// ValidateToken verifies signature and expiry and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for authentication endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the auth endpoint handlers.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GenerateTokenHandler handles POST requests exchanging credentials for a
// token.
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
