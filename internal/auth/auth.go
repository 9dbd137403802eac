package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tradesim/tradesim-api/pkg/response"
)

// The trading core only consumes an authenticated numeric user id; this
// package is the thin demo issuer that puts one into a JWT. Identity
// verification proper lives outside this service.

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Demo credentials accepted by the token endpoint.
var (
	DemoAPIKey    = "demo-api-key"
	DemoAPISecret = "demo-api-secret"
)

// Credentials is the demo token request: API key pair plus the user the
// token should act as.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	UserID    int64  `json:"user_id"`
}

// TokenResponse is the issued JWT.
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims carries the numeric user id the trading core keys everything on.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// Service issues and validates demo tokens.
type Service struct {
	jwtSecret      []byte
	apiCredentials map[string]string
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret:      []byte(jwtSecret),
		apiCredentials: make(map[string]string),
	}
}

// RegisterAPICredentials registers an accepted key pair (demo only).
func (s *Service) RegisterAPICredentials(apiKey, apiSecret string) {
	s.apiCredentials[apiKey] = apiSecret
}

// GenerateToken issues a 24-hour JWT for the requested user.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	secret, exists := s.apiCredentials[creds.APIKey]
	if !exists || secret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}
	if creds.UserID <= 0 {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID: creds.UserID,
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

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GenerateTokenHandler handles POST requests to issue demo JWTs.
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
