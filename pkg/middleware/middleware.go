package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/tradesim/tradesim-api/pkg/response"
)

const userIDKey = "userID"

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit    = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	tradingLimit = rate.Limit(100.0 / 60.0)  // 100 requests per minute
	marketLimit  = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientKey string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientKey + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/spot"), strings.HasPrefix(path, "/api/v1/binary"):
			limit = tradingLimit
		case strings.HasPrefix(path, "/api/v1/market"):
			limit = marketLimit
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 5),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit applies per-client, per-route-class request limits.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetString(userIDKey)
		if clientKey == "" {
			clientKey = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientKey)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates the bearer token and stores the numeric user id in the
// request context.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseBearer(c, secret)
		if !ok {
			return
		}

		rawUserID, exists := claims["user_id"]
		if !exists {
			response.Unauthorized(c, "Missing user_id claim")
			c.Abort()
			return
		}

		// JSON numbers decode as float64 in MapClaims.
		userID, ok := rawUserID.(float64)
		if !ok || userID <= 0 {
			response.Unauthorized(c, "Invalid user_id claim")
			c.Abort()
			return
		}

		c.Set(userIDKey, int64(userID))
		c.Next()
	}
}

// AdminAuth gates the privileged endpoints behind a static admin token.
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")
		if token == "" || token != adminToken {
			response.Forbidden(c, "Admin token required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id placed by JWTAuth.
func UserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func parseBearer(c *gin.Context, secret string) (jwt.MapClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, false
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, false
	}

	token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		response.Unauthorized(c, "Invalid token claims")
		c.Abort()
		return nil, false
	}

	return claims, true
}
