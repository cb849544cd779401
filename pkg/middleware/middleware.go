package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/bitfleet/bitfleet/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Limits per endpoint class
	authLimit     = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	triggerLimit  = rate.Limit(100.0 / 60.0)  // 100 requests per minute
	readonlyLimit = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/internal/triggers"):
			limit = triggerLimit
		case strings.HasPrefix(path, "/api/v1/proposals"),
			strings.HasPrefix(path, "/api/v1/reports"):
			limit = readonlyLimit
		default:
			limit = rate.Inf
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
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

// RateLimit throttles requests per operator (falling back to client IP)
// and endpoint class.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := c.GetString("operatorID")
		if operatorID == "" {
			operatorID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), operatorID)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates operator bearer tokens signed with the given secret.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseToken(c, secret)
		if err != nil {
			return // response already written
		}

		for key, value := range claims {
			c.Set(key, value)
		}
		c.Set("claims", claims)
		if operatorID, ok := claims["operator_id"].(string); ok {
			c.Set("operatorID", operatorID)
		}

		c.Next()
	}
}

// InternalAuth protects trigger endpoints meant for internal callers. It
// reuses the operator token scheme; deployments behind a private network
// can additionally firewall these routes.
func InternalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseToken(c, secret)
		if err != nil {
			return
		}

		operatorID, ok := claims["operator_id"].(string)
		if !ok || operatorID == "" {
			response.Unauthorized(c, "Invalid operator ID in token")
			c.Abort()
			return
		}

		c.Set("operatorID", operatorID)
		c.Next()
	}
}

func parseToken(c *gin.Context, secret []byte) (jwt.MapClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, fmt.Errorf("authorization header required")
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		response.Unauthorized(c, "Invalid token claims")
		c.Abort()
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
