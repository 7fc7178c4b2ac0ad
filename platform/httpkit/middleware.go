// Package httpkit holds the gin middleware, identity helpers and JSON
// response helpers shared by every module's handlers.
package httpkit

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// CronSecretHeader carries the shared secret of the external scheduler.
	CronSecretHeader = "X-Cron-Secret"
	// RequestIDHeader is echoed back; a missing one is generated.
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

// RequestLogger assigns a request ID, stores it on the request context for
// logger.WithContext and logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWith(c.Request.Context(), logger.RequestIDKey, requestID))

		c.Next()

		if len(c.Errors) > 0 {
			log.WithContext(c.Request.Context()).Error("request failed", "path", path, "error", c.Errors.String())
		}
		log.HTTPRequest(requestID, c.Request.Method, path, c.Writer.Status(), float64(time.Since(start).Milliseconds()), c.ClientIP())
	}
}

// SecurityHeaders sets the headers an API-only service needs.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for
// longer than idleTTL are swept so the map does not grow without bound.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
	log       *logger.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const defaultVisitorIdleTTL = 10 * time.Minute

func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
		idleTTL:  defaultVisitorIdleTTL,
		now:      time.Now,
		log:      log,
	}
}

// Allow consumes one token for ip.
func (i *IPRateLimiter) Allow(ip string) bool {
	now := i.now()

	i.mu.Lock()
	if now.Sub(i.lastSweep) >= i.idleTTL {
		for key, v := range i.visitors {
			if now.Sub(v.lastSeen) >= i.idleTTL {
				delete(i.visitors, key)
			}
		}
		i.lastSweep = now
	}
	v, ok := i.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.visitors[ip] = v
	}
	v.lastSeen = now
	i.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !i.Allow(ip) {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// accessClaims is the token shape issued by the platform's auth service.
type accessClaims struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	jwt.RegisteredClaims
}

// AuthRequired validates an HS256 access token. The token must carry a
// connection_id scoping the caller to one WhatsApp connection.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, errMissingToken)
			return
		}

		userID, connectionID, err := parseAccessToken(parser, rawToken, cfg.GetJWTAccessSecret())
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		SetIdentity(c, userID, connectionID)
		c.Request = c.Request.WithContext(logger.ContextWith(c.Request.Context(), logger.ConnectionIDKey, connectionID.String()))
		c.Next()
	}
}

func parseAccessToken(parser *jwt.Parser, rawToken, secret string) (uuid.UUID, uuid.UUID, error) {
	var claims accessClaims
	if _, err := parser.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if claims.Type != "access" {
		return uuid.Nil, uuid.Nil, errors.New("not an access token")
	}

	userID, err := uuid.Parse(strings.TrimSpace(claims.Subject))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	connectionID, err := uuid.Parse(strings.TrimSpace(claims.ConnectionID))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, connectionID, nil
}

// CronSecretRequired guards internal endpoints invoked by the external
// scheduler. The secret is accepted from X-Cron-Secret or a Bearer token.
func CronSecretRequired(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		provided := c.GetHeader(CronSecretHeader)
		if provided == "" {
			provided, _ = extractBearerToken(c.GetHeader("Authorization"))
		}

		if len(expected) == 0 || provided == "" ||
			subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			abortUnauthorized(c, "unauthorized")
			return
		}
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: message})
}
