package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const contextIdentityKey = "httpkit.identity"

// Identity is the authenticated caller. Every query a handler issues is
// scoped to ConnectionID.
type Identity interface {
	UserID() uuid.UUID
	ConnectionID() uuid.UUID
	IsAuthenticated() bool
}

type caller struct {
	user       uuid.UUID
	connection uuid.UUID
}

func (c caller) UserID() uuid.UUID       { return c.user }
func (c caller) ConnectionID() uuid.UUID { return c.connection }
func (c caller) IsAuthenticated() bool   { return c.user != uuid.Nil && c.connection != uuid.Nil }

// SetIdentity records the caller on the gin context. AuthRequired calls it
// after validating the token; handler tests call it directly.
func SetIdentity(c *gin.Context, userID, connectionID uuid.UUID) {
	c.Set(contextIdentityKey, caller{user: userID, connection: connectionID})
}

// GetIdentity never returns nil; without SetIdentity it is unauthenticated.
func GetIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(contextIdentityKey); ok {
		if id, ok := v.(caller); ok {
			return id
		}
	}
	return caller{}
}

// MustGetIdentity aborts with 401 and returns nil for anonymous callers.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}
