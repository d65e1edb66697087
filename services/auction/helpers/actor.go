package helpers

import (
	"fmt"
	"strings"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the authenticating gateway in front of the engine
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "admin"
)

// ActorFrom returns the caller identity of the request
func ActorFrom(c *gin.Context) lifecycle.Actor {
	return lifecycle.Actor{
		UserID: c.GetHeader(HeaderUserID),
		Admin:  strings.EqualFold(c.GetHeader(HeaderUserRole), RoleAdmin),
	}
}

// ActingUser returns the caller a money-moving request acts for. A user_id
// carried in the body must name the caller.
func ActingUser(c *gin.Context, bodyUserID string) (string, error) {
	caller := c.GetHeader(HeaderUserID)
	if caller == "" {
		return "", fmt.Errorf("%w - missing %s header", auctionerrors.ErrUnauthenticated, HeaderUserID)
	}
	if bodyUserID != "" && bodyUserID != caller {
		return "", fmt.Errorf("%w - %s cannot act for %s", auctionerrors.ErrForbidden, caller, bodyUserID)
	}
	return caller, nil
}
