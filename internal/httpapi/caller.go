package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-graph-cache/pagination"
)

// CallerKey is the gin context key an upstream authentication middleware
// stores the pagination.Caller under.
const CallerKey = "caller"

// Trusted identity headers, only honoured when TrustedHeaders is installed.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// TrustedHeaders reads the caller from X-User-ID and X-User-Role. It is meant
// for development and for deployments behind a gateway that sets them.
func TrustedHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CallerKey); !ok {
			id, _ := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
			if id > 0 {
				role := pagination.ParseRole(c.GetHeader(HeaderUserRole))
				if role == pagination.RoleAnonymous {
					role = pagination.RoleMember
				}
				c.Set(CallerKey, pagination.Caller{ID: id, Role: role})
			}
		}
		c.Next()
	}
}

// callerFrom returns the caller of the request, anonymous when none was set.
func callerFrom(c *gin.Context) pagination.Caller {
	v, ok := c.Get(CallerKey)
	if !ok {
		return pagination.Anonymous
	}
	switch caller := v.(type) {
	case pagination.Caller:
		return caller
	case *pagination.Caller:
		if caller != nil {
			return *caller
		}
	}
	return pagination.Anonymous
}
