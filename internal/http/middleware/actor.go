package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderActorID names the operator or integration issuing an admin call.
	// It is recorded as CreatedBy on new rules and keys idempotency records.
	HeaderActorID = "X-Actor-ID"

	actorKey = "actorID"

	// SystemActor is used when the caller does not identify itself.
	SystemActor = "system"
)

var actorPattern = regexp.MustCompile(`^[A-Za-z0-9._@:\-]{1,128}$`)

// Actor stores the caller identity from X-Actor-ID. Missing or malformed
// values fall back to SystemActor.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if !actorPattern.MatchString(id) {
			id = SystemActor
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

// ActorFrom returns the identity stored by Actor, or SystemActor.
func ActorFrom(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return SystemActor
}
