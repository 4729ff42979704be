package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/identity"
)

const actorKey = "actor"

// authenticate resolves the bearer token into an identity.Actor.
func authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "Unauthenticated"})
			return
		}
		actor, err := identity.Parse(secret, strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "kind": "Unauthenticated"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) identity.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(identity.Actor)
	return actor
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind"`
	Incomplete []string `json:"incomplete,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error(), Kind: apperr.KindOf(err).String()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Incomplete = ae.Incomplete
	}
	if status == http.StatusInternalServerError {
		log.Printf("server: %s %s: %v", c.Request.Method, c.FullPath(), err)
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}
