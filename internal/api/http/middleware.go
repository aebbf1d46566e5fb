package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ddenisenko/clubcode/lib/auth"
)

const authUserKey = "auth_user_id"

// AuthMiddleware verifies a bearer token when one is present and stores the
// authenticated user id in the request context. Requests without a token
// pass through; room and battle joins then fall back to guest identities.
func AuthMiddleware(manager *auth.JWTManager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if manager == nil {
			ctx.Next()
			return
		}

		token := auth.ExtractToken(ctx.Request)
		if token == "" {
			ctx.Next()
			return
		}

		claims, err := manager.Verify(token)
		if err != nil {
			ctx.Next()
			return
		}

		if userID, err := uuid.Parse(claims.Subject); err == nil {
			ctx.Set(authUserKey, userID)
		}
		ctx.Next()
	}
}

// AuthenticatedUserID returns the user id set by AuthMiddleware, if any.
func AuthenticatedUserID(ctx *gin.Context) (uuid.UUID, bool) {
	v, ok := ctx.Get(authUserKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := v.(uuid.UUID)
	return userID, ok
}
