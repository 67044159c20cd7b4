package middleware

import (
	"errors"
	"net/http"
	"strings"

	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/logger"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	accountKey      = "account"
	AccessTokenName = "access_token"
)

// BearerToken reads the access_token cookie first, then the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(AccessTokenName); err == nil && token != "" {
		return token, true
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Authenticate verifies the bearer token and resolves it to a local account,
// provisioning one on first sight. The account is stored on the gin context.
func Authenticate(verifier identity.Verifier, accounts service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}

		id, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		account, err := accounts.Resolve(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
				return
			}
			logger.WithCtx(c.Request.Context()).Error("resolve account failed", "subject", id.SubjectID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to resolve account"))
			return
		}

		c.Set(accountKey, account)
		log := logger.WithCtx(c.Request.Context()).With("account_id", account.ID.String())
		c.Request = c.Request.WithContext(logger.InjectLogger(c.Request.Context(), log))
		c.Next()
	}
}

// CurrentAccount returns the account set by Authenticate, or nil.
func CurrentAccount(c *gin.Context) *model.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	account, _ := v.(*model.Account)
	return account
}

// Actor is the audit identity of the current request.
func Actor(c *gin.Context) service.Actor {
	return service.ActorFrom(CurrentAccount(c))
}

// RequirePermission lets the request through only when the evaluator grants
// the current account the required level on module.
func RequirePermission(evaluator *service.Evaluator, module model.Module, level model.PermissionLevel) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !abortUnlessAllowed(c, evaluator.Authorize(CurrentAccount(c), module, level)) {
			return
		}
		c.Next()
	}
}

// RequireAdmin gates the user directory.
func RequireAdmin(evaluator *service.Evaluator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !abortUnlessAllowed(c, evaluator.RequireAdmin(CurrentAccount(c))) {
			return
		}
		c.Next()
	}
}

func abortUnlessAllowed(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	var denied *service.DeniedError
	switch {
	case errors.As(err, &denied):
		c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithData(http.StatusForbidden,
			"Access denied: "+denied.Reason, gin.H{"module": denied.Module, "reason": denied.Reason}))
	case errors.Is(err, service.ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
	}
	return false
}
