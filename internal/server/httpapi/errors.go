package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	msgInternal          = "Internal server error"
	msgInvalidCredential = "Invalid credentials"
	msgVerifyFirst       = "Please verify your email before logging in. Check your inbox for the verification link."
	msgTokenInvalid      = "Token is invalid or expired"
	msgBadJSON           = "JSON parse error"
)

// notFoundError replaces the generic 404 body with a resource-specific one.
type notFoundError struct {
	msg string
	err error
}

func (e *notFoundError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *notFoundError) Unwrap() error { return e.err }

// withNotFound tags err with msg when it is a not-found error.
func withNotFound(err error, msg string) error {
	if errors.Is(err, common.ErrorNotFound) {
		return &notFoundError{msg: msg, err: err}
	}
	return err
}

// writeError renders err. Unknown errors are logged and reported as a
// generic 500.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		v  *common.ValidationError
		nf *notFoundError
	)
	switch {
	case errors.As(err, &v):
		c.JSON(http.StatusBadRequest, v.Fields)
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.msg})
	case errors.Is(err, services.ErrNoDocumentsFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No documents found"})
	case errors.Is(err, services.ErrFolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Folder not found"})
	case errors.Is(err, services.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.Is(err, common.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": msgInvalidCredential})
	case errors.Is(err, common.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"detail": msgVerifyFirst})
	case errors.Is(err, common.ErrorForbidden):
		c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": msgTokenInvalid, "code": "token_not_valid"})
	case errors.Is(err, common.ErrInvalidVerificationToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
	case errors.Is(err, common.ErrEmailAlreadyVerified):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already verified"})
	default:
		s.logger.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}

func badJSON(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": msgBadJSON})
}
