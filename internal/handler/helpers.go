package handler

import (
	stderr "errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

// handleError maps domain errors onto stable api codes. Typed errors keep
// their context in the message so the boundary can render a useful denial.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err))

	var budgetErr *appErr.BudgetExceededError
	var limitErr *appErr.DocumentLimitExceededError
	switch {
	case stderr.As(err, &budgetErr):
		response.Error(c, errcode.ErrBudgetExceeded, budgetErr.Error())
	case stderr.As(err, &limitErr):
		response.Error(c, errcode.ErrDocumentLimitExceeded, limitErr.Error())
	case stderr.Is(err, appErr.ErrBudgetExceeded):
		response.Error(c, errcode.ErrBudgetExceeded, "budget exceeded")
	case stderr.Is(err, appErr.ErrDocumentLimitExceeded):
		response.Error(c, errcode.ErrDocumentLimitExceeded, "document limit exceeded")
	case stderr.Is(err, appErr.ErrEmbeddingUnavailable):
		response.Error(c, errcode.ErrEmbeddingUnavailable, "embedding service unavailable, retry later")
	case stderr.Is(err, appErr.ErrCompletionUnavailable):
		response.Error(c, errcode.ErrCompletionUnavailable, "completion service unavailable, retry later")
	case stderr.Is(err, appErr.ErrIndexInconsistency):
		response.Error(c, errcode.ErrIndexInconsistency, "document index left inconsistent, cleanup is scheduled")
	case stderr.Is(err, appErr.ErrInvalidConfig):
		response.Error(c, errcode.ErrInvalidConfig, err.Error())
	case stderr.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case stderr.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case stderr.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case stderr.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case stderr.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
