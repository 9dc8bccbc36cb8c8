package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

// statusOf maps an error kind to its HTTP status. It depends on the kind
// alone, never on the backend that produced the error.
func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidQuantity:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"productId,omitempty"`
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(domain.KindOf(err))

	resp := errorResponse{Error: "internal server error", Code: "internal"}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Code = de.Code
		resp.ProductID = de.ProductID
		if status != http.StatusInternalServerError {
			resp.Error = de.Message
		}
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func bindError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Debug("Invalid request", zap.Error(err))
	writeError(c, logger, domain.Validation("invalid request: "+err.Error()))
}
