package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/logger"
)

var errMalformedBody = apperr.Validation("body", "The request body must be valid JSON.")

// writeError 将领域错误映射为 HTTP 响应；未知错误统一 500，仅 debug 下返回详情。
func (h *handlers) writeError(c *gin.Context, err error) {
	var (
		ve *apperr.ValidationError
		su *apperr.SizeUnavailableError
		is *apperr.InsufficientStockError
		nf *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		fields := make(map[string][]string, len(ve.Fields))
		for k, msg := range ve.Fields {
			fields[k] = []string{msg}
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": ve.Error(), "errors": fields})
	case errors.As(err, &su):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message":         su.Error(),
			"code":            su.Code(),
			"requested_size":  su.Requested,
			"available_sizes": su.Available,
		})
	case errors.As(err, &is):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message":   is.Error(),
			"code":      is.Code(),
			"size":      is.Size,
			"available": is.Available,
		})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found.", "code": nf.Code()})
	default:
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", zap.Error(err))
		msg := "Server Error"
		if h.debug {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": msg})
	}
}
