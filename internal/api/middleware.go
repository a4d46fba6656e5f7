package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details interface{}      `json:"details,omitempty"`
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Panic while handling request", map[string]interface{}{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"panic":  fmt.Sprint(r),
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
					Code:    errors.ErrCodeInternal,
					Message: "Unexpected error",
				})
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.log.Warn("Request failed", fields)
			return
		}
		s.log.Debug("Request handled", fields)
	}
}

// fail writes err with the status that matches its code. Internal errors are
// logged and their details withheld.
func (s *Server) fail(c *gin.Context, err error) {
	stdErr := errors.Normalize(err)
	status := errors.HTTPStatus(stdErr.Code)
	body := errorBody{Code: stdErr.Code, Message: stdErr.Message}
	if status >= http.StatusInternalServerError {
		s.log.Error("Request error", map[string]interface{}{
			"path":  c.FullPath(),
			"code":  stdErr.Code,
			"error": err.Error(),
		})
	} else if stdErr.Details != "" {
		body.Details = stdErr.Details
	}
	c.AbortWithStatusJSON(status, body)
}

// invalid writes a VALIDATION_FAILED response. Binding errors are flattened
// into field/tag pairs.
func (s *Server) invalid(c *gin.Context, err error) {
	body := errorBody{Code: errors.ErrCodeValidationFailed, Message: "Request validation failed"}
	var verrs validator.ValidationErrors
	var schemaErr *validation.ValidationResult
	if stderrors.As(err, &schemaErr) {
		body.Details = schemaErr.Errors
	} else if stderrors.As(err, &verrs) {
		fields := make([]gin.H, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, gin.H{"field": fe.Field(), "rule": fe.Tag()})
		}
		body.Details = fields
	} else if err != nil {
		body.Details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

func (s *Server) int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		s.invalid(c, fmt.Errorf("%s must be a positive integer", name))
		return 0, false
	}
	return id, true
}
