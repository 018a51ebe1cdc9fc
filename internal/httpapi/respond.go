package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"recall/internal/auth"
	"recall/internal/domain"
)

var registerOnce sync.Once

// registerJSONFieldNames makes validation errors report json field names.
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// bind decodes the JSON body into req and writes a 400 on failure.
func bind(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			name := fe.Field()
			if _, seen := fields[name]; !seen {
				fields[name] = fieldMessage(fe)
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"fields":  fields,
		})
		return false
	}

	abortWithError(c, http.StatusBadRequest, "Malformed request body")
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Please enter a valid email address"
	case "url":
		return "Please enter a valid URL"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Select at least %s", fe.Param())
		}
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	default:
		return "Invalid value"
	}
}

// respondError maps service errors to HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var authErr *auth.Error
	switch {
	case errors.Is(err, domain.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "Item not found")
	case errors.Is(err, domain.ErrInvalidURL):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"fields":  gin.H{"url": "Please enter a valid URL"},
		})
	case errors.Is(err, domain.ErrNoURLs),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrEmptySummary):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		abortWithError(c, http.StatusUnauthorized, "Authentication required")
	case errors.As(err, &authErr):
		status := authErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		abortWithError(c, status, authErr.Message)
	case errors.Is(err, domain.ErrUpstream):
		s.log.WithError(err).WithField("path", c.FullPath()).Warn("Upstream provider failed")
		abortWithError(c, http.StatusBadGateway, "Upstream provider failed, please try again")
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
