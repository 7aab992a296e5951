// Package handler wires HTTP requests to the service layer. Handlers stay
// thin: bind, call the service, shape the success response. Errors are
// attached to the context and rendered by the funnel middleware.
package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/middleware"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/service"
)

func init() {
	// Validation errors report the json field name, not the Go one.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// bindJSON binds and validates a JSON body, mapping failures to the funnel's
// error shapes: tag violations become a 422 with per-field messages, anything
// else a 400.
func bindJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return bindError(err)
	}
	return nil
}

// bind negotiates on Content-Type, accepting both the JSON API shape and the
// form posts coming from the HTML pages.
func bind(c *gin.Context, dest any) error {
	if err := c.ShouldBind(dest); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return apperr.Validation(fields)
	}
	return apperr.BadRequest("Invalid request body").WithErr(err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// fail routes an error into the funnel and stops the chain.
func fail(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}

// pageFrom reads and clamps the limit/offset query parameters.
func pageFrom(c *gin.Context) models.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return models.NewPage(limit, offset)
}

// clickInfo captures the request attributes analytics cares about.
func clickInfo(c *gin.Context) service.ClickInfo {
	return service.ClickInfo{
		IP:        middleware.ClientIdentity(c),
		UserAgent: c.GetHeader("User-Agent"),
		Referer:   c.GetHeader("Referer"),
	}
}

// deviceFrom captures the request attributes a session row records.
func deviceFrom(c *gin.Context) service.Device {
	return service.Device{
		IP:        middleware.ClientIdentity(c),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

// NoRoute funnels unmatched paths through the standard error shape.
func NoRoute(c *gin.Context) {
	fail(c, apperr.NotFound("Resource not found"))
}
