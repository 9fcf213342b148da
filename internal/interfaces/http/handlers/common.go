// Package handlers implements the gin handlers of the HTTP API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/middleware"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeAppError maps err to its HTTP status. Server-side failures keep
// their code but hide message and detail.
func writeAppError(c *gin.Context, err error) {
	_ = c.Error(err)

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:      string(errors.ErrCodeBadRequest),
			Message:   "request body too large",
			Detail:    "limit " + strconv.FormatInt(maxBytes.Limit, 10) + " bytes",
			RequestID: middleware.GetRequestID(c),
		})
		return
	}

	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	resp := ErrorResponse{Code: string(code), RequestID: middleware.GetRequestID(c)}
	var appErr *errors.AppError
	switch {
	case status >= 500:
		resp.Message = errors.DefaultMessageForCode(code)
	case errors.As(err, &appErr):
		resp.Message = appErr.Message
		resp.Detail = appErr.Detail
	default:
		resp.Message = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeBadRequest, "query parameter %s must be an integer", name).WithDetail(raw)
	}
	return v, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(c *gin.Context, name string, def bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Newf(errors.ErrCodeBadRequest, "query parameter %s must be a boolean", name).WithDetail(raw)
	}
	return v, nil
}
