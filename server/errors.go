package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ineyio/keyrelay"
)

// statusClientClosed is logged when the client went away before a response.
const statusClientClosed = 499

// errorStatus maps a dispatch or translation error onto an HTTP status and error type.
func errorStatus(err error) (int, string) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, "invalid_request_error"
	case errors.Is(err, keyrelay.ErrTranslation):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, keyrelay.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, keyrelay.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusClientClosed, "canceled"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

func errorMessage(err error) string {
	if errors.Is(err, keyrelay.ErrServiceUnavailable) {
		return "All available API keys have reached their daily limit."
	}
	return err.Error()
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, keyrelay.ErrorBody{
		Error: keyrelay.ErrorDetail{
			Message: message,
			Type:    errType,
			Code:    status,
		},
	})
}

func writeErr(c *gin.Context, err error) {
	status, errType := errorStatus(err)
	writeError(c, status, errType, errorMessage(err))
}
