package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/gin-gonic/gin"
)

const (
	msgUnauthorized = "Unauthorized"
	msgBadRequest   = "Invalid request body"
	msgEmailTaken   = "Email already registered"
	msgInternal     = "Internal server error"
	msgLoggedOut    = "Logged out"
	msgLoggedOutAll = "Logged out from all sessions"
)

// AppResponse is the envelope of every JSON response. A failure carries
// Message and no Data.
type AppResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message,omitempty"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, AppResponse{StatusCode: status, Data: data})
}

func respondMessage(c *gin.Context, status int, msg string) {
	c.JSON(status, AppResponse{StatusCode: status, Message: msg})
}

func abortMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, AppResponse{StatusCode: status, Message: msg})
}

// errorStatus maps a service error to a status and an opaque message.
// unauthorizedMsg is used for every credential or token error.
func errorStatus(err error, unauthorizedMsg string) (int, string) {
	switch {
	case common.IsCredentialError(err):
		return http.StatusUnauthorized, unauthorizedMsg
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrEmailTaken):
		return http.StatusConflict, msgEmailTaken
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func respondError(c *gin.Context, err error, unauthorizedMsg string) {
	status, msg := errorStatus(err, unauthorizedMsg)
	respondMessage(c, status, msg)
}

func abortError(c *gin.Context, err error) {
	status, msg := errorStatus(err, msgUnauthorized)
	abortMessage(c, status, msg)
}
