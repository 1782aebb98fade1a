package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint returns. code 0 means success;
// nonzero codes distinguish application failure classes.
type Response struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Status: "success", Data: data})
}

func OKMsg(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Status: "success", Message: msg, Data: data})
}

// Err reports a validation or precondition failure. These are ordinary
// application outcomes, so the HTTP status stays 200 and the envelope
// carries code 1.
func Err(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, Response{Code: 1, Status: "error", Message: msg})
}

// Fail reports a transport-level failure (bad request shape, internal fault)
// with an explicit HTTP status and application code.
func Fail(c *gin.Context, httpStatus, code int, msg string) {
	c.JSON(httpStatus, Response{Code: code, Status: "error", Message: msg})
}

// Unauthorized rejects the request with a bearer challenge.
func Unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Code: 40100, Status: "error", Message: msg})
}
