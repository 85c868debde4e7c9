// Package handlers implements the /car endpoints on top of CarService.
//
// Every failure leaves through fail, so clients always see the same JSON
// envelope. Store and service errors go through failErr, which picks the
// status from the error kind:
//
//	GET /api/car/3f9c              -> 404 {"code":"not_found","message":"car not found"}
//	POST /api/car {"model":""}     -> 400 {"code":"validation_failed","message":"model is required"}
//	GET /api/car (store down)      -> 503 {"code":"store_unavailable","message":"..."}
//
// The request id set by middleware.RequestID is echoed in request_id so a
// client report can be matched to the server log line.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/car-manager/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"0b6f2c1e-57d4-4f0e-9a51-2f1f0d1f4c2a"`
	// One of the ErrCode* constants.
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"car not found"`
}

// fail writes the envelope and aborts the chain. 5xx answers are logged
// with the request-scoped logger; 4xx are the client's problem and only show
// up in the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("car api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer fallbacks (unknown route, wrong method,
// readiness) with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr answers with the status classify assigns to err. The message of a
// 500 is replaced so driver internals never reach the client; the cause is
// logged instead.
func failErr(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled error")
	}
	fail(c, status, code, msg)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
