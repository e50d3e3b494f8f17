// Package routers
package routers

import (
	"emoji-api/internal/ctx"
	"emoji-api/internal/shared"
)

// writeError maps the error chain to a status code and a user facing body.
// Server side errors only expose the sentinel message; the full chain goes to
// the request log.
func writeError(c *ctx.Context, summary string, err error) error {
	c.LogValues.AddError(err)
	rerr := shared.ClassifyError(err)
	if rerr.StatusCode >= 500 {
		c.LogValues.LogLevel = "ERROR"
	}
	body := shared.ErrorResponse{Error: rerr.Message()}
	if summary != "" {
		body = shared.ErrorResponse{Error: summary, Details: rerr.Message()}
	}
	return c.JSON(rerr.StatusCode, body)
}
