package middleware

import (
	"errors"
	"fmt"
	"time"

	"emoji-api/internal/ctx"
	"emoji-api/internal/metrics"
	"emoji-api/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate(requestIDAlphabet, 28)
			reqID = "req_" + reqID
			start := time.Now()

			logValues := &ctx.ContextLogValues{
				RequestID: reqID,
				StartTime: start,
				Path:      c.Path(),
			}
			cc := &ctx.Context{
				Context:   c,
				Log:       log.With("request_id", reqID),
				Reqid:     reqID,
				LogValues: logValues,
			}
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			err := next(cc)

			logValues.RequestDuration = time.Since(start)
			logValues.StatusCode = cc.Response().Status
			if err != nil {
				logValues.AddError(err)
				var herr *echo.HTTPError
				if errors.As(err, &herr) {
					logValues.StatusCode = herr.Code
				}
			}

			reqLog := log.With(zap.Object("request", logValues))
			switch {
			case logValues.LogLevel == "ERROR" || logValues.StatusCode >= 500:
				reqLog.Error("end_of_request")
			case logValues.StatusCode >= 400:
				reqLog.Warn("end_of_request")
			default:
				reqLog.Info("end_of_request")
			}
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", logValues.StatusCode)).Inc()
			return err
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error(), "stack", string(stack))
			return c.JSON(500, shared.ErrorResponse{Error: shared.ErrInternalServerError.Message()})
		},
	})
}
