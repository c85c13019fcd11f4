// Package middleware provides HTTP request logging and panic recovery for the
// dev server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	derrors "git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
)

// Chain returns a middleware that applies logging and panic recovery around
// a handler. It fits chi's Use signature.
func Chain(logger *slog.Logger, adapter *derrors.HTTPErrorAdapter) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if adapter == nil {
		adapter = derrors.NewHTTPErrorAdapter(logger)
	}
	return func(next http.Handler) http.Handler {
		return loggingMiddleware(logger, panicRecoveryMiddleware(logger, adapter, next))
	}
}

// loggingMiddleware logs method, path, status and duration. The wrapped
// writer keeps http.Flusher so event streams still work.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.Debug("HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(status),
			logfields.Duration(time.Since(start)),
			slog.Int("bytes", ww.BytesWritten()))
	})
}

// panicRecoveryMiddleware turns a handler panic into a JSON 500 response.
func panicRecoveryMiddleware(logger *slog.Logger, adapter *derrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("HTTP handler panic",
				slog.Any("panic", rec),
				logfields.Path(r.URL.Path),
				logfields.Method(r.Method))

			panicErr := derrors.InternalError("internal server error").
				WithContext("path", r.URL.Path).
				WithContext("method", r.Method).
				Build()
			adapter.WriteErrorResponse(w, r, panicErr)
		}()
		next.ServeHTTP(w, r)
	})
}
