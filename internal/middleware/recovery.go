package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/errorreporting"
	"github.com/soillink/soillink/internal/logger"
)

// RecoverWithSentry recovers from panics, reports them to Sentry and
// answers 500.
func RecoverWithSentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			stack := debug.Stack()

			logger.ErrorContext(r.Context(), "Panic recovered",
				"error", rec,
				"stack", string(stack),
				"method", r.Method,
				"path", r.URL.Path,
			)

			if errorreporting.IsSentryEnabled() {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetLevel(sentry.LevelError)
				hub.Scope().SetTag("method", r.Method)
				hub.Scope().SetTag("path", r.URL.Path)
				if id := apierr.GetRequestID(r.Context()); id != "" {
					hub.Scope().SetTag("request_id", id)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %s", errorreporting.ScrubPII(fmt.Sprint(rec)))
				}
				hub.CaptureException(err)
			}

			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("An unexpected error occurred"))
		}()

		next.ServeHTTP(w, r)
	})
}
