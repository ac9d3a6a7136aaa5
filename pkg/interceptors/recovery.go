package interceptors

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/FACorreiaa/cityinfo-api/pkg/httpx"
)

// NewRecoveryMiddleware turns a panicking handler into a 500 response.
func NewRecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "Panic recovered", appendLoggerFields(r.Context(),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)...)
				httpx.WriteJSON(w, http.StatusInternalServerError,
					httpx.FromError(fmt.Errorf("panic: %v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
