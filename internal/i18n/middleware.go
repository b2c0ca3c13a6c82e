package i18n

import "net/http"

// Middleware attaches a request-scoped localizer for the configured
// language, so error responses built deep in the handler chain can call
// T and friends without threading the language through.
func Middleware(lang string) func(http.Handler) http.Handler {
	loc := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		}
		return http.HandlerFunc(fn)
	}
}
