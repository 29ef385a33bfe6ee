package trace

import "net/http"

// Middleware extracts or creates trace context for HTTP requests and echoes
// the trace ID back in the response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := newIDs(IDs{TraceID: r.Header.Get(TraceIDKey), SpanID: r.Header.Get(SpanIDKey)})
		w.Header().Set(TraceIDKey, ids.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ids)))
	})
}
