package v1

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kythours/modelvol/internal/reqid"
)

const headerRequestID = "X-Request-ID"

// maxRequestID caps a caller-supplied ID before it lands in log lines.
const maxRequestID = 128

// RequestID puts a correlation ID in the request context and echoes it in the
// response. A caller's X-Request-ID is kept when it is short printable ASCII;
// anything else is replaced by a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(reqid.With(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestID {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
