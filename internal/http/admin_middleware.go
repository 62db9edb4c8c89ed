package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin guards site-registration endpoints with the configured
// shared token, compared in constant time.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		expected := r.adminToken
		if expected == "" {
			r.logger.Error("admin token not configured", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "admin authentication misconfigured")
			return
		}
		token := strings.TrimSpace(req.Header.Get("X-Admin-Token"))
		if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			r.logger.Warn("admin token mismatch", "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, req)
	}
}
