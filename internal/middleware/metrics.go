package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth protects a handler with a single username and password. When both
// are empty the handler is left open.
func BasicAuth(realm, username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if username == "" && password == "" {
			return next
		}
		challenge := `Basic realm="` + realm + `"`

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			// Compare both so timing doesn't reveal which one was wrong.
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

			if !ok || !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
