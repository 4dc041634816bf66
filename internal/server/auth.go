package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

const tokenCookieName = "abg_token"

// authorized checks for a valid token in the Authorization header, the query
// string or the session cookie.
func (s *Server) authorized(r *http.Request) bool {
	if h := r.Header.Get("Authorization"); h != "" {
		if bearer, ok := strings.CutPrefix(h, "Bearer "); ok {
			return s.tokenMatches(bearer)
		}
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return s.tokenMatches(q)
	}
	cookie, err := r.Cookie(tokenCookieName)
	return err == nil && s.tokenMatches(cookie.Value)
}

func (s *Server) tokenMatches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}

// requireToken rejects requests that are not authorized.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// handleLogin exchanges a token query param for a session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	queryToken := r.URL.Query().Get("token")
	if queryToken == "" || !s.tokenMatches(queryToken) {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    s.token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(24 * time.Hour / time.Second), // 24 hours
		SameSite: http.SameSiteLaxMode,
	})

	// Redirect without the token param
	http.Redirect(w, r, "/api/experiments", http.StatusFound)
}
