package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jwillz7667/verbio-auth/auth"
	"github.com/jwillz7667/verbio-auth/users"
)

const contentTypeJSON = "application/json; charset=utf-8"

type loginRequest struct {
	IdentityToken string `json:"identityToken"`
	FullName      string `json:"fullName,omitempty"`
	Email         string `json:"email,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	AllDevices   bool   `json:"allDevices,omitempty"`
}

type sessionResponse struct {
	User         users.Profile `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int           `json:"expiresIn"`
}

// LoginHandler exchanges an Apple identity token for a session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdentityToken == "" {
			writeUnauthorized(w)
			return
		}

		session, err := s.auth.Login(r.Context(), req.IdentityToken, auth.ProfileHints{
			DisplayName: req.FullName,
			Email:       req.Email,
		})
		if err != nil {
			writeAuthError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse(*session))
	}
}

// RefreshHandler rotates a refresh token for a new session.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeUnauthorized(w)
			return
		}

		session, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse(*session))
	}
}

// LogoutHandler revokes the presented token's family, or all of the caller's
// sessions when allDevices is set. It acknowledges success even for missing
// or already-revoked input.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logoutRequest
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body is a valid logout

		// Bearer token is optional here; it lets allDevices work without a
		// refresh token in the body.
		var userID string
		if claims := s.claimsFromRequest(r); claims != nil {
			userID = claims.Subject
		}

		if err := s.auth.Logout(r.Context(), req.RefreshToken, req.AllDevices, userID); err != nil {
			writeAuthError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// MeHandler returns the profile claims of the verified bearer token.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeUnauthorized(w)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"id":    claims.Subject,
			"email": claims.Email,
			"tier":  string(claims.Tier),
		})
	}
}

// JWKSHandler serves the public keys downstream services verify access
// tokens against.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.signer.GetJWKS()
		if err != nil {
			http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// writeAuthError collapses every auth failure into one generic unauthorized
// response so the endpoint never reveals which check failed. Only an
// internal failure is distinguishable, as a 500.
func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.InternalErr) {
		http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	writeUnauthorized(w)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
