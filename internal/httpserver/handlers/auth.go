package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/vpsinv/internal/auth"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/mw"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User auth.User `json:"user"`
}

func Register(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(w, r, d, &req); err != nil {
			writeError(w, r, d, err)
			return
		}

		user, err := d.Auth.Register(r.Context(), req.Email, req.Password, req.Name)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusCreated, userResponse{User: user})
	}
}

func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, d, &req); err != nil {
			writeError(w, r, d, err)
			return
		}

		session, err := d.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// Logout closes the caller's session. A missing or already closed session
// still answers 204.
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := mw.BearerToken(r); token != "" {
			if err := d.Auth.Logout(r.Context(), token); err != nil && !isAuthError(err) {
				writeError(w, r, d, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Me(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}
		writeJSON(w, http.StatusOK, userResponse{User: user})
	}
}
