package api

import (
	"net/http"
	"strings"

	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := model.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		jww.ERROR.Printf("Failed to hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if _, err := s.users.CreateUser(r.Context(), req.Username, hash); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			writeError(w, http.StatusBadRequest, "Username already taken")
			return
		}
		jww.ERROR.Printf("Register error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	jww.INFO.Printf("User registered: %s", req.Username)
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Registration successful"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.users.GetUser(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "User not found")
		return
	}
	if err != nil {
		jww.ERROR.Printf("Login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Wrong password")
		return
	}

	token, err := s.tokens.GenerateToken(user.Username)
	if err != nil {
		jww.ERROR.Printf("Failed to generate token: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	names, err := s.users.ListUsers(r.Context())
	if err != nil {
		jww.ERROR.Printf("Failed to list users: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, names)
}
