package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/service"
)

type AuthHandler struct {
	users    *service.UserService
	jwt      *auth.JWTManager
	validate *validator.Validate
}

func NewAuthHandler(users *service.UserService, jwt *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		users:    users,
		jwt:      jwt,
		validate: validator.New(),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		fields := map[string]string{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[fe.Field()] = "failed on " + fe.Tag()
			}
		}
		writeErr(w, apperr.Invalid(fields))
		return
	}

	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}

	token, err := h.jwt.IssueToken(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user, "token": token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		writeErr(w, err)
		return
	}

	token, err := h.jwt.IssueToken(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "token": token})
}
