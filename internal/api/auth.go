package api

import (
	"net/http"
	"time"

	"subtracker/internal/stories/users"
)

type signUpBody struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type signInBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *users.User `json:"user"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if !h.decode(w, r, &body) {
		return
	}

	user, err := h.users.SignUp(r.Context(), users.SignUpRequest{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var body signInBody
	if !h.decode(w, r, &body) {
		return
	}

	user, err := h.users.SignIn(r.Context(), users.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, code int, user *users.User) {
	token, expiresAt, err := h.tokens.Issue(user.ID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondData(w, code, authResult{Token: token, ExpiresAt: expiresAt, User: user})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if userID != requesterID {
		respondError(w, http.StatusUnauthorized, "you are not the owner of this account")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondData(w, http.StatusOK, user)
}
