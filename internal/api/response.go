package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"subtracker/internal/stories/subs"
	"subtracker/internal/stories/users"
	"subtracker/internal/workflow"
)

type envelope struct {
	Success       bool    `json:"success"`
	Data          any     `json:"data,omitempty"`
	Message       string  `json:"message,omitempty"`
	WorkflowRunID *string `json:"workflowRunId,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondData(w http.ResponseWriter, code int, data any) {
	respondWithJSON(w, code, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, envelope{Success: false, Message: message})
}

// respondServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a 500 without details.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, subs.ErrNotFound), errors.Is(err, workflow.ErrRunNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, subs.ErrNotOwner):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, subs.ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, users.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("Request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
