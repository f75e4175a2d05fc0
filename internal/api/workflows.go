package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subtracker/internal/reminder"
	"subtracker/internal/workflow"
)

type triggerReminderBody struct {
	SubscriptionID int64 `json:"subscriptionId" validate:"required,gt=0"`
}

type runView struct {
	*workflow.Run
	CompletedSteps []string `json:"completedSteps"`
}

// triggerReminder starts a new reminder run for one of the caller's
// subscriptions.
func (h *Handler) triggerReminder(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}

	var body triggerReminderBody
	if !h.decode(w, r, &body) {
		return
	}

	if _, err := h.subs.GetSubscription(r.Context(), requesterID, body.SubscriptionID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	runID, err := h.creator.StartReminders(r.Context(), body.SubscriptionID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, envelope{Success: true, WorkflowRunID: &runID})
}

// getRun reports the state of a reminder run. Only the owner of the
// subscription the run belongs to may see it.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}

	view, err := h.workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	var payload reminder.Payload
	if view.Run.Workflow != reminder.WorkflowName || json.Unmarshal(view.Run.Payload, &payload) != nil {
		respondError(w, http.StatusNotFound, workflow.ErrRunNotFound.Error())
		return
	}
	if _, err := h.subs.GetSubscription(r.Context(), requesterID, payload.SubscriptionID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	labels := make([]string, 0, len(view.Steps))
	for _, st := range view.Steps {
		labels = append(labels, st.Label)
	}
	respondData(w, http.StatusOK, runView{Run: view.Run, CompletedSteps: labels})
}
