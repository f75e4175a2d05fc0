package api

import (
	"net/http"
	"strconv"

	"subtracker/internal/stories/subs"
)

type createSubscriptionBody struct {
	Name          string    `json:"name" validate:"required,min=2,max=100"`
	Price         float64   `json:"price" validate:"gt=0"`
	Currency      string    `json:"currency" validate:"omitempty,oneof=USD EUR GBP"`
	Frequency     string    `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Category      string    `json:"category" validate:"required,oneof=sports news entertainment lifestyle technology finance politics other"`
	PaymentMethod string    `json:"paymentMethod" validate:"required"`
	StartDate     *jsonDate `json:"startDate" validate:"required"`
	RenewalDate   *jsonDate `json:"renewalDate"`
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}

	var body createSubscriptionBody
	if !h.decode(w, r, &body) {
		return
	}

	req := &subs.CreateSubscriptionRequest{
		UserID:        requesterID,
		Name:          body.Name,
		Price:         body.Price,
		Currency:      subs.Currency(body.Currency),
		Frequency:     subs.Frequency(body.Frequency),
		Category:      subs.Category(body.Category),
		PaymentMethod: body.PaymentMethod,
		StartDate:     body.StartDate.Time,
	}
	if body.RenewalDate != nil {
		req.RenewalDate = &body.RenewalDate.Time
	}

	result, err := h.creator.CreateSubscription(r.Context(), req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, envelope{
		Success:       true,
		Data:          result.Subscription,
		WorkflowRunID: result.WorkflowRunID,
	})
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}
	subscriptionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	subscription, err := h.subs.GetSubscription(r.Context(), requesterID, subscriptionID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, subscription)
}

func (h *Handler) listUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.subs.ListUserSubscriptions(r.Context(), requesterID, userID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, list)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}
	subscriptionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	subscription, err := h.subs.CancelSubscription(r.Context(), requesterID, subscriptionID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, subscription)
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}
	subscriptionID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.subs.DeleteSubscription(r.Context(), requesterID, subscriptionID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{Success: true, Message: "subscription deleted"})
}

func (h *Handler) upcomingRenewals(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requester(w, r)
	if !ok {
		return
	}

	var days int
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	list, err := h.subs.UpcomingRenewals(r.Context(), requesterID, days)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, list)
}
