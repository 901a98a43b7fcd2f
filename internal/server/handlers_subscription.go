package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"telefwd/internal/app"
	"telefwd/pkg/domain"
)

func (s *Server) handleSubscriptionCreate(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.CreateSubscription(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleSubscriptionCancel(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.CancelSubscription(r.Context(), user); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscription cancelled"})
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sub, err := s.app.SubscriptionStatus(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": []domain.Plan{app.PremiumPlan}})
}

func (s *Server) handleRetryPayment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.RetryPayment(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleWebhook receives payment provider notifications. The signature is
// verified over the raw body before any JSON parsing. Unknown events and
// unknown subscription ids are acknowledged so the provider stops retrying.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !s.app.VerifyWebhook(body, r.Header.Get("X-Webhook-Signature")) {
		s.audit(r, "subscription.webhook", "fail", "reason", "bad_signature")
		writeError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}

	var payload struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID                 string `json:"id"`
			BillingAgreementID string `json:"billing_agreement_id"`
			BillingInfo        struct {
				NextBillingTime string `json:"next_billing_time"`
			} `json:"billing_info"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var nextBilling *time.Time
	if ts, err := time.Parse(time.RFC3339, payload.Resource.BillingInfo.NextBillingTime); err == nil {
		nextBilling = &ts
	}

	if err := s.app.HandleWebhook(r.Context(), app.WebhookEvent{
		EventType:       payload.EventType,
		SubscriptionID:  webhookSubscriptionID(payload.EventType, payload.Resource.ID, payload.Resource.BillingAgreementID),
		NextBillingTime: nextBilling,
	}); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// webhookSubscriptionID picks the subscription id out of the event resource.
// Payment events reference the subscription through billing_agreement_id;
// subscription lifecycle events carry it as the resource id.
func webhookSubscriptionID(eventType, resourceID, billingAgreementID string) string {
	switch eventType {
	case "PAYMENT.SALE.COMPLETED", "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		if billingAgreementID != "" {
			return billingAgreementID
		}
	}
	return resourceID
}
