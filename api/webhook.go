package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/services"
	"github.com/voyago/fulfillment/utils"
)

const webhookBodyLimit = 1 << 16

// WebhookHandler turns inbound provider webhooks into automation events.
// Redundant deliveries are expected; the automation core absorbs them.
type WebhookHandler struct {
	automation             *services.AutomationService
	stripeWebhookSecret    string
	supplierCallbackSecret string
}

func CreateWebhookHandler(automation *services.AutomationService, stripeWebhookSecret, supplierCallbackSecret string) *WebhookHandler {
	return &WebhookHandler{
		automation:             automation,
		stripeWebhookSecret:    stripeWebhookSecret,
		supplierCallbackSecret: supplierCallbackSecret,
	}
}

func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		http.Error(w, "Missing Stripe signature", http.StatusUnauthorized)
		return
	}

	event, err := webhook.ConstructEvent(payload, signature, h.stripeWebhookSecret)
	if err != nil {
		http.Error(w, "Invalid Stripe signature", http.StatusUnauthorized)
		return
	}

	bookingRef, ok := stripeBookingRef(event)
	if !ok {
		// Not an event this core automates; acknowledge so Stripe stops
		// redelivering it.
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "ignored": true})
		return
	}

	err = h.automation.Dispatch(r.Context(), &models.EventRequest{
		Event:          string(models.EventPaymentConfirmed),
		BookingRef:     bookingRef,
		Payload:        models.JSON{"trigger": "payment", "provider_event_id": event.ID},
		ActorType:      models.ActorWebhook,
		ActorID:        "stripe",
		IdempotencyKey: "stripe:" + event.ID,
	})
	if err != nil && utils.IsFatal(err) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	// Retryable failures are queued; the delivery itself is acknowledged.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received":   true,
		"event_type": string(event.Type),
	})
}

func stripeBookingRef(event stripe.Event) (string, bool) {
	switch event.Type {
	case "payment_intent.succeeded", "checkout.session.completed":
	default:
		return "", false
	}

	var object struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return "", false
	}

	ref := object.Metadata["booking_code"]
	if ref == "" {
		ref = object.Metadata["booking_id"]
	}
	return ref, ref != ""
}

type supplierCallback struct {
	Event           string      `json:"event"`
	BookingRef      string      `json:"booking_ref"`
	ConfirmationRef string      `json:"confirmation_ref"`
	Data            models.JSON `json:"data"`
}

func (h *WebhookHandler) HandleSupplierWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Callback-Token")
	if signature == "" {
		http.Error(w, "Missing supplier signature", http.StatusUnauthorized)
		return
	}

	mac := hmac.New(sha256.New, []byte(h.supplierCallbackSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		http.Error(w, "Invalid supplier signature", http.StatusUnauthorized)
		return
	}

	var callback supplierCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if callback.BookingRef == "" {
		http.Error(w, "Missing booking reference", http.StatusBadRequest)
		return
	}

	eventPayload := models.JSON{}
	for k, v := range callback.Data {
		eventPayload[k] = v
	}
	if callback.ConfirmationRef != "" {
		eventPayload["confirmation_ref"] = callback.ConfirmationRef
	}

	err = h.automation.Dispatch(r.Context(), &models.EventRequest{
		Event:      string(models.EventSupplierConfirmed),
		BookingRef: callback.BookingRef,
		Payload:    eventPayload,
		ActorType:  models.ActorWebhook,
		ActorID:    "supplier",
	})
	if err != nil && utils.IsFatal(err) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received":   true,
		"event_type": callback.Event,
	})
}
