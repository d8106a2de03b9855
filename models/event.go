package models

import (
	"fmt"
	"strings"
)

// AutomationEvent is the closed set of automation event names. Loosely
// formatted inbound names are resolved once at the boundary via ParseEvent;
// unknown names are rejected there rather than propagated.
type AutomationEvent string

const (
	EventPaymentConfirmed   AutomationEvent = "payment.confirmed"
	EventSupplierConfirmed  AutomationEvent = "supplier.confirmed"
	EventDocumentsGenerate  AutomationEvent = "documents.generate"
	EventDocumentsGenerated AutomationEvent = "documents.generated"
)

var eventNames = map[string]AutomationEvent{
	"payment.confirmed":   EventPaymentConfirmed,
	"supplier.confirmed":  EventSupplierConfirmed,
	"documents.generate":  EventDocumentsGenerate,
	"documents.generated": EventDocumentsGenerated,
}

var eventSeparators = strings.NewReplacer("_", ".", "-", ".", " ", ".", "::", ".", ":", ".")

// ParseEvent normalizes case and separator variants ("PAYMENT_CONFIRMED",
// "supplier-confirmed") to the closed enum.
func ParseEvent(name string) (AutomationEvent, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = eventSeparators.Replace(normalized)

	event, ok := eventNames[normalized]
	if !ok {
		return "", fmt.Errorf("unsupported automation event: %q", name)
	}
	return event, nil
}

type ActorType string

const (
	ActorSystem  ActorType = "system"
	ActorWebhook ActorType = "webhook"
	ActorAdmin   ActorType = "admin"
)

// EventRequest is one inbound automation trigger: a named event plus the
// booking it targets, from a webhook, an admin action or the retry scheduler.
type EventRequest struct {
	Event          string    `json:"event"`
	BookingRef     string    `json:"booking_ref"`
	Payload        JSON      `json:"payload,omitempty"`
	ActorType      ActorType `json:"actor_type"`
	ActorID        string    `json:"actor_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}
