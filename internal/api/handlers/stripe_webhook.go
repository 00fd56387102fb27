// Package handlers contains the HTTP handler implementations for the Scout
// Pup API.
//
// The Stripe webhook handler is NOT behind auth middleware; it is called
// directly by Stripe. Security is provided by verifying the Stripe-Signature
// header using HMAC-SHA256.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scoutpup/internal/core"
	"scoutpup/internal/external"
	"scoutpup/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a Stripe webhook payload
// (64 KB). Stripe payloads are small; this limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// ---------------------------------------------------------------------------
// Interfaces for webhook handler dependencies
// ---------------------------------------------------------------------------

// UserBillingState is the subset of the user repository the webhook handler
// mutates. Every method assigns absolute state; none of them read-modify-write,
// so out-of-order deliveries converge on the latest event's truth.
type UserBillingState interface {
	ActivateSubscription(ctx context.Context, userID string, customerID string) error
	SetSubscriptionStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus) (bool, error)
	ResetCheckCountByCustomer(ctx context.Context, customerID string) (bool, error)
}

// EventLedger records processed webhook event IDs for idempotency.
type EventLedger interface {
	// MarkProcessed returns true on the first sighting of the event ID and
	// false for redeliveries.
	MarkProcessed(ctx context.Context, eventID string, eventType string) (bool, error)
	// Unmark releases an event ID claimed by MarkProcessed so a redelivery
	// is treated as first-seen again.
	Unmark(ctx context.Context, eventID string) error
}

// WebhookMetrics counts processed webhook events by outcome. May be nil.
type WebhookMetrics interface {
	RecordWebhookEvent(eventType, outcome string)
}

// ---------------------------------------------------------------------------
// Stripe Webhook Handler
// ---------------------------------------------------------------------------

// StripeWebhookHandler handles asynchronous billing events from Stripe and
// synchronizes the local subscription state machine.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	users    UserBillingState
	ledger   EventLedger
	metrics  WebhookMetrics
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	users UserBillingState,
	ledger EventLedger,
	metrics WebhookMetrics,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		users:    users,
		ledger:   ledger,
		metrics:  metrics,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. The path must stay in the auth
// middleware's public list.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/webhook", h.Handle)
}

// Handle processes an incoming Stripe webhook delivery.
//
//  1. Reads the raw body (64 KB cap) and the Stripe-Signature header.
//  2. Verifies the signature; a missing or invalid signature is rejected
//     with 400 before any state is touched.
//  3. Claims the event ID in the dedupe ledger; redeliveries are
//     acknowledged with 200 and no mutation.
//  4. Routes by event type and applies the state change.
//  5. Responds 200 with an empty JSON object. When processing fails, the
//     ledger claim is released and 500 makes Stripe redeliver, so the
//     retry runs the event again instead of short-circuiting as a
//     duplicate.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignature,
			"missing Stripe-Signature header", nil))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignature,
			"webhook signature verification failed", err))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON", err))
		return
	}

	if event.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"webhook event has no id", nil))
		return
	}

	firstSeen, err := h.ledger.MarkProcessed(r.Context(), event.ID, event.Type)
	if err != nil {
		h.record(event.Type, "error")
		core.Error(w, r, err)
		return
	}
	if !firstSeen {
		h.logger.InfoContext(r.Context(), "duplicate webhook delivery acknowledged",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		h.record(event.Type, "duplicate")
		core.JSON(w, r, http.StatusOK, struct{}{})
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		h.record(event.Type, "error")
		// Release the ledger claim so the redelivery is processed rather
		// than dropped as a duplicate. Mutations are single absolute
		// UPDATEs, so running the event again converges on the same state.
		if unmarkErr := h.ledger.Unmark(r.Context(), event.ID); unmarkErr != nil {
			h.logger.ErrorContext(r.Context(), "failed to release ledger entry for retry",
				"event_id", event.ID,
				"error", unmarkErr,
			)
		}
		core.Error(w, r, err)
		return
	}

	h.record(event.Type, "processed")
	core.JSON(w, r, http.StatusOK, struct{}{})
}

func (h *StripeWebhookHandler) record(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(eventType, outcome)
	}
}

// routeEvent dispatches the event to the matching state transition.
// Unhandled event types are acknowledged without action.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case external.EventSubscriptionUpdated:
		return h.handleSubscriptionStatus(ctx, event, event.subscriptionStatus())

	case external.EventSubscriptionDeleted:
		return h.handleSubscriptionStatus(ctx, event, types.SubStatusCanceled)

	case external.EventInvoicePaid:
		return h.handleInvoicePaid(ctx, event)

	case external.EventInvoicePaymentFailed:
		return h.handleSubscriptionStatus(ctx, event, types.SubStatusPastDue)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted links the user to the new Stripe customer and marks
// the subscription active. The user ID travels in client_reference_id, set
// when the checkout session was created.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	var session stripeCheckoutSessionObj
	if err := event.unmarshalObject(&session); err != nil {
		return err
	}

	if session.ClientReferenceID == "" || session.Customer == "" {
		// A session created outside this backend (e.g. a payment link) has no
		// reference back to an account. Acknowledge and move on.
		h.logger.WarnContext(ctx, "checkout session without account reference, ignoring",
			"event_id", event.ID,
			"has_client_reference_id", session.ClientReferenceID != "",
			"has_customer", session.Customer != "",
		)
		return nil
	}

	err := h.users.ActivateSubscription(ctx, session.ClientReferenceID, session.Customer)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			h.logger.WarnContext(ctx, "checkout session references unknown user, ignoring",
				"event_id", event.ID,
				"user_id", session.ClientReferenceID,
			)
			return nil
		}
		return err
	}

	h.logger.InfoContext(ctx, "subscription activated",
		"event_id", event.ID,
		"user_id", session.ClientReferenceID,
	)
	return nil
}

// handleSubscriptionStatus applies an absolute subscription status for the
// customer named in the event. Events for customers not linked to any local
// user are benign no-ops.
func (h *StripeWebhookHandler) handleSubscriptionStatus(ctx context.Context, event *stripeWebhookEvent, status types.SubscriptionStatus) error {
	customerID := event.customerID()
	if customerID == "" {
		h.logger.WarnContext(ctx, "webhook event has no customer, ignoring",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}

	matched, err := h.users.SetSubscriptionStatusByCustomer(ctx, customerID, status)
	if err != nil {
		return err
	}
	if !matched {
		h.logger.InfoContext(ctx, "webhook event for unknown customer, ignoring",
			"event_id", event.ID,
			"customer_id", customerID,
		)
		return nil
	}

	h.logger.InfoContext(ctx, "subscription status updated",
		"event_id", event.ID,
		"customer_id", customerID,
		"status", string(status),
	)
	return nil
}

// handleInvoicePaid marks the subscription active and resets the monthly
// check counter: a paid invoice is the start of a new billing period.
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, event *stripeWebhookEvent) error {
	customerID := event.customerID()
	if customerID == "" {
		h.logger.WarnContext(ctx, "invoice event has no customer, ignoring",
			"event_id", event.ID,
		)
		return nil
	}

	matched, err := h.users.SetSubscriptionStatusByCustomer(ctx, customerID, types.SubStatusActive)
	if err != nil {
		return err
	}
	if !matched {
		h.logger.InfoContext(ctx, "invoice for unknown customer, ignoring",
			"event_id", event.ID,
			"customer_id", customerID,
		)
		return nil
	}

	if _, err := h.users.ResetCheckCountByCustomer(ctx, customerID); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "billing period reset",
		"event_id", event.ID,
		"customer_id", customerID,
	)
	return nil
}

// ---------------------------------------------------------------------------
// Stripe Event Parsing
// ---------------------------------------------------------------------------

// stripeWebhookEvent is a minimal representation of a Stripe webhook event
// with just the fields needed for routing and processing. The full
// stripe.Event type is deliberately not used: it couples the handler to the
// library's churn and makes test payloads noisy.
type stripeWebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// stripeEventData wraps the event data object.
type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeCheckoutSessionObj holds the minimal fields of a
// checkout.session.completed data object.
type stripeCheckoutSessionObj struct {
	ClientReferenceID string `json:"client_reference_id"`
	Customer          string `json:"customer"`
}

// stripeCustomerScopedObj covers subscription and invoice objects, which both
// carry the customer reference at the top level.
type stripeCustomerScopedObj struct {
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// unmarshalObject decodes the event's data.object into dst.
func (e *stripeWebhookEvent) unmarshalObject(dst any) error {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid webhook event data", err)
	}
	if err := json.Unmarshal(data.Object, dst); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid webhook event object", err)
	}
	return nil
}

// customerID extracts the customer reference from the event's data object,
// or "" when absent or unparsable.
func (e *stripeWebhookEvent) customerID() string {
	var obj stripeCustomerScopedObj
	if err := e.unmarshalObject(&obj); err != nil {
		return ""
	}
	return obj.Customer
}

// subscriptionStatus maps the Stripe subscription status in the event to the
// local state machine:
//
//	active, trialing            -> active
//	past_due, unpaid            -> past_due
//	canceled, incomplete_expired -> canceled
//	anything else               -> none (checkout never finished)
func (e *stripeWebhookEvent) subscriptionStatus() types.SubscriptionStatus {
	var obj stripeCustomerScopedObj
	if err := e.unmarshalObject(&obj); err != nil {
		return types.SubStatusNone
	}

	switch obj.Status {
	case "active", "trialing":
		return types.SubStatusActive
	case "past_due", "unpaid":
		return types.SubStatusPastDue
	case "canceled", "incomplete_expired":
		return types.SubStatusCanceled
	default:
		return types.SubStatusNone
	}
}
