package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoutpup/internal/external"
	"scoutpup/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockWebhookVerifier implements external.WebhookVerifier for testing.
type mockWebhookVerifier struct {
	shouldFail bool
	err        error
}

func (m *mockWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	if m.shouldFail {
		if m.err != nil {
			return m.err
		}
		return errors.New("signature verification failed")
	}
	return nil
}

// mockBillingState implements UserBillingState, recording every mutation.
type mockBillingState struct {
	activateCalls []activateCall
	activateErr   error

	statusCalls   []statusCall
	statusMatched bool
	statusErr     error

	resetCalls   []string
	resetMatched bool
	resetErr     error
}

type activateCall struct {
	UserID     string
	CustomerID string
}

type statusCall struct {
	CustomerID string
	Status     types.SubscriptionStatus
}

func (m *mockBillingState) ActivateSubscription(ctx context.Context, userID string, customerID string) error {
	m.activateCalls = append(m.activateCalls, activateCall{UserID: userID, CustomerID: customerID})
	return m.activateErr
}

func (m *mockBillingState) SetSubscriptionStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus) (bool, error) {
	m.statusCalls = append(m.statusCalls, statusCall{CustomerID: customerID, Status: status})
	return m.statusMatched, m.statusErr
}

func (m *mockBillingState) ResetCheckCountByCustomer(ctx context.Context, customerID string) (bool, error) {
	m.resetCalls = append(m.resetCalls, customerID)
	return m.resetMatched, m.resetErr
}

// mockLedger implements EventLedger. Claimed IDs are tracked so a released
// event reads as first-seen again on redelivery.
type mockLedger struct {
	duplicate bool
	err       error
	unmarkErr error
	seen      []string
	unmarked  []string
	claimed   map[string]bool
}

func (m *mockLedger) MarkProcessed(ctx context.Context, eventID string, eventType string) (bool, error) {
	m.seen = append(m.seen, eventID)
	if m.err != nil {
		return false, m.err
	}
	if m.duplicate {
		return false, nil
	}
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	if m.claimed[eventID] {
		return false, nil
	}
	m.claimed[eventID] = true
	return true, nil
}

func (m *mockLedger) Unmark(ctx context.Context, eventID string) error {
	m.unmarked = append(m.unmarked, eventID)
	if m.unmarkErr != nil {
		return m.unmarkErr
	}
	delete(m.claimed, eventID)
	return nil
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func buildWebhookEvent(eventType string, eventID string, dataObject any) []byte {
	objBytes, _ := json.Marshal(dataObject)
	event := map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{
			"object": json.RawMessage(objBytes),
		},
	}
	b, _ := json.Marshal(event)
	return b
}

func newTestWebhookHandler(verifier external.WebhookVerifier, users *mockBillingState, ledger *mockLedger) *StripeWebhookHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStripeWebhookHandler(verifier, users, ledger, nil, "whsec_test", logger)
}

func postWebhook(t *testing.T, h *StripeWebhookHandler, payload []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	if signed {
		req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Signature and Dedupe
// ---------------------------------------------------------------------------

func TestWebhook_MissingSignature(t *testing.T) {
	users := &mockBillingState{}
	ledger := &mockLedger{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, ledger)

	payload := buildWebhookEvent(external.EventInvoicePaid, "evt_1", map[string]any{"customer": "cus_abc"})
	rec := postWebhook(t, h, payload, false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ledger.seen, "no ledger write before signature verification")
	assert.Empty(t, users.statusCalls)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	users := &mockBillingState{}
	ledger := &mockLedger{}
	h := newTestWebhookHandler(&mockWebhookVerifier{shouldFail: true}, users, ledger)

	payload := buildWebhookEvent(external.EventInvoicePaid, "evt_1", map[string]any{"customer": "cus_abc"})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "signature")

	assert.Empty(t, ledger.seen)
	assert.Empty(t, users.statusCalls)
}

func TestWebhook_MalformedEventJSON(t *testing.T) {
	h := newTestWebhookHandler(&mockWebhookVerifier{}, &mockBillingState{}, &mockLedger{})

	rec := postWebhook(t, h, []byte(`{not json`), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	users := &mockBillingState{statusMatched: true}
	ledger := &mockLedger{duplicate: true}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, ledger)

	payload := buildWebhookEvent(external.EventSubscriptionDeleted, "evt_dup", map[string]any{"customer": "cus_abc"})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Equal(t, []string{"evt_dup"}, ledger.seen)
	assert.Empty(t, users.statusCalls, "redeliveries never mutate state")
}

func TestWebhook_LedgerError(t *testing.T) {
	ledger := &mockLedger{err: types.NewAppError(types.ErrCodeInternalDB, "ledger down", nil)}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, &mockBillingState{}, ledger)

	payload := buildWebhookEvent(external.EventInvoicePaid, "evt_1", map[string]any{"customer": "cus_abc"})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_ProcessingFailure_RedeliveryRunsAgain(t *testing.T) {
	users := &mockBillingState{
		activateErr: types.NewAppError(types.ErrCodeInternalDB, "db down", nil),
	}
	ledger := &mockLedger{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, ledger)

	payload := buildWebhookEvent(external.EventCheckoutCompleted, "evt_retry_1", map[string]any{
		"client_reference_id": "user_123",
		"customer":            "cus_new",
	})

	// A transient store failure must not leave the event claimed, or the
	// redelivery would be dropped as a duplicate and the activation lost.
	rec := postWebhook(t, h, payload, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"evt_retry_1"}, ledger.unmarked, "failed event releases its ledger claim")

	users.activateErr = nil
	rec = postWebhook(t, h, payload, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, users.activateCalls, 2, "redelivery is processed, not deduplicated")
	assert.Equal(t, "user_123", users.activateCalls[1].UserID)
	assert.Equal(t, "cus_new", users.activateCalls[1].CustomerID)
}

func TestWebhook_SuccessfulEvent_RedeliveryIsDuplicate(t *testing.T) {
	users := &mockBillingState{statusMatched: true}
	ledger := &mockLedger{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, ledger)

	payload := buildWebhookEvent(external.EventSubscriptionDeleted, "evt_once_1", map[string]any{
		"customer": "cus_abc",
	})

	rec := postWebhook(t, h, payload, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(t, h, payload, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, users.statusCalls, 1, "processed events stay claimed")
	assert.Empty(t, ledger.unmarked)
}

// ---------------------------------------------------------------------------
// Event Routing
// ---------------------------------------------------------------------------

func TestWebhook_CheckoutCompleted_ActivatesSubscription(t *testing.T) {
	users := &mockBillingState{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventCheckoutCompleted, "evt_co_1", map[string]any{
		"client_reference_id": "user_123",
		"customer":            "cus_new",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, users.activateCalls, 1)
	assert.Equal(t, "user_123", users.activateCalls[0].UserID)
	assert.Equal(t, "cus_new", users.activateCalls[0].CustomerID)
}

func TestWebhook_CheckoutCompleted_NoClientReference_Ignored(t *testing.T) {
	users := &mockBillingState{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	// A payment-link session has no client_reference_id; acknowledge it.
	payload := buildWebhookEvent(external.EventCheckoutCompleted, "evt_co_2", map[string]any{
		"customer": "cus_new",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, users.activateCalls)
}

func TestWebhook_CheckoutCompleted_UnknownUser_Ignored(t *testing.T) {
	users := &mockBillingState{
		activateErr: types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil),
	}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventCheckoutCompleted, "evt_co_3", map[string]any{
		"client_reference_id": "user_deleted",
		"customer":            "cus_new",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_CheckoutCompleted_DBError_Returns500(t *testing.T) {
	users := &mockBillingState{
		activateErr: types.NewAppError(types.ErrCodeInternalDB, "db down", nil),
	}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventCheckoutCompleted, "evt_co_4", map[string]any{
		"client_reference_id": "user_123",
		"customer":            "cus_new",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_SubscriptionUpdated_StatusMapping(t *testing.T) {
	cases := []struct {
		stripeStatus string
		want         types.SubscriptionStatus
	}{
		{"active", types.SubStatusActive},
		{"trialing", types.SubStatusActive},
		{"past_due", types.SubStatusPastDue},
		{"unpaid", types.SubStatusPastDue},
		{"canceled", types.SubStatusCanceled},
		{"incomplete_expired", types.SubStatusCanceled},
		{"incomplete", types.SubStatusNone},
	}

	for _, tc := range cases {
		t.Run(tc.stripeStatus, func(t *testing.T) {
			users := &mockBillingState{statusMatched: true}
			h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

			payload := buildWebhookEvent(external.EventSubscriptionUpdated, "evt_sub_1", map[string]any{
				"customer": "cus_abc",
				"status":   tc.stripeStatus,
			})
			rec := postWebhook(t, h, payload, true)

			assert.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, users.statusCalls, 1)
			assert.Equal(t, "cus_abc", users.statusCalls[0].CustomerID)
			assert.Equal(t, tc.want, users.statusCalls[0].Status)
		})
	}
}

func TestWebhook_SubscriptionDeleted_MarksCanceled(t *testing.T) {
	users := &mockBillingState{statusMatched: true}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventSubscriptionDeleted, "evt_del_1", map[string]any{
		"customer": "cus_abc",
		"status":   "canceled",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, users.statusCalls, 1)
	assert.Equal(t, types.SubStatusCanceled, users.statusCalls[0].Status)
}

func TestWebhook_SubscriptionUpdated_UnknownCustomer_Ignored(t *testing.T) {
	users := &mockBillingState{statusMatched: false}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventSubscriptionUpdated, "evt_sub_2", map[string]any{
		"customer": "cus_stranger",
		"status":   "active",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_InvoicePaid_ActivatesAndResetsCounter(t *testing.T) {
	users := &mockBillingState{statusMatched: true, resetMatched: true}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventInvoicePaid, "evt_inv_1", map[string]any{
		"customer": "cus_abc",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, users.statusCalls, 1)
	assert.Equal(t, types.SubStatusActive, users.statusCalls[0].Status)
	assert.Equal(t, []string{"cus_abc"}, users.resetCalls)
}

func TestWebhook_InvoicePaid_UnknownCustomer_SkipsReset(t *testing.T) {
	users := &mockBillingState{statusMatched: false}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventInvoicePaid, "evt_inv_2", map[string]any{
		"customer": "cus_stranger",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, users.resetCalls)
}

func TestWebhook_InvoicePaymentFailed_MarksPastDue(t *testing.T) {
	users := &mockBillingState{statusMatched: true}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventInvoicePaymentFailed, "evt_fail_1", map[string]any{
		"customer": "cus_abc",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, users.statusCalls, 1)
	assert.Equal(t, types.SubStatusPastDue, users.statusCalls[0].Status)
}

func TestWebhook_UnhandledEventType_Acknowledged(t *testing.T) {
	users := &mockBillingState{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent("customer.created", "evt_misc_1", map[string]any{"id": "cus_abc"})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Empty(t, users.statusCalls)
	assert.Empty(t, users.activateCalls)
}

func TestWebhook_EventWithoutCustomer_Ignored(t *testing.T) {
	users := &mockBillingState{}
	h := newTestWebhookHandler(&mockWebhookVerifier{}, users, &mockLedger{})

	payload := buildWebhookEvent(external.EventSubscriptionUpdated, "evt_odd_1", map[string]any{
		"status": "active",
	})
	rec := postWebhook(t, h, payload, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, users.statusCalls)
}
