package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/types"
)

type fakeConfirmation struct {
	handleErr error

	gotProvider  enums.PaymentGateway
	gotPayload   []byte
	gotSignature string
	calls        int
}

func (f *fakeConfirmation) HandleWebhook(ctx context.Context, provider enums.PaymentGateway, payload []byte, signature string) error {
	f.calls++
	f.gotProvider = provider
	f.gotPayload = payload
	f.gotSignature = signature
	return f.handleErr
}

func (f *fakeConfirmation) ApplyOutcome(ctx context.Context, input confirmation.OutcomeInput) error {
	return nil
}

func (f *fakeConfirmation) ApplyOutcomeTx(ctx context.Context, tx *gorm.DB, input confirmation.OutcomeInput) error {
	return nil
}

func newWebhookRouter(svc confirmation.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/payments/webhook/{provider}", PaymentWebhook(svc, nil))
	return r
}

func TestPaymentWebhookRoutesToConfirmation(t *testing.T) {
	svc := &fakeConfirmation{}
	router := newWebhookRouter(svc)

	body := `{"event":"charge.completed","data":{"tx_ref":"PH-abc"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/flutterwave", strings.NewReader(body))
	req.Header.Set("verif-hash", "hash-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one delivery, got %d", svc.calls)
	}
	if svc.gotProvider != enums.GatewayFlutterwave {
		t.Fatalf("unexpected provider %s", svc.gotProvider)
	}
	if string(svc.gotPayload) != body {
		t.Fatalf("payload not forwarded verbatim")
	}
	if svc.gotSignature != "hash-123" {
		t.Fatalf("unexpected signature %q", svc.gotSignature)
	}
}

func TestPaymentWebhookPicksStripeSignatureHeader(t *testing.T) {
	svc := &fakeConfirmation{}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.gotSignature != "t=1,v1=sig" {
		t.Fatalf("unexpected signature %q", svc.gotSignature)
	}
}

func TestPaymentWebhookRejectsUnknownProvider(t *testing.T) {
	svc := &fakeConfirmation{}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paypal", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("delivery should not reach the service")
	}
}

func TestPaymentWebhookRejectsBankTransfer(t *testing.T) {
	svc := &fakeConfirmation{}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/bank_transfer", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("delivery should not reach the service")
	}
}

func TestPaymentWebhookSurfacesBadSignature(t *testing.T) {
	svc := &fakeConfirmation{
		handleErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"),
	}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/stripe", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
}

func TestPaymentWebhookHidesInternalFailures(t *testing.T) {
	svc := &fakeConfirmation{handleErr: errors.New("db down")}
	router := newWebhookRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/stripe", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
