package payments

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// flutterwaveGateway talks to the Flutterwave v3 REST API directly. There is
// no maintained Go SDK, so the adapter owns the wire format.
type flutterwaveGateway struct {
	cfg        config.FlutterwaveConfig
	httpClient *http.Client
	maxRetries uint64
	logg       *logger.Logger
}

// NewFlutterwaveGateway builds the Flutterwave adapter with a bounded HTTP
// timeout taken from the gateway config.
func NewFlutterwaveGateway(cfg config.FlutterwaveConfig, gw config.GatewayConfig, logg *logger.Logger) Gateway {
	retries := uint64(0)
	if gw.MaxAttempts > 1 {
		retries = uint64(gw.MaxAttempts - 1)
	}
	return &flutterwaveGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: gw.Timeout},
		maxRetries: retries,
		logg:       logg,
	}
}

func (g *flutterwaveGateway) Tag() enums.PaymentGateway {
	return enums.GatewayFlutterwave
}

type flutterwavePaymentRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Customer    map[string]string `json:"customer,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type flutterwavePaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

func (g *flutterwaveGateway) Initiate(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, metadata map[string]string) (*Intent, error) {
	body := flutterwavePaymentRequest{
		TxRef:       txn.Reference,
		Amount:      txn.Amount.String(),
		Currency:    string(txn.Currency),
		RedirectURL: g.cfg.RedirectURL,
		Meta:        metadata,
	}
	if email, ok := metadata["email"]; ok {
		body.Customer = map[string]string{"email": email}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var parsed flutterwavePaymentResponse
	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/payments", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("flutterwave returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("flutterwave returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return json.Unmarshal(raw, &parsed)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initiating flutterwave payment")
	}
	if parsed.Status != "success" || parsed.Data.Link == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "flutterwave rejected payment initiation").
			WithDetails(map[string]any{"message": parsed.Message})
	}

	if g.logg != nil {
		g.logg.Info(g.logg.WithFields(ctx, map[string]any{
			"reference": txn.Reference, "gateway": g.Tag(),
		}), "payment intent created")
	}

	link := parsed.Data.Link
	return &Intent{
		Gateway:     g.Tag(),
		Reference:   txn.Reference,
		RedirectURL: &link,
	}, nil
}

type flutterwaveCallbackPayload struct {
	Event string `json:"event"`
	Data  struct {
		TxRef    string  `json:"tx_ref"`
		FlwRef   string  `json:"flw_ref"`
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"data"`
}

// ParseCallback checks the verif-hash header against the configured webhook
// secret, then normalizes the charge payload.
func (g *flutterwaveGateway) ParseCallback(ctx context.Context, payload []byte, signature string) (*NormalizedOutcome, error) {
	if g.cfg.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(signature), []byte(g.cfg.WebhookSecret)) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid flutterwave webhook signature")
	}

	var parsed flutterwaveCallbackPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed flutterwave payload")
	}
	if parsed.Data.TxRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flutterwave payload missing tx_ref")
	}

	return &NormalizedOutcome{
		Reference:   parsed.Data.TxRef,
		ExternalRef: parsed.Data.FlwRef,
		Status:      normalizeStatus(strings.ToLower(parsed.Data.Status)),
		Amount:      decimal.NewFromFloat(parsed.Data.Amount),
		Currency:    enums.Currency(strings.ToUpper(parsed.Data.Currency)),
		Raw:         json.RawMessage(payload),
	}, nil
}
