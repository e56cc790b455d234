package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// stripeIntentCreator isolates the package-level Stripe call for tests.
type stripeIntentCreator func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

type stripeGateway struct {
	cfg          config.StripeConfig
	createIntent stripeIntentCreator
	logg         *logger.Logger
}

// NewStripeGateway builds the Stripe adapter. The global key is set once at
// construction, matching stripe-go's package-level API.
func NewStripeGateway(cfg config.StripeConfig, logg *logger.Logger) Gateway {
	stripe.Key = cfg.APIKey
	return &stripeGateway{
		cfg:          cfg,
		createIntent: paymentintent.New,
		logg:         logg,
	}
}

func (g *stripeGateway) Tag() enums.PaymentGateway {
	return enums.GatewayStripe
}

func (g *stripeGateway) Initiate(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(txn.Amount.Mul(decimal.NewFromInt(100)).IntPart()),
		Currency: stripe.String(strings.ToLower(string(txn.Currency))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("reference", txn.Reference)
	params.AddMetadata("order_number", order.OrderNumber)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.createIntent(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating stripe payment intent")
	}

	if g.logg != nil {
		g.logg.Info(g.logg.WithFields(ctx, map[string]any{
			"reference": txn.Reference, "gateway": g.Tag(), "external_ref": intent.ID,
		}), "payment intent created")
	}

	var redirect *string
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		redirect = &intent.NextAction.RedirectToURL.URL
	}
	return &Intent{
		Gateway:     g.Tag(),
		Reference:   txn.Reference,
		RedirectURL: redirect,
	}, nil
}

// ParseCallback verifies the Stripe-Signature header and normalizes
// payment_intent events. Events the adapter does not recognize come back as
// pending so they are recorded but never treated as failures.
func (g *stripeGateway) ParseCallback(ctx context.Context, payload []byte, signature string) (*NormalizedOutcome, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.cfg.WebhookSecret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe webhook signature")
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed stripe event payload")
	}
	reference := intent.Metadata["reference"]
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event missing reference metadata")
	}

	status := enums.CallbackPending
	switch event.Type {
	case "payment_intent.succeeded":
		status = enums.CallbackSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = enums.CallbackFailed
	}

	return &NormalizedOutcome{
		Reference:   reference,
		ExternalRef: intent.ID,
		Status:      status,
		Amount:      decimal.NewFromInt(intent.Amount).Div(decimal.NewFromInt(100)),
		Currency:    enums.Currency(strings.ToUpper(string(intent.Currency))),
		Raw:         json.RawMessage(payload),
	}, nil
}
