package payments

import (
	"context"
	"fmt"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// Registry holds the providers whose credentials were supplied. A provider
// with missing credentials is logged and left out; requesting it later fails
// with a validation error instead of crashing startup.
type Registry struct {
	gateways map[enums.PaymentGateway]Gateway
}

// NewRegistry builds the provider set from config.
func NewRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger) *Registry {
	gateways := make(map[enums.PaymentGateway]Gateway)

	if cfg.Flutterwave.Enabled() {
		gateways[enums.GatewayFlutterwave] = NewFlutterwaveGateway(cfg.Flutterwave, cfg.Gateway, logg)
	} else if logg != nil {
		logg.Warn(ctx, "flutterwave provider disabled: secret key not configured")
	}

	if cfg.Stripe.Enabled() {
		gateways[enums.GatewayStripe] = NewStripeGateway(cfg.Stripe, logg)
	} else if logg != nil {
		logg.Warn(ctx, "stripe provider disabled: api key not configured")
	}

	if cfg.BankTransfer.Enabled() {
		gateways[enums.GatewayBankTransfer] = NewBankTransferGateway(cfg.BankTransfer)
	} else if logg != nil {
		logg.Warn(ctx, "bank transfer provider disabled: account number not configured")
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "providers", len(gateways)), "payment registry initialized")
	}
	return &Registry{gateways: gateways}
}

// NewRegistryWith builds a registry from explicit gateways, used in tests and
// by services that construct providers themselves.
func NewRegistryWith(gateways ...Gateway) *Registry {
	byTag := make(map[enums.PaymentGateway]Gateway, len(gateways))
	for _, gw := range gateways {
		byTag[gw.Tag()] = gw
	}
	return &Registry{gateways: byTag}
}

// Get returns the provider for the tag or a validation error when it is
// unknown or disabled.
func (r *Registry) Get(tag enums.PaymentGateway) (Gateway, error) {
	gw, ok := r.gateways[tag]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %q is not available", tag))
	}
	return gw, nil
}

// Tags lists the enabled providers.
func (r *Registry) Tags() []enums.PaymentGateway {
	tags := make([]enums.PaymentGateway, 0, len(r.gateways))
	for tag := range r.gateways {
		tags = append(tags, tag)
	}
	return tags
}
