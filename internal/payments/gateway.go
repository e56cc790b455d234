package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// Gateway is the uniform contract over payment providers. Instant providers
// return a redirect URL from Initiate; the bank transfer provider returns
// account details plus an expiry deadline instead.
type Gateway interface {
	Tag() enums.PaymentGateway
	Initiate(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, metadata map[string]string) (*Intent, error)
	// ParseCallback normalizes a provider callback after verifying its
	// signature. Unknown or missing provider status maps to pending, never
	// failed.
	ParseCallback(ctx context.Context, payload []byte, signature string) (*NormalizedOutcome, error)
}

// Intent is what the client needs to complete the payment.
type Intent struct {
	Gateway     enums.PaymentGateway `json:"gateway"`
	Reference   string               `json:"reference"`
	RedirectURL *string              `json:"redirect_url,omitempty"`
	BankAccount *BankAccountDetails  `json:"bank_account,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

// BankAccountDetails is shown to the customer for manual transfers.
type BankAccountDetails struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// NormalizedOutcome is the provider-agnostic callback result.
type NormalizedOutcome struct {
	Reference   string
	ExternalRef string
	Status      enums.CallbackStatus
	Amount      decimal.Decimal
	Currency    enums.Currency
	Raw         json.RawMessage
}

// normalizeStatus maps a provider status word onto the callback taxonomy.
// Anything unrecognized is pending so a renamed provider field can never turn
// a real payment into a false failure.
func normalizeStatus(raw string) enums.CallbackStatus {
	switch raw {
	case "successful", "succeeded", "success", "completed":
		return enums.CallbackSucceeded
	case "failed", "cancelled", "canceled", "declined":
		return enums.CallbackFailed
	default:
		return enums.CallbackPending
	}
}
