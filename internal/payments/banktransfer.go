package payments

import (
	"context"
	"time"

	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
)

// bankTransferGateway never talks to an external API. Initiate hands the
// customer the account details and a deadline; confirmation happens later
// through proof review, so ParseCallback has no webhook to parse.
type bankTransferGateway struct {
	cfg config.BankTransferConfig
	now func() time.Time
}

func NewBankTransferGateway(cfg config.BankTransferConfig) Gateway {
	return &bankTransferGateway{cfg: cfg, now: time.Now}
}

func (g *bankTransferGateway) Tag() enums.PaymentGateway {
	return enums.GatewayBankTransfer
}

func (g *bankTransferGateway) Initiate(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, metadata map[string]string) (*Intent, error) {
	expiresAt := g.now().Add(g.cfg.Expiry)
	return &Intent{
		Gateway:   g.Tag(),
		Reference: txn.Reference,
		BankAccount: &BankAccountDetails{
			BankName:      g.cfg.BankName,
			AccountName:   g.cfg.AccountName,
			AccountNumber: g.cfg.AccountNumber,
		},
		ExpiresAt: &expiresAt,
	}, nil
}

func (g *bankTransferGateway) ParseCallback(ctx context.Context, payload []byte, signature string) (*NormalizedOutcome, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank transfers are confirmed by proof review, not callbacks")
}
