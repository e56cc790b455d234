package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

type bankTransferExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// BankTransferExpiryJobParams configure the expiry sweep.
type BankTransferExpiryJobParams struct {
	Logger  *logger.Logger
	Expirer bankTransferExpirer
}

// NewBankTransferExpiryJob builds the job that cancels bank transfer orders
// whose payment window lapsed without a verified proof.
func NewBankTransferExpiryJob(params BankTransferExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("expirer required")
	}
	return &bankTransferExpiryJob{
		logg:    params.Logger,
		expirer: params.Expirer,
		now:     time.Now,
	}, nil
}

type bankTransferExpiryJob struct {
	logg    *logger.Logger
	expirer bankTransferExpirer
	now     func() time.Time
}

func (j *bankTransferExpiryJob) Name() string { return "bank-transfer-expiry" }

func (j *bankTransferExpiryJob) Run(ctx context.Context) error {
	expired, err := j.expirer.ExpireDue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("bank transfer expiry sweep: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "count", expired), "bank transfer expiry sweep complete")
	return nil
}
