package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

const fulfillmentRetryBatch = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderReader interface {
	FindByID(ctx context.Context, id int64) (*models.Order, error)
}

// FulfillmentRetryJobParams configure the retry sweep for half-finished
// fulfillments.
type FulfillmentRetryJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Fulfillment fulfillment.Service
	Orders      orderReader
}

// NewFulfillmentRetryJob builds the job that re-drives fulfillment attempts
// with a failed half. Fulfill is idempotent, so re-driving a whole order only
// touches the unfinished part.
func NewFulfillmentRetryJob(params FulfillmentRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Fulfillment == nil {
		return nil, fmt.Errorf("fulfillment service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	return &fulfillmentRetryJob{
		logg:        params.Logger,
		db:          params.DB,
		fulfillment: params.Fulfillment,
		orders:      params.Orders,
	}, nil
}

type fulfillmentRetryJob struct {
	logg        *logger.Logger
	db          txRunner
	fulfillment fulfillment.Service
	orders      orderReader
}

func (j *fulfillmentRetryJob) Name() string { return "fulfillment-retry" }

func (j *fulfillmentRetryJob) Run(ctx context.Context) error {
	attempts, err := j.fulfillment.IncompleteAttempts(ctx, fulfillmentRetryBatch)
	if err != nil {
		return fmt.Errorf("list incomplete fulfillments: %w", err)
	}

	var errs []error
	retried := 0
	for _, attempt := range attempts {
		if err := j.retryOrder(ctx, attempt.OrderID); err != nil {
			errs = append(errs, fmt.Errorf("order %d: %w", attempt.OrderID, err))
			continue
		}
		retried++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(attempts),
		"retried":    retried,
	}), "fulfillment retry sweep complete")
	return multierr.Combine(errs...)
}

func (j *fulfillmentRetryJob) retryOrder(ctx context.Context, orderID int64) error {
	order, err := j.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := j.fulfillment.Fulfill(ctx, tx, order)
		return err
	})
}
