package fulfillment

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service hands purchased goods to the customer once payment settles: library
// entries for digital lines, a shipment record for physical ones. Fulfill is
// idempotent and each half fails independently so a shipping problem never
// blocks or reverts a granted book.
type Service interface {
	Fulfill(ctx context.Context, tx *gorm.DB, order *models.Order) (*Result, error)
	Library(ctx context.Context, userID int64) ([]models.LibraryEntry, error)
	IncompleteAttempts(ctx context.Context, limit int) ([]models.FulfillmentAttempt, error)
}

// Result reports what one Fulfill pass did.
type Result struct {
	OrderID        int64
	NewGrants      []int64
	AlreadyGranted []int64
	ShipmentNew    bool
	DigitalStatus  enums.FulfillmentStepStatus
	ShippingStatus enums.FulfillmentStepStatus
}

// Completed reports whether both halves have finished.
func (r Result) Completed() bool {
	return models.FulfillmentAttempt{
		DigitalStatus:  r.DigitalStatus,
		ShippingStatus: r.ShippingStatus,
	}.Completed()
}

type service struct {
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires a fulfillment service with the provided dependencies.
func NewService(repo Repository, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fulfillment repository required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, outbox: ob, logg: logg}, nil
}

// Fulfill grants every digital line and records the shipment for physical
// lines, inside the caller's transaction. Replays pick up where the last pass
// stopped: finished halves are skipped, failed halves are retried. A half that
// fails is recorded on the attempt row instead of aborting the transaction.
func (s *service) Fulfill(ctx context.Context, tx *gorm.DB, order *models.Order) (*Result, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	repo := s.repo.WithTx(tx)

	attempt, err := repo.FindAttempt(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		attempt = &models.FulfillmentAttempt{
			OrderID:        order.ID,
			DigitalStatus:  enums.FulfillStepPending,
			ShippingStatus: enums.FulfillStepPending,
		}
	}

	result := &Result{OrderID: order.ID}
	var lastErr *string

	switch {
	case !order.HasDigitalItems():
		attempt.DigitalStatus = enums.FulfillStepSkipped
	case attempt.DigitalStatus == enums.FulfillStepDone:
		s.logg.Info(s.logg.WithOrderID(ctx, fmt.Sprintf("%d", order.ID)), "digital grants already fulfilled")
	case order.UserID == nil:
		// guest order: grants need an owning account, so the digital half
		// stays pending until the order is claimed and a retry pass runs
		s.logg.Info(s.logg.WithOrderID(ctx, fmt.Sprintf("%d", order.ID)), "digital grants deferred for guest order")
	default:
		if err := s.grantDigital(ctx, repo, order, result); err != nil {
			attempt.DigitalStatus = enums.FulfillStepFailed
			msg := err.Error()
			lastErr = &msg
			s.logg.Error(s.logg.WithOrderID(ctx, fmt.Sprintf("%d", order.ID)), "library grant failed", err)
		} else {
			attempt.DigitalStatus = enums.FulfillStepDone
		}
	}

	switch {
	case !order.HasPhysicalItems():
		attempt.ShippingStatus = enums.FulfillStepSkipped
	case attempt.ShippingStatus == enums.FulfillStepDone:
		s.logg.Info(s.logg.WithOrderID(ctx, fmt.Sprintf("%d", order.ID)), "shipment already recorded")
	default:
		if err := s.recordShipment(ctx, repo, order, result); err != nil {
			attempt.ShippingStatus = enums.FulfillStepFailed
			msg := err.Error()
			lastErr = &msg
			s.logg.Error(s.logg.WithOrderID(ctx, fmt.Sprintf("%d", order.ID)), "shipment creation failed", err)
		} else {
			attempt.ShippingStatus = enums.FulfillStepDone
		}
	}

	attempt.LastError = lastErr
	if err := repo.SaveAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	result.DigitalStatus = attempt.DigitalStatus
	result.ShippingStatus = attempt.ShippingStatus

	if attempt.Completed() {
		event := outbox.DomainEvent{
			EventType:     enums.EventFulfillmentCompleted,
			AggregateType: enums.AggregateFulfillment,
			AggregateID:   order.ID,
			Data: payloads.FulfillmentCompletedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				DigitalStatus:  attempt.DigitalStatus,
				ShippingStatus: attempt.ShippingStatus,
				GrantedBooks:   result.NewGrants,
			},
			OccurredAt: time.Now(),
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":        order.ID,
		"digital_status":  attempt.DigitalStatus,
		"shipping_status": attempt.ShippingStatus,
		"new_grants":      len(result.NewGrants),
	}), "fulfillment pass finished")
	return result, nil
}

func (s *service) grantDigital(ctx context.Context, repo Repository, order *models.Order, result *Result) error {
	for _, item := range order.Items {
		if !item.Format.HasDigital() {
			continue
		}
		created, err := repo.GrantEntry(ctx, &models.LibraryEntry{
			UserID:  *order.UserID,
			BookID:  item.BookID,
			OrderID: order.ID,
		})
		if err != nil {
			return err
		}
		if created {
			result.NewGrants = append(result.NewGrants, item.BookID)
		} else {
			result.AlreadyGranted = append(result.AlreadyGranted, item.BookID)
		}
	}
	return nil
}

func (s *service) recordShipment(ctx context.Context, repo Repository, order *models.Order, result *Result) error {
	address := ""
	if order.ShippingAddress != nil {
		address = *order.ShippingAddress
	}
	created, err := repo.CreateShipment(ctx, &models.Shipment{
		OrderID: order.ID,
		Address: address,
	})
	if err != nil {
		return err
	}
	result.ShipmentNew = created
	return nil
}

func (s *service) Library(ctx context.Context, userID int64) ([]models.LibraryEntry, error) {
	return s.repo.ListEntriesByUser(ctx, userID)
}

func (s *service) IncompleteAttempts(ctx context.Context, limit int) ([]models.FulfillmentAttempt, error) {
	return s.repo.ListIncompleteAttempts(ctx, limit)
}
