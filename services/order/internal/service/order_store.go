package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/sakashimaa/go-order-service/services/order/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ListParams struct {
	Page     int
	PageSize int
	Status   string
}

// Normalize clamps out-of-range paging instead of rejecting it.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		p.PageSize = DefaultPageSize
	}
	return p
}

type ListResult struct {
	Items      []domain.Order `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalCount int64          `json:"totalCount"`
}

// OrderStore persists order aggregates. Every mutation of one id runs in a
// single transaction holding that order's row lock.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id int64, input *domain.Order) (*domain.Order, error)
	Delete(ctx context.Context, id int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, domain.Status, error)
}

type orderStore struct {
	pool      *pgxpool.Pool
	orderRepo repository.OrderRepository
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrderStore(pool *pgxpool.Pool, orderRepo repository.OrderRepository, logger *zap.Logger) OrderStore {
	return &orderStore{
		pool:      pool,
		orderRepo: orderRepo,
		logger:    logger,
		tracer:    otel.Tracer("order_store"),
		now:       time.Now,
	}
}

// readOnly reads an order row and its items from one snapshot, so a reader
// never pairs a total with items from a different commit.
var readOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func (s *orderStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.inTxWith(ctx, pgx.TxOptions{}, fn)
}

func (s *orderStore) inTxWith(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)
		err := tx.Rollback(shutdownCtx)

		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				shutdownCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *orderStore) Create(ctx context.Context, input *domain.Order) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderStore.Create")
	defer span.End()

	now := domain.Timestamp(s.now())

	order := &domain.Order{
		CustomerName:    input.CustomerName,
		CustomerEmail:   input.CustomerEmail,
		ShippingAddress: input.ShippingAddress,
		Status:          domain.StatusPending,
		OrderDate:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
		OrderItems:      cloneItems(input.OrderItems),
	}
	order.CalculateTotal()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.orderRepo.Insert(ctx, tx, order); err != nil {
			return err
		}
		return s.orderRepo.InsertItems(ctx, tx, order.ID, order.OrderItems)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.Int64("order_id", order.ID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
	)

	return order, nil
}

func (s *orderStore) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var order *domain.Order
	err := s.inTxWith(ctx, readOnly, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	params = params.Normalize()

	offset := int64(params.Page-1) * int64(params.PageSize)
	var (
		orders []domain.Order
		total  int64
	)
	err := s.inTxWith(ctx, readOnly, func(tx pgx.Tx) error {
		var err error
		orders, total, err = s.orderRepo.List(ctx, tx, int64(params.PageSize), offset, params.Status)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Items:      orders,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalCount: total,
	}, nil
}

// Update replaces the mutable fields and the whole item collection. An empty
// input status keeps the current one.
func (s *orderStore) Update(ctx context.Context, id int64, input *domain.Order) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderStore.Update")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	var updated domain.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := s.orderRepo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now()
		status := current.Status
		if input.Status != "" {
			status = input.Status
		}

		updated, _ = domain.TransitionStatus(*current, status, now)
		updated.CustomerName = input.CustomerName
		updated.CustomerEmail = input.CustomerEmail
		updated.ShippingAddress = input.ShippingAddress
		updated.OrderItems = cloneItems(input.OrderItems)
		updated.CalculateTotal()

		if err := s.orderRepo.DeleteItems(ctx, tx, id); err != nil {
			return err
		}
		if err := s.orderRepo.InsertItems(ctx, tx, id, updated.OrderItems); err != nil {
			return err
		}
		return s.orderRepo.Update(ctx, tx, &updated)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}

	return &updated, nil
}

func (s *orderStore) Delete(ctx context.Context, id int64) (bool, error) {
	return s.orderRepo.Delete(ctx, s.pool, id)
}

// UpdateStatus returns the status it replaced, read under the same row lock
// as the write.
func (s *orderStore) UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, domain.Status, error) {
	ctx, span := s.tracer.Start(ctx, "OrderStore.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
		attribute.String("status", string(status)),
	)

	var (
		updated  domain.Order
		previous domain.Status
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := s.orderRepo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}

		updated, previous = domain.TransitionStatus(*current, status, s.now())
		return s.orderRepo.Update(ctx, tx, &updated)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			span.RecordError(err)
		}
		return nil, "", err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order status updated",
		zap.Int64("order_id", id),
		zap.String("old_status", string(previous)),
		zap.String("new_status", string(updated.Status)),
	)

	return &updated, previous, nil
}

// cloneItems copies items for insertion. Prices are rounded to the stored
// scale so the computed total matches what Postgres keeps per item.
func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	for i, item := range items {
		item.ID = 0
		item.OrderID = 0
		item.UnitPrice = item.UnitPrice.Round(domain.MoneyScale)
		out[i] = item
	}
	return out
}
