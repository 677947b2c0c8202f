package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrOrderNotFound = errors.New("order not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type OrderRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	InsertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []domain.OrderItem) error
	GetByID(ctx context.Context, q Querier, id int64) (*domain.Order, error)
	LockByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error)
	List(ctx context.Context, q Querier, limit, offset int64, status string) ([]domain.Order, int64, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	DeleteItems(ctx context.Context, tx pgx.Tx, orderID int64) error
	Delete(ctx context.Context, q Querier, id int64) (bool, error)
}

type orderRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(logger *zap.Logger) OrderRepository {
	return &orderRepo{
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

const orderColumns = `
	id, customer_name, customer_email, shipping_address, total_amount,
	status, order_date, shipped_date, created_at, updated_at
`

func scanOrder(row pgx.Row, order *domain.Order) error {
	err := row.Scan(
		&order.ID,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.ShippingAddress,
		&order.TotalAmount,
		&order.Status,
		&order.OrderDate,
		&order.ShippedDate,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	// pgx hands timestamptz back in the local zone
	order.OrderDate = order.OrderDate.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if order.ShippedDate != nil {
		shipped := order.ShippedDate.UTC()
		order.ShippedDate = &shipped
	}

	return nil
}

func (r *orderRepo) Insert(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("items_count", len(order.OrderItems)),
	)

	query := `
		INSERT INTO orders (
			customer_name, customer_email, shipping_address, total_amount,
			status, order_date, shipped_date, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if err := tx.QueryRow(
		ctx,
		query,
		order.CustomerName,
		order.CustomerEmail,
		order.ShippingAddress,
		order.TotalAmount,
		string(order.Status),
		order.OrderDate,
		order.ShippedDate,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (r *orderRepo) InsertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []domain.OrderItem) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.InsertItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int("items_count", len(items)),
	)

	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	for i := range items {
		item := &items[i]
		item.OrderID = orderID

		if err := tx.QueryRow(
			ctx,
			query,
			orderID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			i,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert item",
				zap.Int64("order_id", orderID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, q Querier, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	return r.getOne(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id, span)
}

// LockByID reads the order under a row lock held until tx ends, so writers
// of the same id are serialized.
func (r *orderRepo) LockByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.LockByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	return r.getOne(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id, span)
}

func (r *orderRepo) getOne(ctx context.Context, q Querier, query string, id int64, span trace.Span) (*domain.Order, error) {
	var order domain.Order
	if err := scanOrder(q.QueryRow(ctx, query, id), &order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	itemsByOrder, err := r.itemsOf(ctx, q, []int64{order.ID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.OrderItems = itemsByOrder[order.ID]

	return &order, nil
}

func (r *orderRepo) List(ctx context.Context, q Querier, limit, offset int64, status string) ([]domain.Order, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
		attribute.String("status", status),
	)

	where := ""
	args := []any{}
	if status != "" {
		where = `WHERE status ILIKE $1 ESCAPE '\'`
		args = append(args, containsPattern(status))
	}

	var total int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to count orders", zap.Error(err))

		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM orders %s ORDER BY id LIMIT $%d OFFSET $%d",
		orderColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query orders", zap.Error(err))

		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	ids := make([]int64, 0, limit)
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to scan row", zap.Error(err))

			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}

		orders = append(orders, order)
		ids = append(ids, order.ID)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(ctx, r.logger, "Rows error", zap.Error(err))
		return nil, 0, err
	}
	rows.Close()

	if len(ids) == 0 {
		return orders, total, nil
	}

	itemsByOrder, err := r.itemsOf(ctx, q, ids)
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}

	for i := range orders {
		orders[i].OrderItems = itemsByOrder[orders[i].ID]
	}

	return orders, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns a literal substring into an ILIKE pattern.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (r *orderRepo) itemsOf(ctx context.Context, q Querier, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position, id
	`

	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan row",
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result[item.OrderID] = append(result[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Rows error",
			zap.Error(err),
		)

		return nil, err
	}

	for _, id := range orderIDs {
		if result[id] == nil {
			result[id] = []domain.OrderItem{}
		}
	}

	return result, nil
}

// Update writes every mutable column of order. Items are handled separately.
func (r *orderRepo) Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", string(order.Status)),
	)

	query := `
		UPDATE orders
		SET customer_name = $1,
			customer_email = $2,
			shipping_address = $3,
			total_amount = $4,
			status = $5,
			shipped_date = $6,
			updated_at = $7
		WHERE id = $8
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		order.CustomerName,
		order.CustomerEmail,
		order.ShippingAddress,
		order.TotalAmount,
		string(order.Status),
		order.ShippedDate,
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order",
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(
			ctx,
			r.logger,
			"Order not found",
			zap.Int64("order_id", order.ID),
		)

		return ErrOrderNotFound
	}

	return nil
}

func (r *orderRepo) DeleteItems(ctx context.Context, tx pgx.Tx, orderID int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.DeleteItems")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to delete order items", zap.Error(err))

		return fmt.Errorf("failed to delete order items: %w", err)
	}

	return nil
}

// Delete removes the order; its items go with it through ON DELETE CASCADE.
func (r *orderRepo) Delete(ctx context.Context, q Querier, id int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	commandTag, err := q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to delete order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return false, fmt.Errorf("failed to delete order: %w", err)
	}

	return commandTag.RowsAffected() > 0, nil
}
