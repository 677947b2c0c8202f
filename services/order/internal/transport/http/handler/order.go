package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/pkg/utils"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/sakashimaa/go-order-service/services/order/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderHandler struct {
	service  service.OrderService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewOrderHandler(service service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		logger:   logger,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// field-level tags only see the float64 view above, so the exact scale
	// check runs on the struct
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		item := sl.Current().Interface().(OrderItemRequest)
		if !domain.WholeCents(item.UnitPrice) {
			sl.ReportError(item.UnitPrice, "unitPrice", "UnitPrice", "cents", "")
		}
	}, OrderItemRequest{})

	return v
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	params := service.ListParams{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", service.DefaultPageSize),
		Status:   c.Query("status"),
	}

	res, err := h.service.List(ctx, params)
	if err != nil {
		mylogger.Error(ctx, h.logger, "list orders failed", zap.Error(err))

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": messageFromError(err),
		})
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *OrderHandler) GetByID(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.service.GetByID(ctx, int64(id))
	if err != nil {
		mylogger.Warn(ctx, h.logger, "get order failed", zap.Int("order_id", id), zap.Error(err))

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": messageFromError(err),
		})
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	req := new(CreateOrderRequest)
	if err := c.BodyParser(req); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"body parsing failed",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	order, err := h.service.Create(ctx, req.toDomain())
	if order == nil {
		mylogger.Error(ctx, h.logger, "create order failed", zap.Error(err))

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": messageFromError(err),
		})
	}
	h.flagPublishFailure(c, err)

	mylogger.Info(
		ctx,
		h.logger,
		"create order succeeded",
		zap.Int64("order_id", order.ID),
	)

	c.Location(fmt.Sprintf("%s/%d", strings.TrimSuffix(c.Path(), "/"), order.ID))
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	req := new(UpdateOrderRequest)
	if err := c.BodyParser(req); err != nil {
		mylogger.Warn(ctx, h.logger, "body parsing failed", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(&req.CreateOrderRequest); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	input := req.toDomain()
	if req.Status != "" {
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"errors": fiber.Map{"status": err.Error()},
			})
		}
		input.Status = status
	}

	order, err := h.service.Update(ctx, int64(id), input)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "update order failed", zap.Int("order_id", id), zap.Error(err))

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": messageFromError(err),
		})
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	raw := c.Query("status")
	if strings.TrimSpace(raw) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": fiber.Map{"status": "status is required"},
		})
	}

	status, err := domain.ParseStatus(raw)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": fiber.Map{"status": err.Error()},
		})
	}

	order, err := h.service.UpdateStatus(ctx, int64(id), status)
	if order == nil {
		mylogger.Warn(ctx, h.logger, "update order status failed", zap.Int("order_id", id), zap.Error(err))

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": messageFromError(err),
		})
	}
	h.flagPublishFailure(c, err)

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) Delete(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	deleted, err := h.service.Delete(ctx, int64(id))
	if err != nil {
		mylogger.Error(ctx, h.logger, "delete order failed", zap.Int("order_id", id), zap.Error(err))

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": messageFromError(err),
		})
	}

	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "order not found",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// flagPublishFailure marks a response whose write committed but whose event
// did not reach the broker.
func (h *OrderHandler) flagPublishFailure(c *fiber.Ctx, err error) {
	if err == nil {
		return
	}

	if errors.Is(err, messaging.ErrPublish) {
		mylogger.Warn(c.UserContext(), h.logger, "order saved, event publish failed", zap.Error(err))
	} else {
		mylogger.Error(c.UserContext(), h.logger, "order saved with unexpected error", zap.Error(err))
	}

	c.Set(HeaderEventPublish, "failed")
}
