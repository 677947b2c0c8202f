package tests

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/sakashimaa/go-order-service/services/order/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCreateOrder_ComputesTotal() {
	order := s.createOrder()

	s.Require().NotZero(order.ID)
	s.Require().True(order.TotalAmount.Equal(decimal.RequireFromString("25.00")), order.TotalAmount.String())
	s.Require().Equal(domain.StatusPending, order.Status)
	s.Require().Nil(order.ShippedDate)
	s.Require().Len(order.OrderItems, 2)
	s.Require().Equal("Laptop", order.OrderItems[0].ProductName)
	s.Require().True(order.CreatedAt.Equal(order.UpdatedAt))

	total, stored := s.itemsTotal(order.ID)
	s.Require().Equal("25.00", total)
	s.Require().Equal("25.00", stored)
}

func (s *IntegrationTestSuite) TestCreateOrder_PublishesToBothTopics() {
	marks := map[string]int64{
		ordersTopic:        s.topicMark(ordersTopic),
		notificationsTopic: s.topicMark(notificationsTopic),
	}
	order := s.createOrder()
	id := strconv.FormatInt(order.ID, 10)

	isThisOrder := func(env messaging.Envelope) bool {
		var body struct {
			OrderID int64 `json:"orderId"`
		}
		return env.Type == "OrderCreatedEvent" && json.Unmarshal(env.Body, &body) == nil &&
			strconv.FormatInt(body.OrderID, 10) == id
	}

	for _, topic := range []string{ordersTopic, notificationsTopic} {
		envs := s.readEnvelopes(topic, marks[topic], 1, isThisOrder)
		s.Require().Equal(messaging.ContentTypeJSON, envs[0].ContentType)

		var body map[string]any
		s.Require().NoError(json.Unmarshal(envs[0].Body, &body))
		s.Require().Equal(25.0, body["totalAmount"])
		s.Require().Len(body["items"], 2)
	}
}

func (s *IntegrationTestSuite) TestGetOrder_Idempotent() {
	order := s.createOrder()
	path := fmt.Sprintf("/orders/%d", order.ID)

	code, first := s.request(fiber.MethodGet, path, nil)
	s.Require().Equal(fiber.StatusOK, code)

	code, second := s.request(fiber.MethodGet, path, nil)
	s.Require().Equal(fiber.StatusOK, code)
	s.Require().Equal(string(first), string(second))

	code, _ = s.request(fiber.MethodGet, "/orders/999999", nil)
	s.Require().Equal(fiber.StatusNotFound, code)
}

func (s *IntegrationTestSuite) TestUpdateStatus_ShippedDateSetOnce() {
	order := s.createOrder()
	path := fmt.Sprintf("/orders/%d/status?status=", order.ID)

	code, raw := s.request(fiber.MethodPatch, path+"Shipped", nil)
	s.Require().Equal(fiber.StatusOK, code, string(raw))
	shipped := s.decodeOrder(raw)
	s.Require().Equal(domain.StatusShipped, shipped.Status)
	s.Require().NotNil(shipped.ShippedDate)

	code, raw = s.request(fiber.MethodPatch, path+"Delivered", nil)
	s.Require().Equal(fiber.StatusOK, code)
	delivered := s.decodeOrder(raw)
	s.Require().True(shipped.ShippedDate.Equal(*delivered.ShippedDate))

	code, raw = s.request(fiber.MethodPatch, path+"shipped", nil)
	s.Require().Equal(fiber.StatusOK, code)
	reshipped := s.decodeOrder(raw)
	s.Require().True(shipped.ShippedDate.Equal(*reshipped.ShippedDate))

	stored, err := s.Store.GetByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().True(shipped.ShippedDate.Equal(*stored.ShippedDate))
}

func (s *IntegrationTestSuite) TestUpdateStatus_EmitsChangeEvent() {
	order := s.createOrder()
	mark := s.topicMark(notificationsTopic)

	code, _ := s.request(fiber.MethodPatch, fmt.Sprintf("/orders/%d/status?status=Shipped", order.ID), nil)
	s.Require().Equal(fiber.StatusOK, code)

	envs := s.readEnvelopes(notificationsTopic, mark, 1, func(env messaging.Envelope) bool {
		var body struct {
			OrderID int64 `json:"orderId"`
		}
		return env.Type == "OrderStatusChangedEvent" && json.Unmarshal(env.Body, &body) == nil && body.OrderID == order.ID
	})

	var event struct {
		OldStatus string `json:"oldStatus"`
		NewStatus string `json:"newStatus"`
	}
	s.Require().NoError(json.Unmarshal(envs[0].Body, &event))
	s.Require().Equal("Pending", event.OldStatus)
	s.Require().Equal("Shipped", event.NewStatus)
}

func (s *IntegrationTestSuite) TestListOrders_PaginationAndFilter() {
	statuses := []domain.Status{
		domain.StatusPending, domain.StatusShipped, domain.StatusProcessing,
		domain.StatusShipped, domain.StatusDelivered, domain.StatusCancelled,
		domain.StatusPending, domain.StatusPending, domain.StatusPending,
		domain.StatusPending, domain.StatusPending, domain.StatusPending,
	}
	for _, status := range statuses {
		order := s.createOrder()
		if status != domain.StatusPending {
			_, _, err := s.Store.UpdateStatus(s.Ctx, order.ID, status)
			s.Require().NoError(err)
		}
	}

	list := func(query string) service.ListResult {
		code, raw := s.request(fiber.MethodGet, "/orders"+query, nil)
		s.Require().Equal(fiber.StatusOK, code, string(raw))

		var res service.ListResult
		s.Require().NoError(json.Unmarshal(raw, &res))
		return res
	}

	res := list("?page=2&pageSize=5")
	s.Require().Equal(int64(12), res.TotalCount)
	s.Require().Len(res.Items, 5)
	s.Require().Equal(2, res.Page)

	res = list("?page=3&pageSize=5")
	s.Require().Len(res.Items, 2)

	res = list("?page=4&pageSize=5")
	s.Require().Empty(res.Items)

	res = list("?page=0&pageSize=101")
	s.Require().Equal(1, res.Page)
	s.Require().Equal(10, res.PageSize)
	s.Require().Len(res.Items, 10)

	res = list("?status=ship")
	s.Require().Equal(int64(2), res.TotalCount)
	for _, order := range res.Items {
		s.Require().Equal(domain.StatusShipped, order.Status)
	}

	res = list("?status=PENDING")
	s.Require().Equal(int64(7), res.TotalCount)

	// wildcard characters are matched literally
	res = list("?status=_")
	s.Require().Zero(res.TotalCount)
	s.Require().Empty(res.Items)

	res = list("?status=%25")
	s.Require().Zero(res.TotalCount)

	res = list("?status=Pend_ng")
	s.Require().Zero(res.TotalCount)

	res = list("?pageSize=3")
	for i := 1; i < len(res.Items); i++ {
		s.Require().Less(res.Items[i-1].ID, res.Items[i].ID)
	}
	s.Require().Len(res.Items[0].OrderItems, 2)
}

func (s *IntegrationTestSuite) TestUpdateOrder_ReplacesItems() {
	order := s.createOrder()

	body := createBody(item(9, "Desk", 3, "120.50"))
	body["customerName"] = "Jane Smith"

	code, raw := s.request(fiber.MethodPut, fmt.Sprintf("/orders/%d", order.ID), body)
	s.Require().Equal(fiber.StatusOK, code, string(raw))

	updated := s.decodeOrder(raw)
	s.Require().Equal("Jane Smith", updated.CustomerName)
	s.Require().Len(updated.OrderItems, 1)
	s.Require().True(updated.TotalAmount.Equal(decimal.RequireFromString("361.50")))
	s.Require().False(updated.UpdatedAt.Before(order.UpdatedAt))
	s.Require().True(order.CreatedAt.Equal(updated.CreatedAt))
	s.Require().Equal(domain.StatusPending, updated.Status)

	var count int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, order.ID).Scan(&count))
	s.Require().Equal(1, count)

	total, stored := s.itemsTotal(order.ID)
	s.Require().Equal(total, stored)

	code, _ = s.request(fiber.MethodPut, "/orders/999999", body)
	s.Require().Equal(fiber.StatusNotFound, code)
}

func (s *IntegrationTestSuite) TestUpdateOrder_StatusChangeSetsShippedDate() {
	order := s.createOrder()

	body := createBody(item(1, "Laptop", 1, "10.00"))
	body["status"] = "Shipped"

	code, raw := s.request(fiber.MethodPut, fmt.Sprintf("/orders/%d", order.ID), body)
	s.Require().Equal(fiber.StatusOK, code, string(raw))
	s.Require().NotNil(s.decodeOrder(raw).ShippedDate)
}

func (s *IntegrationTestSuite) TestDeleteOrder_CascadesItems() {
	order := s.createOrder()
	path := fmt.Sprintf("/orders/%d", order.ID)

	code, _ := s.request(fiber.MethodDelete, path, nil)
	s.Require().Equal(fiber.StatusNoContent, code)

	var count int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, order.ID).Scan(&count))
	s.Require().Zero(count)

	code, _ = s.request(fiber.MethodGet, path, nil)
	s.Require().Equal(fiber.StatusNotFound, code)

	code, _ = s.request(fiber.MethodDelete, path, nil)
	s.Require().Equal(fiber.StatusNotFound, code)
}

func (s *IntegrationTestSuite) TestHealthEndpoints() {
	code, raw := s.request(fiber.MethodGet, "/health/ready", nil)
	s.Require().Equal(fiber.StatusOK, code, string(raw))

	code, _ = s.request(fiber.MethodGet, "/health/live", nil)
	s.Require().Equal(fiber.StatusOK, code)
}
