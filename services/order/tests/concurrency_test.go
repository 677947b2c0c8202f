package tests

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/sakashimaa/go-order-service/services/order/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestConcurrentWrites_KeepTotalConsistent() {
	order := s.createOrder()
	path := fmt.Sprintf("/orders/%d", order.ID)

	statuses := []string{"Processing", "Shipped", "Delivered", "Cancelled"}

	var wg sync.WaitGroup
	codes := make(chan int, 40)

	done := make(chan struct{})
	mismatches := make(chan string, 100)
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s.checkReadConsistency(path, mismatches)
			}
		}()
	}

	for i := range 20 {
		wg.Add(2)

		go func() {
			defer wg.Done()
			body := createBody(
				item(1, "Laptop", i+1, "10.00"),
				item(2, "Mouse", 1, strconv.Itoa(i+1)+".25"),
			)
			code, _ := s.request(fiber.MethodPut, path, body)
			codes <- code
		}()

		go func() {
			defer wg.Done()
			code, _ := s.request(fiber.MethodPatch, path+"/status?status="+statuses[i%len(statuses)], nil)
			codes <- code
		}()
	}

	wg.Wait()
	close(codes)
	close(done)
	readers.Wait()
	close(mismatches)

	for m := range mismatches {
		s.Fail(m)
	}

	for code := range codes {
		s.Require().Equal(fiber.StatusOK, code)
	}

	total, stored := s.itemsTotal(order.ID)
	s.Require().Equal(total, stored)

	var count int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, order.ID).Scan(&count))
	s.Require().Equal(2, count)

	final, err := s.Store.GetByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().NotNil(final.ShippedDate, "some write moved the order through Shipped")
}

// checkReadConsistency reads the order and the list page holding it and
// reports any response whose total disagrees with its own items.
func (s *IntegrationTestSuite) checkReadConsistency(path string, mismatches chan<- string) {
	report := func(order domain.Order, via string) {
		var sum decimal.Decimal
		for _, it := range order.OrderItems {
			sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt32(it.Quantity)))
		}
		if !sum.Equal(order.TotalAmount) {
			select {
			case mismatches <- fmt.Sprintf("%s: total %s, items sum %s", via, order.TotalAmount, sum):
			default:
			}
		}
	}

	code, raw := s.request(fiber.MethodGet, path, nil)
	if code == fiber.StatusOK {
		var order domain.Order
		if json.Unmarshal(raw, &order) == nil {
			report(order, "get")
		}
	}

	code, raw = s.request(fiber.MethodGet, "/orders?pageSize=5", nil)
	if code == fiber.StatusOK {
		var res service.ListResult
		if json.Unmarshal(raw, &res) == nil {
			for _, order := range res.Items {
				report(order, "list")
			}
		}
	}
}

func (s *IntegrationTestSuite) TestCache_InvalidatedOnWrite() {
	order := s.createOrder()
	key := fmt.Sprintf("order:%d", order.ID)

	code, _ := s.request(fiber.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil)
	s.Require().Equal(fiber.StatusOK, code)

	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err)
	s.Require().Equal(int64(1), exists)

	code, _ = s.request(fiber.MethodPatch, fmt.Sprintf("/orders/%d/status?status=Cancelled", order.ID), nil)
	s.Require().Equal(fiber.StatusOK, code)

	exists, err = s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err)
	s.Require().Zero(exists)

	code, raw := s.request(fiber.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil)
	s.Require().Equal(fiber.StatusOK, code)
	s.Require().Equal(domain.StatusCancelled, s.decodeOrder(raw).Status)

	code, _ = s.request(fiber.MethodDelete, fmt.Sprintf("/orders/%d", order.ID), nil)
	s.Require().Equal(fiber.StatusNoContent, code)

	exists, err = s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err)
	s.Require().Zero(exists)
}
