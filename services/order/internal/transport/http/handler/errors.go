package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/sakashimaa/go-order-service/services/order/internal/repository"
)

const HeaderEventPublish = "X-Event-Publish"

func statusFromError(err error) int {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStatus):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func messageFromError(err error) string {
	switch statusFromError(err) {
	case fiber.StatusNotFound:
		return "order not found"
	case fiber.StatusBadRequest:
		return err.Error()
	default:
		return "internal error"
	}
}
