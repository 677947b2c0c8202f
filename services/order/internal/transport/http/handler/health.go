package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"go.uber.org/zap"
)

const (
	StatusHealthy   = "Healthy"
	StatusUnhealthy = "Unhealthy"
)

// HealthCheck checks one dependency. Ready checks also gate /health/ready.
type HealthCheck struct {
	Name  string
	Ready bool
	Check func(ctx context.Context) error
}

type checkResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type healthReport struct {
	Status        string        `json:"status"`
	Checks        []checkResult `json:"checks"`
	TotalDuration string        `json:"totalDuration"`
}

type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthHandler(logger *zap.Logger, timeout time.Duration, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return h.report(c, h.checks)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ready := make([]HealthCheck, 0, len(h.checks))
	for _, check := range h.checks {
		if check.Ready {
			ready = append(ready, check)
		}
	}

	return h.report(c, ready)
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": StatusHealthy})
}

func (h *HealthHandler) report(c *fiber.Ctx, checks []HealthCheck) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	started := time.Now()
	report := healthReport{
		Status: StatusHealthy,
		Checks: make([]checkResult, 0, len(checks)),
	}

	for _, check := range checks {
		checkStarted := time.Now()
		err := check.Check(ctx)

		result := checkResult{
			Name:     check.Name,
			Status:   StatusHealthy,
			Duration: time.Since(checkStarted).String(),
		}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			report.Status = StatusUnhealthy

			mylogger.Warn(ctx, h.logger, "health check failed", zap.String("check", check.Name), zap.Error(err))
		}

		report.Checks = append(report.Checks, result)
	}
	report.TotalDuration = time.Since(started).String()

	code := fiber.StatusOK
	if report.Status != StatusHealthy {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(report)
}
