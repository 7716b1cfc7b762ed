package http

import (
	"context"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/circuitbreaker"
	constant "github.com/LerianStudio/beneficiary-pay/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

const healthCheckTimeout = 2 * time.Second

// DependencyCheck describes one dependency reported by the health endpoint.
// CircuitBreaker with ServiceName reports breaker state; HealthCheck, when
// set, decides health on its own.
type DependencyCheck struct {
	Name           string
	CircuitBreaker circuitbreaker.Manager
	ServiceName    string
	HealthCheck    func(ctx context.Context) error
}

type DependencyStatus struct {
	CircuitBreakerState string `json:"circuit_breaker_state,omitempty"`
	Healthy             bool   `json:"healthy"`
	Error               string `json:"error,omitempty"`
	Requests            uint32 `json:"requests,omitempty"`
	TotalFailures       uint32 `json:"total_failures,omitempty"`
	ConsecutiveFailures uint32 `json:"consecutive_failures,omitempty"`
}

// HealthWithDependencies returns 200 "available" when every dependency is
// healthy, otherwise 503 "degraded".
func HealthWithDependencies(dependencies ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		overall := constant.HealthStatusAvailable
		httpStatus := fiber.StatusOK

		statuses := make(map[string]*DependencyStatus, len(dependencies))

		for _, dep := range dependencies {
			status := &DependencyStatus{Healthy: true}

			if dep.CircuitBreaker != nil && dep.ServiceName != "" {
				counts := dep.CircuitBreaker.GetCounts(dep.ServiceName)

				status.CircuitBreakerState = string(dep.CircuitBreaker.GetState(dep.ServiceName))
				status.Requests = counts.Requests
				status.TotalFailures = counts.TotalFailures
				status.ConsecutiveFailures = counts.ConsecutiveFailures
				status.Healthy = dep.CircuitBreaker.IsHealthy(dep.ServiceName)
			}

			if dep.HealthCheck != nil {
				ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
				err := dep.HealthCheck(ctx)
				cancel()

				status.Healthy = err == nil
				if err != nil {
					status.Error = err.Error()
				}
			}

			if !status.Healthy {
				overall = constant.HealthStatusDegraded
				httpStatus = fiber.StatusServiceUnavailable
			}

			statuses[dep.Name] = status
		}

		return c.Status(httpStatus).JSON(fiber.Map{
			"status":       overall,
			"dependencies": statuses,
		})
	}
}
