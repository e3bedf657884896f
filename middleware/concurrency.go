package middleware

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/semaphore"

	"github.com/gatewatch/gate_api/shared"
)

// ConcurrencyLimit caps the number of requests in flight at once. Requests
// beyond the cap are shed immediately with 503 rather than queued; the
// sliding windows upstream already smooth sustained load, this guards against
// bursts exhausting the process.
func ConcurrencyLimit(maxConcurrent int64) fiber.Handler {
	sem := semaphore.NewWeighted(maxConcurrent)

	return func(c *fiber.Ctx) error {
		if !sem.TryAcquire(1) {
			return shared.ResponseJSON(c, fiber.StatusServiceUnavailable, "Server busy", nil)
		}
		defer sem.Release(1)

		return c.Next()
	}
}
