package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// readinessTimeout bounds the dependency pings so a wedged store cannot hang
// the probe.
const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports whether the engine can take scheduling and tick
// traffic: postgres holds the registry and broadcast state, redis holds the
// shared send budget.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgStatus := dependencyStatus(sqlDB.PingContext(ctx))
		redisStatus := dependencyStatus(rdb.Ping(ctx).Err())

		status := "ready"
		statusCode := fiber.StatusOK
		if pgStatus != "up" || redisStatus != "up" {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres": pgStatus,
				"redis":    redisStatus,
			},
		})
	}
}

func dependencyStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}
