package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/campuskit/campuskit/internal/pkg/billing"
	"github.com/campuskit/campuskit/internal/pkg/cache"
	"github.com/campuskit/campuskit/internal/pkg/database"
	"github.com/campuskit/campuskit/internal/pkg/env"
	"github.com/campuskit/campuskit/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, webhooks and form posts only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	startMembershipExpirySweep()

	return app
}

// startMembershipExpirySweep periodically flips lapsed memberships to
// inactive. Expiry is also checked on read, so the sweep cadence is not
// correctness-critical.
func startMembershipExpirySweep() {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			svc := billing.NewServiceFromDB(database.GetDB())
			if n, err := svc.ExpireLapsedMemberships(context.Background()); err != nil {
				log.Printf("membership expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("membership expiry sweep deactivated %d memberships", n)
			}
		}
	}()
}
