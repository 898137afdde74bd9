package server

import (
	"context"
	"time"

	"river/feeds"
	"river/models"
	"river/river"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Refresher interface {
	RefreshAllFeeds(ctx context.Context) (models.RefreshResult, error)
}

type ServerConfig struct {
	// Feed subscriptions
	Feeds feeds.Store

	// River queries
	River *river.Service

	// Ingestion engine used by manual refresh
	Refresher Refresher

	// Comma separated origins allowed by CORS, empty disables CORS
	AllowOrigins string
}

// Returns a fiber.App instance to be used as an HTTP server for the river API
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "river",
		ErrorHandler: errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Debug("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	if config.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: config.AllowOrigins,
			AllowHeaders: "Content-Type, Cache-Control",
			AllowMethods: "GET,POST,DELETE",
		}))
	}

	h := &handlers{config: config}

	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/feeds", h.listFeeds)
	api.Post("/feeds", h.addFeed)
	api.Delete("/feeds/:id", h.deleteFeed)
	api.Post("/refresh", h.refresh)
	api.Get("/items", h.listItems)
	api.Get("/items/:id", h.getItem)
	api.Get("/perf/latest-200", h.latest200)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error."

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		log.WithFields(log.Fields{
			"error": err,
			"path":  c.Path(),
		}).Error("Unhandled request error")
	}

	return c.Status(code).JSON(models.ErrorResponse{Message: message})
}
