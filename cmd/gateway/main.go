package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wahaj4311/microservices-demo/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type upstream struct {
	Name    string
	BaseURL string
}

func main() {
	log.Println("Starting API Gateway...")

	upstreams := map[string]upstream{
		"auth":     {Name: "auth-service", BaseURL: getEnvOrDefault("AUTH_SERVICE_URL", "http://localhost:8001")},
		"products": {Name: "product-service", BaseURL: getEnvOrDefault("PRODUCT_SERVICE_URL", "http://localhost:8002")},
		"orders":   {Name: "order-service", BaseURL: getEnvOrDefault("ORDER_SERVICE_URL", "http://localhost:8003")},
	}

	app := setupFiberApp()
	setupRoutes(app, upstreams)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down API Gateway...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	port := getEnvOrDefault("PORT", "8000")
	log.Printf("API Gateway running on: http://localhost:%s", port)

	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Server startup error: %v", err)
	}
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "API Gateway v1.0",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	return app
}

// setupRoutes exposes the public API only. The product service's
// /internal/stock endpoints are deliberately unrouted here.
func setupRoutes(app *fiber.App, upstreams map[string]upstream) {
	app.Get("/api/v1/health", healthHandler(upstreams))

	app.All("/api/v1/auth/*", forwardTo(upstreams["auth"]))
	app.All("/api/v1/products", forwardTo(upstreams["products"]))
	app.All("/api/v1/products/*", forwardTo(upstreams["products"]))
	app.All("/api/v1/orders", forwardTo(upstreams["orders"]))
	app.All("/api/v1/orders/*", forwardTo(upstreams["orders"]))

	app.Use("*", func(c *fiber.Ctx) error {
		return httpx.NotFoundResponse(c, "Route not found")
	})
}

// forwardTo proxies the request to the upstream service, preserving the
// original path and query string.
func forwardTo(target upstream) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url := target.BaseURL + c.OriginalURL()
		if err := proxy.Do(c, url); err != nil {
			log.Printf("Proxy error for %s: %v", target.Name, err)
			return httpx.ServiceUnavailableResponse(c, target.Name+" is unavailable")
		}
		return nil
	}
}

// healthHandler aggregates the health endpoints of every upstream.
func healthHandler(upstreams map[string]upstream) fiber.Handler {
	client := &http.Client{Timeout: 2 * time.Second}

	return func(c *fiber.Ctx) error {
		statuses := make(map[string]string, len(upstreams))
		healthy := true

		for _, target := range upstreams {
			statuses[target.Name] = checkUpstream(client, target)
			if statuses[target.Name] != "healthy" {
				healthy = false
			}
		}

		payload := fiber.Map{
			"gateway":  "healthy",
			"services": statuses,
		}
		if !healthy {
			return c.Status(fiber.StatusServiceUnavailable).JSON(httpx.APIResponse{
				Success:   false,
				Message:   "Degraded",
				Data:      payload,
				Timestamp: time.Now(),
			})
		}
		return httpx.SuccessResponse(c, "Healthy", payload)
	}
}

func checkUpstream(client *http.Client, target upstream) string {
	resp, err := client.Get(target.BaseURL + "/api/v1/health")
	if err != nil {
		return "unreachable"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "unhealthy"
	}
	return "healthy"
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
