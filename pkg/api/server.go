// Package api serves the flight tools' HTTP surface: health, telemetry, the
// mission, the browser viewer and its websockets.
package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/open-teleop/airscan/domain/telemetry"
	"github.com/open-teleop/airscan/domain/video"
	"github.com/open-teleop/airscan/domain/viewer"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/services"
)

var (
	//go:embed static/viewer.html
	viewerPage []byte
	//go:embed static/control.html
	controlPage []byte
)

// Dependencies are the services the server exposes. Nil members leave their
// routes unregistered.
type Dependencies struct {
	Telemetry *telemetry.Service
	Missions  services.MissionService
	Clouds    *viewer.Hub
	Video     *video.VideoService
	Control   *keyboard.Feed
}

// Server wraps the fiber app.
type Server struct {
	app    *fiber.App
	logger customlog.Logger
}

// NewServer builds the app and registers routes for the given dependencies.
func NewServer(name string, deps Dependencies, logger customlog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${status} ${method} ${path} ${latency}\n",
		Output: logWriter{logger},
	}))
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": name,
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api := app.Group("/api")
	if deps.Telemetry != nil {
		api.Get("/telemetry", deps.Telemetry.GetTelemetryHandler)
	}
	if deps.Video != nil {
		api.Get("/video/latest", deps.Video.StreamHandler)
	}
	if deps.Missions != nil {
		RegisterMissionRoutes(app, deps.Missions, logger)
	}

	ws := app.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if deps.Clouds != nil {
		app.Get("/viewer", func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.Send(viewerPage)
		})
		ws.Get("/cloud", websocket.New(func(conn *websocket.Conn) {
			CloudWebSocketHandler(conn, deps.Clouds, logger)
		}))
	}
	if deps.Video != nil {
		ws.Get("/camera", websocket.New(func(conn *websocket.Conn) {
			CameraWebSocketHandler(conn, deps.Video, logger)
		}))
	}
	if deps.Control != nil {
		app.Get("/control", func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.Send(controlPage)
		})
		ws.Get("/control", websocket.New(func(conn *websocket.Conn) {
			ControlWebSocketHandler(conn, deps.Control, logger)
		}))
	}

	return &Server{app: app, logger: logger}
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on port in the background. Listen errors other than a
// normal shutdown are logged.
func (s *Server) Start(port int) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		s.logger.Infof("HTTP server starting on %s", addr)
		if err := s.app.Listen(addr); err != nil {
			s.logger.Errorf("HTTP server stopped: %v", err)
		}
	}()
}

// Shutdown stops accepting requests and waits up to timeout for open ones.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Infof("HTTP server exited properly")
	return nil
}

// customErrorHandler renders every error as {"error": msg}.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// logWriter sends fiber's access log lines to the application logger.
type logWriter struct {
	logger customlog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Debugf("http %s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
