// Package httpapi exposes the production tracking service as a JSON API.
//
// Callers are identified by the X-User-ID header, which the authenticating
// proxy in front of the service sets.
package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/metrics"
	"prodtrack/internal/production"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	HeaderUserID = "X-User-ID"

	localActor     = "actor"
	localRequestID = "requestid"
)

type Options struct {
	// OpenRecordMaxAgeDays is passed to the daily report.
	OpenRecordMaxAgeDays int
	ReadTimeout          time.Duration
}

type Server struct {
	svc    *production.Service
	logger *zap.Logger
	opts   Options
}

// New builds the fiber app with every route registered. m may be nil, in
// which case /metrics is not served.
func New(svc *production.Service, m *metrics.Metrics, logger *zap.Logger, opts Options) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger, opts: opts}

	app := fiber.New(fiber.Config{
		AppName:               "prodtrack",
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: localRequestID,
	}))
	app.Use(s.requestLogger)
	app.Use(recover.New())

	app.Get("/healthz", s.healthz)
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", s.requireActor)

	api.Get("/lines", s.listLines)
	api.Post("/lines", s.createLine)
	api.Get("/lines/:id", s.getLine)
	api.Put("/lines/:id", s.updateLine)
	api.Delete("/lines/:id", s.deleteLine)

	api.Get("/records", s.listRecords)
	api.Post("/records", s.createRecord)
	api.Get("/records/:id", s.getRecord)
	api.Put("/records/:id", s.updateRecord)
	api.Delete("/records/:id", s.deleteRecord)
	api.Post("/records/:id/recompute", s.recompute)
	api.Post("/records/:id/finalize", s.finalize)
	api.Post("/records/:id/reopen", s.reopen)
	api.Post("/records/:id/children", s.saveChildren)
	api.Delete("/records/:id/hourly/:entryID", s.deleteHourly)
	api.Delete("/records/:id/stoppages/:stoppageID", s.deleteStoppage)

	api.Post("/users", s.createUser)
	api.Put("/users/:id/sectors/:sector", s.grantSector)
	api.Delete("/users/:id/sectors/:sector", s.revokeSector)

	api.Get("/reports/daily", s.dailyReport)

	return app
}

func (s *Server) healthz(c *fiber.Ctx) error {
	if err := s.svc.DB().PingContext(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// requireActor resolves X-User-ID into an actor with its sectors.
func (s *Server) requireActor(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Get(HeaderUserID))
	if raw == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+HeaderUserID+" header")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid "+HeaderUserID+" header")
	}
	actor, err := s.svc.LoadActor(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, fmt.Sprintf("unknown user %d", userID))
	}
	c.Locals(localActor, actor)
	return c.Next()
}

func actorOf(c *fiber.Ctx) domain.Actor {
	actor, _ := c.Locals(localActor).(domain.Actor)
	return actor
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	fields := []zap.Field{
		zap.String("request_id", fmt.Sprint(c.Locals(localRequestID))),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	}
	if actor := actorOf(c); actor.UserID != 0 {
		fields = append(fields, zap.Int64("actor_id", actor.UserID))
	}
	switch {
	case status >= fiber.StatusInternalServerError:
		s.logger.Error("request failed", append(fields, zap.Error(err))...)
	case status >= fiber.StatusBadRequest:
		s.logger.Info("request rejected", append(fields, zap.Error(err))...)
	default:
		s.logger.Debug("request", fields...)
	}
	return nil
}
