package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/gatewatch/gate_api/middleware"
	"github.com/gatewatch/gate_api/services/handlers"
	"github.com/gatewatch/gate_api/shared"
)

// HttpService owns the public API surface. Every /api/v1 route sits behind
// the admission pipeline; auth endpoints carry their own tighter per-endpoint
// windows on top of it.
type HttpService struct {
	appContext.DefaultService

	cfgSvc       *ConfigService
	redisSvc     *RedisService
	jwtSvc       *JWTService
	authSvc      *AuthService
	rateLimitSvc *RateLimitService
	abuseSvc     *AbuseService
	auditSvc     *AuditService

	port          int
	maxConcurrent int64
	app           *fiber.App
}

const HTTP_SVC = "http_svc"

const (
	registerEndpointMax = 10
	loginEndpointMax    = 20
)

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	svc.port = 8000
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid HTTP_PORT: %w", err)
		}
	}

	svc.maxConcurrent = 512
	if raw := os.Getenv("MAX_CONCURRENT_REQUESTS"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENT_REQUESTS: %w", err)
		}
		svc.maxConcurrent = parsed
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.cfgSvc = svc.Service(CONFIG_SVC).(*ConfigService)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.abuseSvc = svc.Service(ABUSE_SVC).(*AbuseService)
	svc.auditSvc = svc.Service(AUDIT_SVC).(*AuditService)
	monitoringSvc := svc.Service(MONITORING_SVC).(*MonitoringService)

	authMw := middleware.NewAuthMiddleware(svc.jwtSvc)
	admissionMw := middleware.NewAdmissionMiddleware(
		svc.rateLimitSvc,
		svc.abuseSvc,
		svc.auditSvc,
		svc.cfgSvc.Lists,
		RecordAdmissionDecision,
	)

	authHandler := handlers.NewAuthHandler(svc.authSvc)
	adminHandler := handlers.NewAdminHandler(svc.abuseSvc, svc.auditSvc)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          svc.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(MonitoringMiddleware(monitoringSvc))

	app.Get("/health", svc.health)

	v1 := app.Group("/api/v1")
	if svc.maxConcurrent > 0 {
		v1.Use(middleware.ConcurrencyLimit(svc.maxConcurrent))
	}
	v1.Use(authMw.OptionalAuth())
	v1.Use(admissionMw.Handler())

	v1.Post("/register", admissionMw.EndpointRateLimit(registerEndpointMax), authHandler.Register)
	v1.Post("/login", admissionMw.EndpointRateLimit(loginEndpointMax), authHandler.Login)
	v1.Get("/me", authMw.RequiredAuth(), authHandler.Me)

	admin := v1.Group("/admin", authMw.RequiredAuth(), authMw.AdminOnly())
	admin.Get("/audit-logs", adminHandler.GetAuditLogs)
	admin.Get("/rate-limit-violations", adminHandler.GetRateLimitViolations)
	admin.Get("/blocked-entities", adminHandler.GetBlockedEntities)
	admin.Get("/block-info", adminHandler.GetBlockInfo)
	admin.Post("/block-entity", adminHandler.BlockEntity)
	admin.Post("/unblock-entity", adminHandler.UnblockEntity)

	svc.app = app

	log.WithField("port", svc.port).Info("HTTP server started")
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// @Summary Health
// @Description Report process health and backing store connectivity
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (svc *HttpService) health(c *fiber.Ctx) error {
	status := "healthy"
	stores := fiber.Map{"redis": "up", "postgres": "up"}

	if err := svc.redisSvc.Ping(c.Context()); err != nil {
		status = "degraded"
		stores["redis"] = "down"
	}
	if err := svc.sqlPing(); err != nil {
		status = "degraded"
		stores["postgres"] = "down"
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    status,
		"service":   SERVICE_NAME,
		"stores":    stores,
		"timestamp": time.Now().Unix(),
	})
}

func (svc *HttpService) sqlPing() error {
	sqlSvc := svc.Service(POSTGRES_SVC).(*PostgresService)
	return sqlSvc.Ping()
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).WithFields(log.Fields{
		"path":   c.Path(),
		"method": c.Method(),
	}).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
