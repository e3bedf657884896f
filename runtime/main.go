package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gatewatch/gate_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded, using process environment")
	}

	ctx, err := context.NewCtx(
		&services.ConfigService{},
		&services.RedisService{},
		&services.PostgresService{},
		&services.JWTService{},

		&services.RateLimitService{},
		&services.AbuseService{},
		&services.AuditService{},
		&services.AuthService{},

		&services.MonitoringService{},
		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service context")
		return
	}

	if err := ctx.Run(); err != nil {
		log.Fatal().Err(err).Msg("Service context exited")
		return
	}
}
