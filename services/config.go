package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alphabatem/common/context"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/shared"
)

// ConfigService parses the environment exactly once into a typed, validated
// configuration. Invalid thresholds abort startup; nothing re-reads env
// strings at request time.
type ConfigService struct {
	context.DefaultService

	RateLimit RateLimitConfig
	Abuse     AbuseConfig
	Lists     shared.AccessLists
}

type RateLimitConfig struct {
	Window         time.Duration `validate:"required,gt=0"`
	PerIPMax       int           `validate:"gte=0"`
	PerUserMax     int           `validate:"gte=0"`
	PerEndpointMax int           `validate:"gte=0"`
}

type AbuseConfig struct {
	Threshold                int           `validate:"required,gt=0"`
	BlockDuration            time.Duration `validate:"required,gt=0"`
	ProgressiveBlockDuration time.Duration `validate:"required,gt=0"`
}

const CONFIG_SVC = "config_svc"

func (svc ConfigService) Id() string {
	return CONFIG_SVC
}

func (svc *ConfigService) Configure(ctx *context.Context) error {
	if err := svc.loadFromEnv(); err != nil {
		return err
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *ConfigService) loadFromEnv() error {
	windowMs, err := envInt("RATE_LIMIT_WINDOW_MS", 60000)
	if err != nil {
		return err
	}
	svc.RateLimit.Window = time.Duration(windowMs) * time.Millisecond

	if svc.RateLimit.PerIPMax, err = envInt("RATE_LIMIT_PER_IP_MAX", 200); err != nil {
		return err
	}
	if svc.RateLimit.PerUserMax, err = envInt("RATE_LIMIT_PER_USER_MAX", 100); err != nil {
		return err
	}
	if svc.RateLimit.PerEndpointMax, err = envInt("RATE_LIMIT_PER_ENDPOINT_MAX", 500); err != nil {
		return err
	}

	if svc.Abuse.Threshold, err = envInt("ABUSE_THRESHOLD", 5); err != nil {
		return err
	}
	blockMinutes, err := envInt("BLOCK_DURATION_MINUTES", 5)
	if err != nil {
		return err
	}
	progressiveMinutes, err := envInt("PROGRESSIVE_BLOCK_DURATION_MINUTES", 15)
	if err != nil {
		return err
	}
	svc.Abuse.BlockDuration = time.Duration(blockMinutes) * time.Minute
	svc.Abuse.ProgressiveBlockDuration = time.Duration(progressiveMinutes) * time.Minute

	svc.Lists = shared.AccessLists{
		InternalIPs: envList("WHITELIST_INTERNAL_IPS", "127.0.0.1,::1,192.168.1.0/24"),
		AdminIPs:    envList("WHITELIST_ADMIN_IPS", "127.0.0.1"),
		Blacklist:   envList("BLACKLIST_IPS", ""),
	}

	return svc.validate()
}

func (svc *ConfigService) Start() error {
	return nil
}

func (svc *ConfigService) validate() error {
	v := dto.GetValidator()
	if err := v.Struct(svc.RateLimit); err != nil {
		return fmt.Errorf("invalid rate limit configuration: %w", err)
	}
	if err := v.Struct(svc.Abuse); err != nil {
		return fmt.Errorf("invalid abuse prevention configuration: %w", err)
	}
	return nil
}

// BlockDurationMinutes returns the base escalation duration in minutes, the
// unit the block API speaks.
func (svc *ConfigService) BlockDurationMinutes() int {
	return int(svc.Abuse.BlockDuration / time.Minute)
}

func (svc *ConfigService) ProgressiveBlockDurationMinutes() int {
	return int(svc.Abuse.ProgressiveBlockDuration / time.Minute)
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func envList(key, fallback string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = fallback
	}

	var entries []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}
