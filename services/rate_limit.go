package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gatewatch/gate_api/dto"
)

// WindowStore is the slice of the fast counter store the limiter depends on.
// RedisService implements it; tests substitute an in-memory fake.
type WindowStore interface {
	WindowEntries(ctx context.Context, key string, from, to int64) ([]string, error)
	AddWindowEntry(ctx context.Context, key string, score int64, member string, ttl time.Duration) error
	PurgeWindow(ctx context.Context, key string, before int64) error
}

// RateLimitService computes sliding-window admission decisions. Each check is
// a read-then-insert against a sorted set, so two requests racing in the same
// millisecond can both land when one slot remains: the window is a soft limit,
// not a security boundary. When the store is unreachable the limiter fails
// open; availability wins over strict enforcement.
type RateLimitService struct {
	appContext.DefaultService

	cfgSvc *ConfigService
	store  WindowStore

	now func() time.Time
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const (
	ScopeIP       = "ip"
	ScopeUser     = "user"
	ScopeEndpoint = "endpoint"
)

// Remaining count reported when a check fails open.
const failOpenRemaining = 999

// Violations roll over a fixed 1-hour horizon, independent of the rate-limit
// window.
const violationWindow = time.Hour

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.cfgSvc = svc.Service(CONFIG_SVC).(*ConfigService)
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

// ==================== CORE SLIDING WINDOW ====================

// Check evaluates one request against a (scope, identifier) window.
func (svc *RateLimitService) Check(ctx context.Context, scope, identifier string, maxRequests int, window time.Duration) *dto.RateLimitResult {
	now := svc.now().UnixMilli()
	windowMs := window.Milliseconds()
	windowStart := now - windowMs
	key := windowKey(scope, identifier)

	entries, err := svc.store.WindowEntries(ctx, key, windowStart, now)
	if err != nil {
		return svc.failOpen(scope, identifier, now, windowMs, err)
	}

	if maxRequests <= 0 || len(entries) >= maxRequests {
		resetTime := now + windowMs
		if len(entries) > 0 {
			if oldest, ok := entryTimestamp(entries[0]); ok {
				resetTime = oldest + windowMs
			}
		}
		recordAdmissionDenied(scope)
		return &dto.RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetTime: resetTime,
			Current:   len(entries),
		}
	}

	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	if err := svc.store.AddWindowEntry(ctx, key, now, member, window); err != nil {
		return svc.failOpen(scope, identifier, now, windowMs, err)
	}

	if err := svc.store.PurgeWindow(ctx, key, windowStart); err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to purge expired window entries")
	}

	return &dto.RateLimitResult{
		Allowed:   true,
		Remaining: maxRequests - len(entries) - 1,
		ResetTime: now + windowMs,
		Current:   len(entries) + 1,
	}
}

func (svc *RateLimitService) CheckIP(ctx context.Context, ip string) *dto.RateLimitResult {
	return svc.Check(ctx, ScopeIP, ip, svc.cfgSvc.RateLimit.PerIPMax, svc.cfgSvc.RateLimit.Window)
}

func (svc *RateLimitService) CheckUser(ctx context.Context, userID string) *dto.RateLimitResult {
	return svc.Check(ctx, ScopeUser, userID, svc.cfgSvc.RateLimit.PerUserMax, svc.cfgSvc.RateLimit.Window)
}

// CheckEndpoint gates a specific route with its own key. maxOverride > 0
// replaces the configured per-endpoint maximum for that route.
func (svc *RateLimitService) CheckEndpoint(ctx context.Context, endpoint, identifier string, maxOverride int) *dto.RateLimitResult {
	maxRequests := svc.cfgSvc.RateLimit.PerEndpointMax
	if maxOverride > 0 {
		maxRequests = maxOverride
	}
	return svc.Check(ctx, ScopeEndpoint, endpoint+":"+identifier, maxRequests, svc.cfgSvc.RateLimit.Window)
}

// failOpen admits the request when the counter store is unreachable. This is
// a deliberate availability tradeoff, not an oversight: losing redis degrades
// to "allow", never to over-blocking.
func (svc *RateLimitService) failOpen(scope, identifier string, now, windowMs int64, err error) *dto.RateLimitResult {
	log.WithError(err).WithFields(log.Fields{
		"scope":      scope,
		"identifier": identifier,
	}).Warn("Counter store unavailable, rate check failing open")
	recordStoreFailure("redis")

	return &dto.RateLimitResult{
		Allowed:   true,
		Remaining: failOpenRemaining,
		ResetTime: now + windowMs,
		Current:   0,
	}
}

// ==================== VIOLATION TRACKING ====================

// RecordViolation appends a violation to the entity's rolling 1-hour window
// and returns the current count, including the one just added. Counters are
// independent per (entityType, identifier); scopes never share one.
func (svc *RateLimitService) RecordViolation(ctx context.Context, identifier, entityType, reason string) int {
	now := svc.now().UnixMilli()
	windowStart := now - violationWindow.Milliseconds()
	key := violationKey(entityType, identifier)

	member := fmt.Sprintf("%d-%s", now, reason)
	if err := svc.store.AddWindowEntry(ctx, key, now, member, violationWindow); err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to record violation")
		recordStoreFailure("redis")
		return 1
	}

	if err := svc.store.PurgeWindow(ctx, key, windowStart); err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to purge expired violations")
	}

	entries, err := svc.store.WindowEntries(ctx, key, windowStart, now)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to count violations")
		return 1
	}

	return len(entries)
}

// ViolationCount returns the number of violations in the last hour without
// recording a new one.
func (svc *RateLimitService) ViolationCount(ctx context.Context, identifier, entityType string) int {
	now := svc.now().UnixMilli()
	windowStart := now - violationWindow.Milliseconds()

	entries, err := svc.store.WindowEntries(ctx, violationKey(entityType, identifier), windowStart, now)
	if err != nil {
		log.WithError(err).Warn("Failed to read violation window")
		return 0
	}
	return len(entries)
}

// ==================== KEY HELPERS ====================

func windowKey(scope, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, identifier)
}

func violationKey(entityType, identifier string) string {
	return fmt.Sprintf("violations:%s:%s", entityType, identifier)
}

// entryTimestamp parses the millisecond score prefix from a "<millis>-<token>"
// window member.
func entryTimestamp(member string) (int64, bool) {
	idx := strings.IndexByte(member, '-')
	if idx <= 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(member[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
