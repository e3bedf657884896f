package middleware

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/shared"
)

// RateLimiter is the sliding-window counter the orchestrator consults.
type RateLimiter interface {
	CheckIP(ctx context.Context, ip string) *dto.RateLimitResult
	CheckUser(ctx context.Context, userID string) *dto.RateLimitResult
	CheckEndpoint(ctx context.Context, endpoint, identifier string, maxOverride int) *dto.RateLimitResult
	RecordViolation(ctx context.Context, identifier, entityType, reason string) int
}

// BlockChecker is the abuse state machine the orchestrator consults and
// escalates into.
type BlockChecker interface {
	IsBlocked(ctx context.Context, entityValue, entityType string) bool
	GetBlockInfo(entityValue, entityType string) (*dto.BlockInfo, error)
	HandleViolation(ctx context.Context, entityValue, entityType, reason string, violationCount int, blockedBy string) (*dto.ViolationResult, error)
}

// AuditSink records admission outcomes off the request path.
type AuditSink interface {
	Record(event dto.AuditEvent)
}

// DecisionRecorder counts a final admit/deny outcome for metrics.
type DecisionRecorder func(decision, reason string)

// Retry-After fallback when a block carries no unblock time.
const defaultRetryAfterSeconds = 300

// Local set by Handler when the caller is whitelisted; later per-route gates
// honor it.
const bypassLocal = "admission_bypass"

// AdmissionMiddleware evaluates every request through a fixed pipeline:
// blacklist, whitelist bypass, active block lookup, then IP and user sliding
// windows. The first deny wins; a whitelisted caller skips everything after
// the blacklist.
type AdmissionMiddleware struct {
	limiter RateLimiter
	blocks  BlockChecker
	audit   AuditSink
	lists   shared.AccessLists
	record  DecisionRecorder

	escalatedBy string
}

func NewAdmissionMiddleware(limiter RateLimiter, blocks BlockChecker, audit AuditSink, lists shared.AccessLists, record DecisionRecorder) *AdmissionMiddleware {
	if record == nil {
		record = func(string, string) {}
	}
	return &AdmissionMiddleware{
		limiter:     limiter,
		blocks:      blocks,
		audit:       audit,
		lists:       lists,
		record:      record,
		escalatedBy: "system",
	}
}

// Handler returns the admission gate for general API traffic. It expects
// OptionalAuth earlier in the chain so authenticated callers carry their
// identity in the request locals.
func (m *AdmissionMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getClientIP(c)
		userID := RequestUserID(c)
		role := RequestRole(c)

		switch shared.Classify(ip, role, m.lists) {
		case shared.DenyListed:
			return m.deny(c, fiber.StatusForbidden, shared.ReasonIPBlacklisted, "Access denied", 0)
		case shared.AllowListed:
			c.Locals(bypassLocal, true)
			m.record("admit", "whitelisted")
			return c.Next()
		}

		if blockedType, blocked := m.activeBlock(c.Context(), ip, userID); blocked {
			retryAfter := m.blockRetryAfter(c.Context(), blockedType, ip, userID)
			return m.deny(c, fiber.StatusTooManyRequests, shared.ReasonEntityBlocked, "Access temporarily blocked", retryAfter)
		}

		ipResult := m.limiter.CheckIP(c.Context(), ip)
		if !ipResult.Allowed {
			return m.denyRateLimited(c, ip, shared.EntityTypeIP, shared.ReasonIPRateLimit, ipResult)
		}

		last := ipResult
		if userID != "" {
			userResult := m.limiter.CheckUser(c.Context(), userID)
			if !userResult.Allowed {
				return m.denyRateLimited(c, userID, shared.EntityTypeUser, shared.ReasonUserRateLimit, userResult)
			}
			last = userResult
		}

		setRateLimitHeaders(c, last)
		m.record("admit", "within_limits")
		return c.Next()
	}
}

// EndpointRateLimit gates a single route with its own window, keyed by user
// identity when authenticated and by IP otherwise. maxRequests > 0 overrides
// the configured per-endpoint maximum.
func (m *AdmissionMiddleware) EndpointRateLimit(maxRequests int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if bypassed, ok := c.Locals(bypassLocal).(bool); ok && bypassed {
			return c.Next()
		}

		identifier := RequestUserID(c)
		entityType := shared.EntityTypeUser
		if identifier == "" {
			identifier = getClientIP(c)
			entityType = shared.EntityTypeIP
		}

		result := m.limiter.CheckEndpoint(c.Context(), c.Method()+":"+c.Path(), identifier, maxRequests)
		if !result.Allowed {
			return m.denyRateLimited(c, identifier, entityType, shared.ReasonEndpointRateLimit, result)
		}

		setRateLimitHeaders(c, result)
		return c.Next()
	}
}

// activeBlock checks IP and user block state concurrently; either one denies.
func (m *AdmissionMiddleware) activeBlock(ctx context.Context, ip, userID string) (string, bool) {
	var ipBlocked, userBlocked bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ipBlocked = m.blocks.IsBlocked(gctx, ip, shared.EntityTypeIP)
		return nil
	})
	if userID != "" {
		g.Go(func() error {
			userBlocked = m.blocks.IsBlocked(gctx, userID, shared.EntityTypeUser)
			return nil
		})
	}
	_ = g.Wait()

	if ipBlocked {
		return shared.EntityTypeIP, true
	}
	if userBlocked {
		return shared.EntityTypeUser, true
	}
	return "", false
}

func (m *AdmissionMiddleware) blockRetryAfter(ctx context.Context, entityType, ip, userID string) int64 {
	value := ip
	if entityType == shared.EntityTypeUser {
		value = userID
	}

	info, err := m.blocks.GetBlockInfo(value, entityType)
	if err != nil || info == nil || !info.IsBlocked || info.UnblockAt == 0 {
		return defaultRetryAfterSeconds
	}

	seconds := (info.UnblockAt - time.Now().UnixMilli()) / 1000
	if seconds < 1 {
		return 1
	}
	return seconds
}

// denyRateLimited records the violation, runs escalation, then rejects with
// rate limit headers. Escalation failures are logged, never surfaced; the
// request is already denied.
func (m *AdmissionMiddleware) denyRateLimited(c *fiber.Ctx, identifier, entityType, reason string, result *dto.RateLimitResult) error {
	count := m.limiter.RecordViolation(c.Context(), identifier, entityType, reason)

	if _, err := m.blocks.HandleViolation(c.Context(), identifier, entityType, reason, count, m.escalatedBy); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type":  entityType,
			"entity_value": identifier,
		}).Error("Violation escalation failed")
	}

	setRateLimitHeaders(c, result)
	retryAfter := (result.ResetTime - time.Now().UnixMilli()) / 1000
	if retryAfter < 1 {
		retryAfter = 1
	}

	return m.deny(c, fiber.StatusTooManyRequests, reason, "Rate limit exceeded", retryAfter)
}

func (m *AdmissionMiddleware) deny(c *fiber.Ctx, status int, reason, message string, retryAfter int64) error {
	if retryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	}

	m.record("deny", reason)
	m.audit.Record(dto.AuditEvent{
		UserID:     RequestUserID(c),
		IP:         getClientIP(c),
		Endpoint:   c.Path(),
		Method:     c.Method(),
		StatusCode: status,
		Reason:     reason,
	})

	if status == fiber.StatusTooManyRequests {
		return c.Status(status).JSON(dto.RateLimitExceededResponse{
			Error:      message,
			RetryAfter: retryAfter,
		})
	}
	return shared.ResponseJSON(c, status, message, nil)
}

func setRateLimitHeaders(c *fiber.Ctx, result *dto.RateLimitResult) {
	// Remaining + current reconstructs the configured maximum for the window.
	c.Set("X-RateLimit-Limit", strconv.Itoa(result.Remaining+result.Current))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))
}

// getClientIP resolves the originating address, trusting proxy headers in
// order before falling back to the socket peer.
func getClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		return cfIP
	}

	remote := c.Context().RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return c.IP()
}
