package middleware

import (
	"context"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/shared"
)

func allowedResult(remaining int) *dto.RateLimitResult {
	return &dto.RateLimitResult{
		Allowed:   true,
		Remaining: remaining,
		ResetTime: time.Now().Add(time.Minute).UnixMilli(),
	}
}

func deniedResult() *dto.RateLimitResult {
	return &dto.RateLimitResult{
		Allowed:   false,
		Remaining: 0,
		ResetTime: time.Now().Add(30 * time.Second).UnixMilli(),
	}
}

type recordedViolation struct {
	identifier string
	entityType string
	reason     string
}

type fakeLimiter struct {
	ipResult       *dto.RateLimitResult
	userResult     *dto.RateLimitResult
	endpointResult *dto.RateLimitResult

	ipChecks   int
	userChecks int
	violations []recordedViolation
}

func (f *fakeLimiter) CheckIP(_ context.Context, _ string) *dto.RateLimitResult {
	f.ipChecks++
	return f.ipResult
}

func (f *fakeLimiter) CheckUser(_ context.Context, _ string) *dto.RateLimitResult {
	f.userChecks++
	return f.userResult
}

func (f *fakeLimiter) CheckEndpoint(_ context.Context, _, _ string, _ int) *dto.RateLimitResult {
	return f.endpointResult
}

func (f *fakeLimiter) RecordViolation(_ context.Context, identifier, entityType, reason string) int {
	f.violations = append(f.violations, recordedViolation{identifier, entityType, reason})
	return len(f.violations)
}

type fakeBlockChecker struct {
	blockedIPs   map[string]bool
	blockedUsers map[string]bool
	info         *dto.BlockInfo

	escalations []recordedViolation
}

func newFakeBlockChecker() *fakeBlockChecker {
	return &fakeBlockChecker{
		blockedIPs:   map[string]bool{},
		blockedUsers: map[string]bool{},
	}
}

func (f *fakeBlockChecker) IsBlocked(_ context.Context, entityValue, entityType string) bool {
	if entityType == shared.EntityTypeUser {
		return f.blockedUsers[entityValue]
	}
	return f.blockedIPs[entityValue]
}

func (f *fakeBlockChecker) GetBlockInfo(_, _ string) (*dto.BlockInfo, error) {
	if f.info == nil {
		return &dto.BlockInfo{IsBlocked: false}, nil
	}
	return f.info, nil
}

func (f *fakeBlockChecker) HandleViolation(_ context.Context, entityValue, entityType, reason string, _ int, _ string) (*dto.ViolationResult, error) {
	f.escalations = append(f.escalations, recordedViolation{entityValue, entityType, reason})
	return &dto.ViolationResult{}, nil
}

type fakeAuditSink struct {
	events []dto.AuditEvent
}

func (f *fakeAuditSink) Record(event dto.AuditEvent) {
	f.events = append(f.events, event)
}

type admissionFixture struct {
	limiter   *fakeLimiter
	blocks    *fakeBlockChecker
	audit     *fakeAuditSink
	decisions []string
	app       *fiber.App
}

func newAdmissionFixture(lists shared.AccessLists, userID string) *admissionFixture {
	fx := &admissionFixture{
		limiter: &fakeLimiter{
			ipResult:       allowedResult(10),
			userResult:     allowedResult(20),
			endpointResult: allowedResult(5),
		},
		blocks: newFakeBlockChecker(),
		audit:  &fakeAuditSink{},
	}

	mw := NewAdmissionMiddleware(fx.limiter, fx.blocks, fx.audit, lists, func(decision, reason string) {
		fx.decisions = append(fx.decisions, decision+":"+reason)
	})

	app := fiber.New()
	if userID != "" {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals(shared.UserID, userID)
			return c.Next()
		})
	}
	app.Use(mw.Handler())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Post("/login", mw.EndpointRateLimit(20), func(c *fiber.Ctx) error { return c.SendString("ok") })

	fx.app = app
	return fx
}

func testRequest(t *testing.T, fx *admissionFixture, method, path, ip string) int {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Forwarded-For", ip)

	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestHandler_BlacklistedIPDenied(t *testing.T) {
	lists := shared.AccessLists{Blacklist: []string{"203.0.113.9"}}
	fx := newAdmissionFixture(lists, "")

	status := testRequest(t, fx, "GET", "/ping", "203.0.113.9")

	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Zero(t, fx.limiter.ipChecks, "blacklisted traffic must not reach the limiter")
	require.Len(t, fx.audit.events, 1)
	assert.Equal(t, shared.ReasonIPBlacklisted, fx.audit.events[0].Reason)
	assert.Contains(t, fx.decisions, "deny:"+shared.ReasonIPBlacklisted)
}

func TestHandler_BlacklistBeatsWhitelist(t *testing.T) {
	lists := shared.AccessLists{
		InternalIPs: []string{"203.0.113.9"},
		AdminIPs:    []string{"203.0.113.9"},
		Blacklist:   []string{"203.0.113.9"},
	}
	fx := newAdmissionFixture(lists, "")

	status := testRequest(t, fx, "GET", "/ping", "203.0.113.9")
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestHandler_WhitelistBypassesAllChecks(t *testing.T) {
	lists := shared.AccessLists{InternalIPs: []string{"192.168.1.0/24"}}
	fx := newAdmissionFixture(lists, "")
	fx.limiter.ipResult = deniedResult()
	fx.blocks.blockedIPs["192.168.1.42"] = true

	status := testRequest(t, fx, "GET", "/ping", "192.168.1.42")

	assert.Equal(t, fiber.StatusOK, status)
	assert.Zero(t, fx.limiter.ipChecks)
	assert.Contains(t, fx.decisions, "admit:whitelisted")
}

func TestHandler_BlockedIPDenied(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "")
	fx.blocks.blockedIPs["203.0.113.7"] = true
	fx.blocks.info = &dto.BlockInfo{
		IsBlocked: true,
		UnblockAt: time.Now().Add(2 * time.Minute).UnixMilli(),
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	resp, err := fx.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	retryAfter, err := strconv.Atoi(resp.Header.Get(fiber.HeaderRetryAfter))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 120)

	require.Len(t, fx.audit.events, 1)
	assert.Equal(t, shared.ReasonEntityBlocked, fx.audit.events[0].Reason)
}

func TestHandler_BlockedUserDenied(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "u1")
	fx.blocks.blockedUsers["u1"] = true

	status := testRequest(t, fx, "GET", "/ping", "198.51.100.1")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
}

func TestHandler_IPRateLimitDenied(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "")
	fx.limiter.ipResult = deniedResult()

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	resp, err := fx.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

	require.Len(t, fx.limiter.violations, 1)
	assert.Equal(t, recordedViolation{"198.51.100.1", shared.EntityTypeIP, shared.ReasonIPRateLimit}, fx.limiter.violations[0])
	require.Len(t, fx.blocks.escalations, 1)
	require.Len(t, fx.audit.events, 1)
	assert.Equal(t, shared.ReasonIPRateLimit, fx.audit.events[0].Reason)
}

func TestHandler_UserRateLimitDenied(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "u1")
	fx.limiter.userResult = deniedResult()

	status := testRequest(t, fx, "GET", "/ping", "198.51.100.1")

	assert.Equal(t, fiber.StatusTooManyRequests, status)
	require.Len(t, fx.limiter.violations, 1)
	assert.Equal(t, recordedViolation{"u1", shared.EntityTypeUser, shared.ReasonUserRateLimit}, fx.limiter.violations[0])
}

func TestHandler_AnonymousSkipsUserCheck(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "")

	status := testRequest(t, fx, "GET", "/ping", "198.51.100.1")

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, fx.limiter.ipChecks)
	assert.Zero(t, fx.limiter.userChecks)
}

func TestHandler_AdmitSetsRateLimitHeaders(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "u1")
	fx.limiter.userResult = allowedResult(42)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	resp, err := fx.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	assert.Contains(t, fx.decisions, "admit:within_limits")
}

func TestEndpointRateLimit_Denied(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "")
	fx.limiter.endpointResult = deniedResult()

	status := testRequest(t, fx, "POST", "/login", "198.51.100.1")

	assert.Equal(t, fiber.StatusTooManyRequests, status)
	require.Len(t, fx.limiter.violations, 1)
	assert.Equal(t, recordedViolation{"198.51.100.1", shared.EntityTypeIP, shared.ReasonEndpointRateLimit}, fx.limiter.violations[0])
}

func TestEndpointRateLimit_WhitelistBypasses(t *testing.T) {
	lists := shared.AccessLists{InternalIPs: []string{"192.168.1.0/24"}}
	fx := newAdmissionFixture(lists, "")
	fx.limiter.endpointResult = deniedResult()

	status := testRequest(t, fx, "POST", "/login", "192.168.1.42")

	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, fx.limiter.violations)
}

func TestEndpointRateLimit_KeyedByUserWhenAuthenticated(t *testing.T) {
	fx := newAdmissionFixture(shared.AccessLists{}, "u1")
	fx.limiter.endpointResult = deniedResult()

	status := testRequest(t, fx, "POST", "/login", "198.51.100.1")

	assert.Equal(t, fiber.StatusTooManyRequests, status)
	require.Len(t, fx.limiter.violations, 1)
	assert.Equal(t, recordedViolation{"u1", shared.EntityTypeUser, shared.ReasonEndpointRateLimit}, fx.limiter.violations[0])
}

func TestGetClientIP_HeaderPrecedence(t *testing.T) {
	app := fiber.New()
	var seen string
	app.Get("/", func(c *fiber.Ctx) error {
		seen = getClientIP(c)
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.2")
	req.Header.Set("CF-Connecting-IP", "203.0.113.3")
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.1", seen)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "203.0.113.2")
	req.Header.Set("CF-Connecting-IP", "203.0.113.3")
	_, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.2", seen)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("CF-Connecting-IP", "203.0.113.3")
	_, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.3", seen)
}
