package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/model"
	"github.com/gatewatch/gate_api/shared"
)

type blockCall struct {
	entityValue     string
	entityType      string
	reason          string
	durationMinutes int
	blockedBy       string
}

type fakeAbuseService struct {
	blocks    []blockCall
	unblocked bool
}

func (f *fakeAbuseService) Block(_ context.Context, entityValue, entityType, reason string, durationMinutes int, blockedBy string) (*model.BlockedEntity, error) {
	f.blocks = append(f.blocks, blockCall{entityValue, entityType, reason, durationMinutes, blockedBy})
	return &model.BlockedEntity{
		ID:          "blk-1",
		EntityType:  entityType,
		EntityValue: entityValue,
		Reason:      reason,
		BlockedAt:   time.Now(),
		IsPermanent: durationMinutes == 0,
	}, nil
}

func (f *fakeAbuseService) Unblock(_ context.Context, entityValue, entityType string) (bool, error) {
	return f.unblocked, nil
}

func (f *fakeAbuseService) GetBlockInfo(entityValue, entityType string) (*dto.BlockInfo, error) {
	return &dto.BlockInfo{IsBlocked: false}, nil
}

func (f *fakeAbuseService) ListBlocked(limit, offset int) (*dto.BlockedEntitiesResponse, error) {
	return &dto.BlockedEntitiesResponse{Limit: limit, Offset: offset}, nil
}

type auditQuery struct {
	kind  string
	value string
}

type fakeAuditQueries struct {
	queries []auditQuery
}

func (f *fakeAuditQueries) record(kind, value string) ([]model.AuditLog, error) {
	f.queries = append(f.queries, auditQuery{kind, value})
	return []model.AuditLog{{ID: "log-1"}}, nil
}

func (f *fakeAuditQueries) GetUserLogs(userID string, _ int) ([]model.AuditLog, error) {
	return f.record("user", userID)
}

func (f *fakeAuditQueries) GetIPLogs(ip string, _ int) ([]model.AuditLog, error) {
	return f.record("ip", ip)
}

func (f *fakeAuditQueries) GetEndpointLogs(endpoint string, _ int) ([]model.AuditLog, error) {
	return f.record("endpoint", endpoint)
}

func (f *fakeAuditQueries) GetRateLimitViolations(_ int) ([]model.AuditLog, error) {
	return f.record("violations", "")
}

func (f *fakeAuditQueries) GetLogs(_ int) ([]model.AuditLog, error) {
	return f.record("all", "")
}

func newAdminTestApp(abuseSvc *fakeAbuseService, auditSvc *fakeAuditQueries) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(shared.UserID, "admin-1")
		return c.Next()
	})

	handler := NewAdminHandler(abuseSvc, auditSvc)
	app.Post("/block-entity", handler.BlockEntity)
	app.Post("/unblock-entity", handler.UnblockEntity)
	app.Get("/blocked-entities", handler.GetBlockedEntities)
	app.Get("/block-info", handler.GetBlockInfo)
	app.Get("/audit-logs", handler.GetAuditLogs)
	app.Get("/rate-limit-violations", handler.GetRateLimitViolations)
	return app
}

func adminPost(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()

	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestBlockEntity_Success(t *testing.T) {
	abuseSvc := &fakeAbuseService{}
	app := newAdminTestApp(abuseSvc, &fakeAuditQueries{})

	status := adminPost(t, app, "/block-entity",
		`{"entity_type":"ip","entity_value":"203.0.113.7","reason":"scraping","duration_minutes":60}`)

	assert.Equal(t, fiber.StatusCreated, status)
	require.Len(t, abuseSvc.blocks, 1)
	assert.Equal(t, blockCall{"203.0.113.7", "ip", "scraping", 60, "admin-1"}, abuseSvc.blocks[0])
}

func TestBlockEntity_PermanentViaZeroDuration(t *testing.T) {
	abuseSvc := &fakeAbuseService{}
	app := newAdminTestApp(abuseSvc, &fakeAuditQueries{})

	status := adminPost(t, app, "/block-entity",
		`{"entity_type":"user","entity_value":"u1","reason":"fraud"}`)

	assert.Equal(t, fiber.StatusCreated, status)
	require.Len(t, abuseSvc.blocks, 1)
	assert.Zero(t, abuseSvc.blocks[0].durationMinutes)
}

func TestBlockEntity_Validation(t *testing.T) {
	abuseSvc := &fakeAbuseService{}
	app := newAdminTestApp(abuseSvc, &fakeAuditQueries{})

	cases := []struct {
		name string
		body string
	}{
		{"bad entity type", `{"entity_type":"session","entity_value":"x","reason":"r"}`},
		{"missing reason", `{"entity_type":"ip","entity_value":"203.0.113.7"}`},
		{"negative duration", `{"entity_type":"ip","entity_value":"203.0.113.7","reason":"r","duration_minutes":-5}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := adminPost(t, app, "/block-entity", tc.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Empty(t, abuseSvc.blocks)
		})
	}
}

func TestUnblockEntity(t *testing.T) {
	abuseSvc := &fakeAbuseService{unblocked: true}
	app := newAdminTestApp(abuseSvc, &fakeAuditQueries{})

	status := adminPost(t, app, "/unblock-entity", `{"entity_type":"ip","entity_value":"203.0.113.7"}`)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestGetBlockInfo_RequiresParams(t *testing.T) {
	app := newAdminTestApp(&fakeAbuseService{}, &fakeAuditQueries{})

	resp, err := app.Test(httptest.NewRequest("GET", "/block-info", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/block-info?entity_type=ip&entity_value=203.0.113.7", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetAuditLogs_FilterDispatch(t *testing.T) {
	auditSvc := &fakeAuditQueries{}
	app := newAdminTestApp(&fakeAbuseService{}, auditSvc)

	cases := []struct {
		url      string
		expected auditQuery
	}{
		{"/audit-logs?user_id=u1", auditQuery{"user", "u1"}},
		{"/audit-logs?ip=203.0.113.7", auditQuery{"ip", "203.0.113.7"}},
		{"/audit-logs?endpoint=/api/v1/login", auditQuery{"endpoint", "/api/v1/login"}},
		{"/audit-logs", auditQuery{"all", ""}},
		{"/rate-limit-violations", auditQuery{"violations", ""}},
	}

	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.url, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	require.Len(t, auditSvc.queries, len(cases))
	for i, tc := range cases {
		assert.Equal(t, tc.expected, auditSvc.queries[i])
	}
}
