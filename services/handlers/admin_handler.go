package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/model"
	"github.com/gatewatch/gate_api/shared"
)

type AdminHandler struct {
	abuseSvc AbuseServiceInterface
	auditSvc AuditServiceInterface
}

func NewAdminHandler(abuseSvc AbuseServiceInterface, auditSvc AuditServiceInterface) *AdminHandler {
	return &AdminHandler{
		abuseSvc: abuseSvc,
		auditSvc: auditSvc,
	}
}

// @Summary Block an entity
// @Description Block a user or IP, temporarily or permanently
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param blockRequest body dto.BlockEntityRequest true "Block details; duration_minutes of 0 is permanent"
// @Success 201 {object} shared.Response{data=model.BlockedEntity}
// @Router /api/v1/admin/block-entity [post]
func (h *AdminHandler) BlockEntity(c *fiber.Ctx) error {
	var req dto.BlockEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewValidationError("invalid request body")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	blockedBy, _ := c.Locals(shared.UserID).(string)
	record, err := h.abuseSvc.Block(c.Context(), req.EntityValue, req.EntityType, req.Reason, req.DurationMinutes, blockedBy)
	if err != nil {
		return err
	}

	return shared.ResponseCreated(c, record)
}

// @Summary Unblock an entity
// @Description Remove an active block; a no-op when the entity is not blocked
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param unblockRequest body dto.UnblockEntityRequest true "Unblock details"
// @Success 200 {object} shared.Response{data=dto.UnblockEntityResponse}
// @Router /api/v1/admin/unblock-entity [post]
func (h *AdminHandler) UnblockEntity(c *fiber.Ctx) error {
	var req dto.UnblockEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewValidationError("invalid request body")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	removed, err := h.abuseSvc.Unblock(c.Context(), req.EntityValue, req.EntityType)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.UnblockEntityResponse{Removed: removed})
}

// @Summary List blocked entities
// @Description Page through currently active blocks
// @Tags admin
// @Produce json
// @Security Bearer
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} shared.Response{data=dto.BlockedEntitiesResponse}
// @Router /api/v1/admin/blocked-entities [get]
func (h *AdminHandler) GetBlockedEntities(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	resp, err := h.abuseSvc.ListBlocked(limit, offset)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Block details
// @Description Return the active block record for one entity, if any
// @Tags admin
// @Produce json
// @Security Bearer
// @Param entity_type query string true "user or ip"
// @Param entity_value query string true "User ID or IP address"
// @Success 200 {object} shared.Response{data=dto.BlockInfo}
// @Router /api/v1/admin/block-info [get]
func (h *AdminHandler) GetBlockInfo(c *fiber.Ctx) error {
	entityType := c.Query("entity_type")
	entityValue := c.Query("entity_value")
	if entityType == "" || entityValue == "" {
		return shared.NewValidationError("entity_type and entity_value are required")
	}

	info, err := h.abuseSvc.GetBlockInfo(entityValue, entityType)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, info)
}

// @Summary Audit logs
// @Description Query admission audit logs, optionally filtered by user, IP or endpoint
// @Tags admin
// @Produce json
// @Security Bearer
// @Param user_id query string false "Filter by user ID"
// @Param ip query string false "Filter by IP"
// @Param endpoint query string false "Filter by endpoint path"
// @Param limit query int false "Max entries" default(100)
// @Success 200 {object} shared.Response{data=dto.AuditLogsResponse}
// @Router /api/v1/admin/audit-logs [get]
func (h *AdminHandler) GetAuditLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)

	var (
		logs []model.AuditLog
		err  error
	)

	switch {
	case c.Query("user_id") != "":
		logs, err = h.auditSvc.GetUserLogs(c.Query("user_id"), limit)
	case c.Query("ip") != "":
		logs, err = h.auditSvc.GetIPLogs(c.Query("ip"), limit)
	case c.Query("endpoint") != "":
		logs, err = h.auditSvc.GetEndpointLogs(c.Query("endpoint"), limit)
	default:
		logs, err = h.auditSvc.GetLogs(limit)
	}
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.AuditLogsResponse{Logs: logs, Count: len(logs)})
}

// @Summary Rate limit violations
// @Description Return recent deny events produced by the admission pipeline
// @Tags admin
// @Produce json
// @Security Bearer
// @Param limit query int false "Max entries" default(100)
// @Success 200 {object} shared.Response{data=dto.AuditLogsResponse}
// @Router /api/v1/admin/rate-limit-violations [get]
func (h *AdminHandler) GetRateLimitViolations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)

	logs, err := h.auditSvc.GetRateLimitViolations(limit)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.AuditLogsResponse{Logs: logs, Count: len(logs)})
}
