package dto

import "github.com/gatewatch/gate_api/model"

// ==================== ADMIN REQUEST DTOs ====================

type BlockEntityRequest struct {
	EntityType      string `json:"entity_type" validate:"required,oneof=user ip" example:"ip"`
	EntityValue     string `json:"entity_value" validate:"required" example:"203.0.113.7"`
	Reason          string `json:"reason" validate:"required" example:"Manual block: scraping"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0" example:"60"`
}

func (r BlockEntityRequest) Validate() error {
	return GetValidator().Struct(r)
}

type UnblockEntityRequest struct {
	EntityType  string `json:"entity_type" validate:"required,oneof=user ip" example:"ip"`
	EntityValue string `json:"entity_value" validate:"required" example:"203.0.113.7"`
}

func (r UnblockEntityRequest) Validate() error {
	return GetValidator().Struct(r)
}

// ==================== ADMIN RESPONSE DTOs ====================

type BlockedEntitiesResponse struct {
	Entities []model.BlockedEntity `json:"entities"`
	Total    int64                 `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

type AuditLogsResponse struct {
	Logs  []model.AuditLog `json:"logs"`
	Count int              `json:"count"`
}

type UnblockEntityResponse struct {
	Removed bool `json:"removed"`
}
