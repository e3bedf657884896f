package handlers

import (
	"context"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/model"
)

type AuthServiceInterface interface {
	Register(req dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(req dto.LoginRequest, clientIP string) (*dto.LoginResponse, error)
	GetUser(userID string) (*dto.UserInfo, error)
}

type AbuseServiceInterface interface {
	Block(ctx context.Context, entityValue, entityType, reason string, durationMinutes int, blockedBy string) (*model.BlockedEntity, error)
	Unblock(ctx context.Context, entityValue, entityType string) (bool, error)
	GetBlockInfo(entityValue, entityType string) (*dto.BlockInfo, error)
	ListBlocked(limit, offset int) (*dto.BlockedEntitiesResponse, error)
}

type AuditServiceInterface interface {
	GetUserLogs(userID string, limit int) ([]model.AuditLog, error)
	GetIPLogs(ip string, limit int) ([]model.AuditLog, error)
	GetEndpointLogs(endpoint string, limit int) ([]model.AuditLog, error)
	GetRateLimitViolations(limit int) ([]model.AuditLog, error)
	GetLogs(limit int) ([]model.AuditLog, error)
}
