package services

import (
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/model"
	"github.com/gatewatch/gate_api/shared"
)

// AuditService persists admission events for the admin surface. Record is
// fire-and-forget: writes happen off the request path and failures are only
// logged.
type AuditService struct {
	appContext.DefaultService

	sqlSvc *PostgresService
}

const AUDIT_SVC = "audit_svc"

const maxAuditQueryLimit = 500

func (svc AuditService) Id() string {
	return AUDIT_SVC
}

func (svc *AuditService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// Record writes an audit entry asynchronously.
func (svc *AuditService) Record(event dto.AuditEvent) {
	go func() {
		entry := &model.AuditLog{
			ID:         uuid.NewString(),
			UserID:     event.UserID,
			IP:         event.IP,
			Endpoint:   event.Endpoint,
			Method:     event.Method,
			StatusCode: event.StatusCode,
			Reason:     event.Reason,
			CreatedAt:  time.Now(),
		}

		if len(event.Metadata) > 0 {
			if raw, err := sonic.Marshal(event.Metadata); err == nil {
				entry.Metadata = string(raw)
			}
		}

		if err := svc.sqlSvc.Db().Create(entry).Error; err != nil {
			log.WithError(err).WithFields(log.Fields{
				"ip":       event.IP,
				"endpoint": event.Endpoint,
				"reason":   event.Reason,
			}).Error("Failed to write audit log")
		}
	}()
}

// ==================== QUERY SURFACE ====================

func (svc *AuditService) GetUserLogs(userID string, limit int) ([]model.AuditLog, error) {
	return svc.queryLogs(limit, "user_id = ?", userID)
}

func (svc *AuditService) GetIPLogs(ip string, limit int) ([]model.AuditLog, error) {
	return svc.queryLogs(limit, "ip = ?", ip)
}

func (svc *AuditService) GetEndpointLogs(endpoint string, limit int) ([]model.AuditLog, error) {
	return svc.queryLogs(limit, "endpoint = ?", endpoint)
}

// GetRateLimitViolations returns deny events produced by the admission
// pipeline, newest first.
func (svc *AuditService) GetRateLimitViolations(limit int) ([]model.AuditLog, error) {
	return svc.queryLogs(limit, "reason IN ?", []string{
		shared.ReasonIPRateLimit,
		shared.ReasonUserRateLimit,
		shared.ReasonEndpointRateLimit,
		shared.ReasonEntityBlocked,
	})
}

func (svc *AuditService) GetLogs(limit int) ([]model.AuditLog, error) {
	return svc.queryLogs(limit, "")
}

func (svc *AuditService) queryLogs(limit int, condition string, args ...interface{}) ([]model.AuditLog, error) {
	if limit <= 0 || limit > maxAuditQueryLimit {
		limit = maxAuditQueryLimit
	}

	query := svc.sqlSvc.Db().Model(&model.AuditLog{})
	if condition != "" {
		query = query.Where(condition, args...)
	}

	var logs []model.AuditLog
	err := query.Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return logs, nil
}
