package services

import (
	"context"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/model"
	"github.com/gatewatch/gate_api/shared"
)

// BlockStore is the authoritative record store the state machine writes to.
type BlockStore interface {
	FindActiveBlock(entityType, entityValue string) (*model.BlockedEntity, error)
	UpsertBlock(record *model.BlockedEntity) error
	DeleteBlock(entityType, entityValue string) (bool, error)
	DeleteExpiredBlocks(now time.Time) (int64, error)
	ListActiveBlocks(limit, offset int) ([]model.BlockedEntity, int64, error)
}

// BlockCache is the accelerator over the store. Its TTL is always bounded by
// the true remaining block duration, so a stale flag can expire early but can
// never outlive the block it mirrors.
type BlockCache interface {
	GetBlockFlag(ctx context.Context, key string) (bool, error)
	SetBlockFlag(ctx context.Context, key string, ttl time.Duration) error
	DeleteBlockFlag(ctx context.Context, key string) error
}

// AbuseService owns block/unblock transitions per entity: CLEAR to
// BLOCKED(temporary) via escalation or admin action, CLEAR to
// BLOCKED(permanent) via admin action only, back to CLEAR on expiry or
// explicit unblock.
type AbuseService struct {
	appContext.DefaultService

	cfgSvc *ConfigService
	store  BlockStore
	cache  BlockCache

	now    func() time.Time
	closed chan struct{}
}

const ABUSE_SVC = "abuse_svc"

// Permanent blocks are cached with a bounded refresh TTL and re-checked
// against the store, never cached as infinite.
const permanentBlockCacheTTL = 24 * time.Hour

func (svc AbuseService) Id() string {
	return ABUSE_SVC
}

func (svc *AbuseService) Configure(ctx *appContext.Context) error {
	if svc.now == nil {
		svc.now = time.Now
	}
	svc.closed = make(chan struct{}, 1)
	return svc.DefaultService.Configure(ctx)
}

func (svc *AbuseService) Start() error {
	svc.cfgSvc = svc.Service(CONFIG_SVC).(*ConfigService)
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.cache = svc.Service(REDIS_SVC).(*RedisService)

	go svc.startCleanupJob()

	return nil
}

func (svc *AbuseService) Shutdown() {
	svc.closed <- struct{}{}
}

// ==================== BLOCK STATE ====================

// IsBlocked consults the accelerator first and falls through to the durable
// store on a miss, re-populating the cache with the remaining block duration.
// Infrastructure failures fail open: block state is defense in depth, not the
// primary admission gate.
func (svc *AbuseService) IsBlocked(ctx context.Context, entityValue, entityType string) bool {
	key := blockKey(entityType, entityValue)

	cached, err := svc.cache.GetBlockFlag(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Block cache unavailable")
		recordStoreFailure("redis")
	} else if cached {
		return true
	}

	record, err := svc.store.FindActiveBlock(entityType, entityValue)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type":  entityType,
			"entity_value": entityValue,
		}).Warn("Block store unavailable, treating entity as not blocked")
		recordStoreFailure("postgres")
		return false
	}
	if record == nil {
		return false
	}

	ttl := permanentBlockCacheTTL
	if record.UnblockAt != nil {
		ttl = record.UnblockAt.Sub(svc.now())
	}
	if ttl > 0 {
		if err := svc.cache.SetBlockFlag(ctx, key, ttl); err != nil {
			log.WithError(err).WithField("key", key).Warn("Failed to populate block cache")
		}
	}

	return true
}

// Block upserts the single active record for an identity; a repeat call
// replaces the previous block outright. durationMinutes of zero makes the
// block permanent, which only the admin surface does.
func (svc *AbuseService) Block(ctx context.Context, entityValue, entityType, reason string, durationMinutes int, blockedBy string) (*model.BlockedEntity, error) {
	if err := validateEntityType(entityType); err != nil {
		return nil, err
	}

	now := svc.now()
	record := &model.BlockedEntity{
		ID:          uuid.NewString(),
		EntityType:  entityType,
		EntityValue: entityValue,
		Reason:      reason,
		BlockedBy:   blockedBy,
		BlockedAt:   now,
		IsPermanent: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	cacheTTL := permanentBlockCacheTTL
	if durationMinutes > 0 {
		unblockAt := now.Add(time.Duration(durationMinutes) * time.Minute)
		record.UnblockAt = &unblockAt
		record.IsPermanent = false
		cacheTTL = time.Duration(durationMinutes) * time.Minute
	}

	if err := svc.store.UpsertBlock(record); err != nil {
		return nil, fmt.Errorf("failed to persist block record: %w", err)
	}

	if err := svc.cache.SetBlockFlag(ctx, blockKey(entityType, entityValue), cacheTTL); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type":  entityType,
			"entity_value": entityValue,
		}).Warn("Failed to refresh block cache")
	}

	recordEntityBlocked(entityType, record.IsPermanent)
	log.WithFields(log.Fields{
		"entity_type":      entityType,
		"entity_value":     entityValue,
		"reason":           reason,
		"duration_minutes": durationMinutes,
		"permanent":        record.IsPermanent,
	}).Info("Entity blocked")

	return record, nil
}

// Unblock removes the record and the accelerator entry, reporting whether a
// record existed. Calling it on an already-clear entity is a no-op.
func (svc *AbuseService) Unblock(ctx context.Context, entityValue, entityType string) (bool, error) {
	if err := validateEntityType(entityType); err != nil {
		return false, err
	}

	removed, err := svc.store.DeleteBlock(entityType, entityValue)
	if err != nil {
		return false, fmt.Errorf("failed to delete block record: %w", err)
	}

	if err := svc.cache.DeleteBlockFlag(ctx, blockKey(entityType, entityValue)); err != nil {
		log.WithError(err).Warn("Failed to evict block cache entry")
	}

	return removed, nil
}

// GetBlockInfo reads the store, not the cache, so callers needing exact
// unblock times never see stale metadata.
func (svc *AbuseService) GetBlockInfo(entityValue, entityType string) (*dto.BlockInfo, error) {
	record, err := svc.store.FindActiveBlock(entityType, entityValue)
	if err != nil {
		return nil, fmt.Errorf("failed to read block record: %w", err)
	}
	if record == nil {
		return &dto.BlockInfo{IsBlocked: false}, nil
	}

	info := &dto.BlockInfo{
		IsBlocked:   true,
		BlockedAt:   record.BlockedAt.UnixMilli(),
		Reason:      record.Reason,
		IsPermanent: record.IsPermanent,
	}
	if record.UnblockAt != nil {
		info.UnblockAt = record.UnblockAt.UnixMilli()
	}
	return info, nil
}

// ==================== ESCALATION ====================

// HandleViolation applies the progressive blocking rule: at the threshold the
// entity is blocked for the base duration, at twice the threshold for the
// progressive duration. Escalation always sets a duration; it never creates
// permanent blocks.
func (svc *AbuseService) HandleViolation(ctx context.Context, entityValue, entityType, reason string, violationCount int, blockedBy string) (*dto.ViolationResult, error) {
	threshold := svc.cfgSvc.Abuse.Threshold

	if violationCount < threshold {
		return &dto.ViolationResult{Blocked: false, Violations: violationCount}, nil
	}

	duration := svc.cfgSvc.BlockDurationMinutes()
	if violationCount >= threshold*2 {
		duration = svc.cfgSvc.ProgressiveBlockDurationMinutes()
	}

	if _, err := svc.Block(ctx, entityValue, entityType, reason, duration, blockedBy); err != nil {
		return nil, err
	}

	return &dto.ViolationResult{
		Blocked:         true,
		DurationMinutes: duration,
		Violations:      violationCount,
	}, nil
}

// ==================== MAINTENANCE ====================

// ClearExpiredBlocks removes temporary records past their unblock time. The
// sweep is safe alongside reads; an expired record is already ineligible.
func (svc *AbuseService) ClearExpiredBlocks() (int64, error) {
	count, err := svc.store.DeleteExpiredBlocks(svc.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		recordBlocksSwept(count)
		log.WithField("count", count).Info("Expired block records cleared")
	}
	return count, nil
}

func (svc *AbuseService) ListBlocked(limit, offset int) (*dto.BlockedEntitiesResponse, error) {
	records, total, err := svc.store.ListActiveBlocks(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked entities: %w", err)
	}

	return &dto.BlockedEntitiesResponse{
		Entities: records,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func (svc *AbuseService) startCleanupJob() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := svc.ClearExpiredBlocks(); err != nil {
				log.WithError(err).Error("Expired block cleanup failed")
			}
		case <-svc.closed:
			return
		}
	}
}

// ==================== HELPERS ====================

func blockKey(entityType, entityValue string) string {
	return fmt.Sprintf("blocked:%s:%s", entityType, entityValue)
}

func validateEntityType(entityType string) error {
	switch entityType {
	case shared.EntityTypeUser, shared.EntityTypeIP:
		return nil
	default:
		return shared.NewValidationError(fmt.Sprintf("invalid entity type: %s", entityType))
	}
}
