package shared

const (
	UserID   = "user_id"
	UserRole = "user_role"
	TenantID = "tenant_id"

	RoleAdmin = "admin"
	RoleUser  = "user"

	EntityTypeUser = "user"
	EntityTypeIP   = "ip"

	ReasonIPBlacklisted     = "IP_BLACKLISTED"
	ReasonEntityBlocked     = "ENTITY_BLOCKED"
	ReasonIPRateLimit       = "IP_RATE_LIMIT_EXCEEDED"
	ReasonUserRateLimit     = "USER_RATE_LIMIT_EXCEEDED"
	ReasonEndpointRateLimit = "ENDPOINT_RATE_LIMIT_EXCEEDED"
)
