package dto

// RateLimitResult is the outcome of a single sliding-window check.
// ResetTime is epoch milliseconds: for a denied request it is the oldest
// retained entry plus the window, so callers can derive an exact retry-after.
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
	Current   int   `json:"current"`
}

// BlockInfo is a store-backed projection of the current block record.
type BlockInfo struct {
	IsBlocked   bool   `json:"is_blocked"`
	BlockedAt   int64  `json:"blocked_at,omitempty"`
	UnblockAt   int64  `json:"unblock_at,omitempty"`
	Reason      string `json:"reason,omitempty"`
	IsPermanent bool   `json:"is_permanent,omitempty"`
}

// ViolationResult reports whether a violation tripped the abuse threshold.
type ViolationResult struct {
	Blocked         bool `json:"blocked"`
	DurationMinutes int  `json:"duration_minutes,omitempty"`
	Violations      int  `json:"violations"`
}

type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retry_after"`
}
