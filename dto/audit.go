package dto

// AuditEvent is what the admission pipeline hands to the audit sink.
// Recording is fire-and-forget; a failed write never affects the decision.
type AuditEvent struct {
	UserID     string                 `json:"user_id,omitempty"`
	IP         string                 `json:"ip"`
	Endpoint   string                 `json:"endpoint"`
	Method     string                 `json:"method"`
	StatusCode int                    `json:"status_code"`
	Reason     string                 `json:"reason,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
