package service

// Shared structured log field names, so log aggregation sees one spelling
// per concept across packages.
const (
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldProvider   = "provider"
	LogFieldEventKind  = "event_kind"
	LogFieldMessageID  = "message_id"
	LogFieldFrom       = "from"
	LogFieldStatus     = "status"
	LogFieldMediaType  = "media_type"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldStatusCode = "status_code"
	LogFieldDurationMs = "duration_ms"
)
