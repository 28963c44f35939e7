package port

import "context"

// AuditEntry represents a single auditable analysis event.
type AuditEntry struct {
	Tool       string
	Dialect    string
	SQL        string
	DurationMS int64
	Err        error
}

// AnalysisAuditor records analysis audit events.
type AnalysisAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
