package port

import "context"

// AuditEntry represents a single re-execution of a verified statement.
type AuditEntry struct {
	Operation    string
	Statement    string
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor records re-execution events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
