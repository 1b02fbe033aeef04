package logging

import (
	"go.uber.org/zap"
)

// AuditEventType names one kind of override-state mutation.
type AuditEventType string

const (
	AuditRecordSaved    AuditEventType = "record_saved"
	AuditRecordRemoved  AuditEventType = "record_removed"
	AuditRecordCleared  AuditEventType = "record_cleared"
	AuditRecordMigrated AuditEventType = "record_migrated"
	AuditImportCommit   AuditEventType = "import_commit"
	AuditImportRollback AuditEventType = "import_rollback"
	AuditRequestBlocked AuditEventType = "request_blocked"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	Type    AuditEventType
	Key     string
	Success bool
	Detail  string
}

// Audit writes a structured audit entry to the audit category.
func Audit(e AuditEvent) {
	l := Get(CategoryAudit)
	if !level.Enabled(zap.InfoLevel) {
		return
	}
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.Bool("success", e.Success),
	}
	if e.Key != "" {
		fields = append(fields, zap.String("key", e.Key))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	l.Zap().Info("audit", fields...)
}
