package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionImportCommit  AuditAction = "import_commit"
	ActionImportAborted AuditAction = "import_aborted"
)

// AuditEntry records one commit run.
type AuditEntry struct {
	ID          string             `json:"id"`
	Action      AuditAction        `json:"action"`
	SessionID   string             `json:"sessionId"`
	FileName    string             `json:"fileName"`
	IPAddress   string             `json:"ipAddress,omitempty"`
	UserAgent   string             `json:"userAgent,omitempty"`
	Success     bool               `json:"success"`
	Imported    int                `json:"imported"`
	Failed      int                `json:"failed"`
	Skipped     int                `json:"skipped"`
	Entities    map[EntityType]int `json:"entities"`
	CommitOrder []EntityType       `json:"commitOrder"`
	Reason      string             `json:"reason,omitempty"`
	DurationMs  int64              `json:"durationMs"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// AuditSink stores audit entries.
type AuditSink interface {
	RecordImport(ctx context.Context, entry AuditEntry) error
}

// newAuditEntry builds the audit entry for a finished commit. Request
// metadata comes from the context, see WithRequester.
func newAuditEntry(ctx context.Context, sess *Session, res *ImportResult, at time.Time) AuditEntry {
	req := RequesterFrom(ctx)
	action := ActionImportCommit
	if res.Aborted {
		action = ActionImportAborted
	}
	return AuditEntry{
		ID:          uuid.NewString(),
		Action:      action,
		SessionID:   sess.SessionID,
		FileName:    sess.FileName,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		Success:     res.Success,
		Imported:    res.SuccessfulImports,
		Failed:      res.FailedImports,
		Skipped:     res.SkippedImports,
		Entities:    res.ImportedEntities,
		CommitOrder: res.CommitOrder,
		Reason:      res.AbortReason,
		DurationMs:  res.DurationMs,
		CreatedAt:   at,
	}
}
