package repository

import (
	"context"
	"encoding/json"

	"github.com/kriptapay/payout-engine/internal/model"
)

// LogAudit persists a critical-unknown-severity event for operator review,
// shaped after an admin_logs table: one row per event, JSON details blob.
func (r *Repository) LogAudit(ctx context.Context, orderID *string, severity, message string, details interface{}) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (order_id, severity, message, details)
		VALUES ($1, $2, $3, $4)`, orderID, severity, message, detailsJSON)
	return err
}

func (r *Repository) ListAuditLog(ctx context.Context, limit int) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.SelectContext(ctx, &logs, `
		SELECT * FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	return logs, err
}
