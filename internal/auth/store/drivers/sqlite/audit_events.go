package sqlite

import (
	"context"
	"encoding/json"

	"github.com/lodgebook/authcore/internal/auth/domain"
)

type auditEventsRepo struct {
	db dbtx
}

func (r *auditEventsRepo) Record(ctx context.Context, e domain.AuditEvent) error {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, category, email, user_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Category, e.Email, e.UserID, metadata, now())
	return err
}

func (r *auditEventsRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category, email, user_id, metadata, created_at
		 FROM audit_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			e        domain.AuditEvent
			metadata string
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Email, &e.UserID, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
