package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents one recorded workflow action.
type AuditLog struct {
	ActorID  uuid.UUID
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditRecorder persists audit history.
type AuditRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditRecorder constructs AuditRecorder.
func NewAuditRecorder(pool *pgxpool.Pool, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{pool: pool, logger: logger}
}

// Record writes one audit entry.
func (r *AuditRecorder) Record(ctx context.Context, log AuditLog) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	if log.Action == "" || log.Entity == "" {
		return errors.New("audit action and entity required")
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, at)
VALUES ($1, $2, $3, $4, $5, $6)`, log.ActorID, log.Action, log.Entity, log.EntityID, meta, at)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("record audit", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// List returns audit entries for an entity, oldest first.
func (r *AuditRecorder) List(ctx context.Context, entity, entityID string) ([]AuditLog, error) {
	if r == nil {
		return nil, errors.New("audit recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT actor_id, action, entity, entity_id, meta, at
FROM audit_logs WHERE entity=$1 AND entity_id=$2 ORDER BY at ASC`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []AuditLog
	for rows.Next() {
		var (
			l    AuditLog
			meta []byte
		)
		if err := rows.Scan(&l.ActorID, &l.Action, &l.Entity, &l.EntityID, &meta, &l.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &l.Meta)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
