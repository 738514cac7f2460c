package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/platform/db"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	TenantID   string
	ActorID    uuid.UUID
	ActorEmail string
	Action     string
	Entity     string
	EntityID   string
	OldValues  map[string]any
	NewValues  map[string]any
	Reason     string
	IP         string
	At         time.Time
}

// NewAuditLog fills the actor fields of a log entry.
func NewAuditLog(actor Actor, action, entity string, entityID uuid.UUID) AuditLog {
	return AuditLog{
		TenantID:   actor.TenantID,
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID.String(),
		IP:         actor.IP,
	}
}

// AuditLogger writes records into audit_logs. Inside a transaction started by
// db.WithTx the entry joins that transaction.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.TenantID == "" || log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires tenant/action/entity/entity_id")
	}
	oldJSON, err := marshalValues(log.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(log.NewValues)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = db.Querier(ctx, l.pool).Exec(ctx, `INSERT INTO audit_logs
    (tenant_id, user_id, user_email, action, entity_type, entity_id, old_values, new_values, reason, ip_address, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), COALESCE($11, NOW()))`,
		log.TenantID, nullableUUID(log.ActorID), log.ActorEmail, log.Action, log.Entity, log.EntityID,
		oldJSON, newJSON, log.Reason, log.IP, at)
	return err
}

func marshalValues(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
