package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// ActualCapLockKey serialises 100% cap checks for one resource-month.
func ActualCapLockKey(tenantID string, resourceID uuid.UUID, ym YearMonth) string {
	return fmt.Sprintf("planning:actual:%s:%s:%s", tenantID, resourceID, ym)
}

// ApprovalInstanceLockKey serialises step transitions on one instance.
func ApprovalInstanceLockKey(instanceID uuid.UUID) string {
	return fmt.Sprintf("approval:instance:%s", instanceID)
}

// ApprovalSubjectLockKey serialises lazy instance creation for one signed line.
func ApprovalSubjectLockKey(subjectID uuid.UUID) string {
	return fmt.Sprintf("approval:subject:%s", subjectID)
}

// NotificationRunLockKey guards a notification batch in redis.
func NotificationRunLockKey(tenantID, phase string, ym YearMonth) string {
	return fmt.Sprintf("notify:%s:%s:%s", tenantID, phase, ym)
}
