package planning

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const componentOOP = "oop"

// ListOOP returns out-of-pool lines matching f.
func (s *Service) ListOOP(ctx context.Context, actor shared.Actor, f Filter) ([]OOPLine, error) {
	if err := actor.Require(shared.CapMutateOOP); err != nil {
		return nil, err
	}
	return s.repo.ListOOP(ctx, actor.TenantID, f)
}

// CreateOOP persists an out-of-pool cost line. The period must be open.
func (s *Service) CreateOOP(ctx context.Context, actor shared.Actor, in OOPInput) (OOPLine, error) {
	if err := actor.Require(shared.CapMutateOOP); err != nil {
		return OOPLine{}, err
	}
	if err := in.Period.Validate(); err != nil {
		return OOPLine{}, err
	}
	rate, total, err := OOPCost(in.Hours, in.HourlyRate)
	if err != nil {
		return OOPLine{}, err
	}
	var line OOPLine
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := requireOpen(ctx, tx, actor.TenantID, in.Period)
		if err != nil {
			return err
		}
		if _, err := s.dir.Resource(ctx, actor.TenantID, in.ResourceID); err != nil {
			return err
		}
		if _, err := s.dir.Project(ctx, actor.TenantID, in.ProjectID); err != nil {
			return err
		}
		now := s.now().UTC()
		line = OOPLine{
			ID:          uuid.New(),
			TenantID:    actor.TenantID,
			PeriodID:    period.ID,
			ResourceID:  in.ResourceID,
			ProjectID:   in.ProjectID,
			Year:        in.Period.Year,
			Month:       in.Period.Month,
			Hours:       in.Hours,
			HourlyRate:  rate,
			TotalCost:   total,
			Description: strings.TrimSpace(in.Description),
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertOOP(ctx, line); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "create", "OopLine", line.ID)
		entry.NewValues = map[string]any{
			"resource_id": line.ResourceID.String(),
			"project_id":  line.ProjectID.String(),
			"year":        line.Year,
			"month":       line.Month,
			"hours":       line.Hours,
			"hourly_rate": line.HourlyRate,
			"total_cost":  line.TotalCost,
		}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentOOP, err, true); err != nil {
		return OOPLine{}, err
	}
	return line, nil
}
