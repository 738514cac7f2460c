package planning

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const componentDemand = "demand"

// ListDemand returns demand lines matching f.
func (s *Service) ListDemand(ctx context.Context, actor shared.Actor, f Filter) ([]DemandLine, error) {
	return s.repo.ListDemand(ctx, actor.TenantID, f)
}

// GetDemand returns a single demand line.
func (s *Service) GetDemand(ctx context.Context, actor shared.Actor, id uuid.UUID) (DemandLine, error) {
	return s.repo.GetDemand(ctx, actor.TenantID, id)
}

// CreateDemand validates and persists a demand line. Checks run in order: open period,
// resource/placeholder exclusivity, forward-commitment window, FTE range, references, uniqueness.
func (s *Service) CreateDemand(ctx context.Context, actor shared.Actor, in DemandInput) (DemandLine, error) {
	if err := actor.Require(shared.CapMutateDemand); err != nil {
		return DemandLine{}, err
	}
	if err := in.Period.Validate(); err != nil {
		return DemandLine{}, err
	}
	var line DemandLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := requireOpen(ctx, tx, actor.TenantID, in.Period)
		if err != nil {
			return err
		}
		if err := CheckDemandTarget(in.ResourceID, in.PlaceholderID); err != nil {
			return err
		}
		if in.PlaceholderID != nil {
			if err := CheckForwardCommitment(in.Period, s.now(), s.cfg.ForwardCommitmentMonths); err != nil {
				return err
			}
		}
		if err := FTEInRange(in.FTEPercent, false); err != nil {
			return err
		}
		if _, err := s.dir.Project(ctx, actor.TenantID, in.ProjectID); err != nil {
			return err
		}
		if in.ResourceID != nil {
			if _, err := s.dir.Resource(ctx, actor.TenantID, *in.ResourceID); err != nil {
				return err
			}
		}
		if in.PlaceholderID != nil {
			if _, err := s.dir.Placeholder(ctx, actor.TenantID, *in.PlaceholderID); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		line = DemandLine{
			ID:            uuid.New(),
			TenantID:      actor.TenantID,
			PeriodID:      period.ID,
			ProjectID:     in.ProjectID,
			ResourceID:    in.ResourceID,
			PlaceholderID: in.PlaceholderID,
			Year:          in.Period.Year,
			Month:         in.Period.Month,
			FTEPercent:    in.FTEPercent,
			CreatedBy:     actor.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		exists, err := tx.DemandExists(ctx, line)
		if err != nil {
			return err
		}
		if exists {
			return shared.Conflict("a demand line already exists for this project/resource/month combination")
		}
		if err := tx.InsertDemand(ctx, line); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "create", "DemandLine", line.ID)
		entry.NewValues = map[string]any{
			"project_id":     line.ProjectID.String(),
			"resource_id":    optionalID(line.ResourceID),
			"placeholder_id": optionalID(line.PlaceholderID),
			"year":           line.Year,
			"month":          line.Month,
			"fte_percent":    line.FTEPercent,
		}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentDemand, err, true); err != nil {
		return DemandLine{}, err
	}
	return line, nil
}

// UpdateDemand changes the FTE of a demand line.
func (s *Service) UpdateDemand(ctx context.Context, actor shared.Actor, id uuid.UUID, fte int) (DemandLine, error) {
	if err := actor.Require(shared.CapMutateDemand); err != nil {
		return DemandLine{}, err
	}
	var line DemandLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadDemandForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := requireOpen(ctx, tx, actor.TenantID, current.YearMonth()); err != nil {
			return err
		}
		if err := FTEInRange(fte, false); err != nil {
			return err
		}
		old := current.FTEPercent
		current.FTEPercent = fte
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateDemand(ctx, current); err != nil {
			return err
		}
		line = current
		entry := shared.NewAuditLog(actor, "update", "DemandLine", line.ID)
		entry.OldValues = map[string]any{"fte_percent": old}
		entry.NewValues = map[string]any{"fte_percent": fte}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentDemand, err, true); err != nil {
		return DemandLine{}, err
	}
	return line, nil
}

// DeleteDemand removes a demand line.
func (s *Service) DeleteDemand(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	if err := actor.Require(shared.CapMutateDemand); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadDemandForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := requireOpen(ctx, tx, actor.TenantID, current.YearMonth()); err != nil {
			return err
		}
		if err := tx.DeleteDemand(ctx, actor.TenantID, id); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "delete", "DemandLine", id)
		entry.OldValues = map[string]any{
			"project_id":     current.ProjectID.String(),
			"resource_id":    optionalID(current.ResourceID),
			"placeholder_id": optionalID(current.PlaceholderID),
			"year":           current.Year,
			"month":          current.Month,
			"fte_percent":    current.FTEPercent,
		}
		return s.audit.Record(ctx, entry)
	})
	return s.finish(ctx, actor.TenantID, componentDemand, err, true)
}
