package planning

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const componentSupply = "supply"

// ListSupply returns supply lines matching f.
func (s *Service) ListSupply(ctx context.Context, actor shared.Actor, f Filter) ([]SupplyLine, error) {
	return s.repo.ListSupply(ctx, actor.TenantID, f)
}

// GetSupply returns a single supply line.
func (s *Service) GetSupply(ctx context.Context, actor shared.Actor, id uuid.UUID) (SupplyLine, error) {
	return s.repo.GetSupply(ctx, actor.TenantID, id)
}

// CreateSupply validates and persists a supply line keyed on resource and optional project.
func (s *Service) CreateSupply(ctx context.Context, actor shared.Actor, in SupplyInput) (SupplyLine, error) {
	if err := actor.Require(shared.CapMutateSupply); err != nil {
		return SupplyLine{}, err
	}
	if err := in.Period.Validate(); err != nil {
		return SupplyLine{}, err
	}
	var line SupplyLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := requireOpen(ctx, tx, actor.TenantID, in.Period)
		if err != nil {
			return err
		}
		if err := FTEInRange(in.FTEPercent, false); err != nil {
			return err
		}
		if _, err := s.dir.Resource(ctx, actor.TenantID, in.ResourceID); err != nil {
			return err
		}
		if in.ProjectID != nil {
			if _, err := s.dir.Project(ctx, actor.TenantID, *in.ProjectID); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		line = SupplyLine{
			ID:         uuid.New(),
			TenantID:   actor.TenantID,
			PeriodID:   period.ID,
			ResourceID: in.ResourceID,
			ProjectID:  in.ProjectID,
			Year:       in.Period.Year,
			Month:      in.Period.Month,
			FTEPercent: in.FTEPercent,
			CreatedBy:  actor.UserID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		exists, err := tx.SupplyExists(ctx, line)
		if err != nil {
			return err
		}
		if exists {
			return shared.Conflict("a supply line already exists for this resource/project/month combination")
		}
		if err := tx.InsertSupply(ctx, line); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "create", "SupplyLine", line.ID)
		entry.NewValues = map[string]any{
			"resource_id": line.ResourceID.String(),
			"project_id":  optionalID(line.ProjectID),
			"year":        line.Year,
			"month":       line.Month,
			"fte_percent": line.FTEPercent,
		}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentSupply, err, true); err != nil {
		return SupplyLine{}, err
	}
	return line, nil
}

// UpdateSupply changes the FTE of a supply line.
func (s *Service) UpdateSupply(ctx context.Context, actor shared.Actor, id uuid.UUID, fte int) (SupplyLine, error) {
	if err := actor.Require(shared.CapMutateSupply); err != nil {
		return SupplyLine{}, err
	}
	var line SupplyLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadSupplyForUpdate(ctx, actor.TenantID, id)
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
		if err := tx.UpdateSupply(ctx, current); err != nil {
			return err
		}
		line = current
		entry := shared.NewAuditLog(actor, "update", "SupplyLine", line.ID)
		entry.OldValues = map[string]any{"fte_percent": old}
		entry.NewValues = map[string]any{"fte_percent": fte}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentSupply, err, true); err != nil {
		return SupplyLine{}, err
	}
	return line, nil
}

// DeleteSupply removes a supply line.
func (s *Service) DeleteSupply(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	if err := actor.Require(shared.CapMutateSupply); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadSupplyForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := requireOpen(ctx, tx, actor.TenantID, current.YearMonth()); err != nil {
			return err
		}
		if err := tx.DeleteSupply(ctx, actor.TenantID, id); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "delete", "SupplyLine", id)
		entry.OldValues = map[string]any{
			"resource_id": current.ResourceID.String(),
			"project_id":  optionalID(current.ProjectID),
			"year":        current.Year,
			"month":       current.Month,
			"fte_percent": current.FTEPercent,
		}
		return s.audit.Record(ctx, entry)
	})
	return s.finish(ctx, actor.TenantID, componentSupply, err, true)
}
