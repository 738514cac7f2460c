package planning

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const componentActuals = "actuals"

// ListActuals returns actual lines matching f.
func (s *Service) ListActuals(ctx context.Context, actor shared.Actor, f Filter) ([]ActualLine, error) {
	if err := actor.Require(shared.CapListActuals); err != nil {
		return nil, err
	}
	return s.repo.ListActuals(ctx, actor.TenantID, f)
}

// MyActuals returns the caller's own actual lines.
func (s *Service) MyActuals(ctx context.Context, actor shared.Actor, f Filter) ([]ActualLine, error) {
	res, err := s.dir.ResourceForUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return []ActualLine{}, nil
		}
		return nil, err
	}
	f.ResourceID = &res.ID
	return s.repo.ListActuals(ctx, actor.TenantID, f)
}

// GetActual returns a single actual line.
func (s *Service) GetActual(ctx context.Context, actor shared.Actor, id uuid.UUID) (ActualLine, error) {
	return s.repo.GetActual(ctx, actor.TenantID, id)
}

// ResourceMonthlyTotal sums a resource's actuals for ym and reports the remaining capacity.
func (s *Service) ResourceMonthlyTotal(ctx context.Context, actor shared.Actor, resourceID uuid.UUID, ym shared.YearMonth) (MonthlyTotal, error) {
	if err := ym.Validate(); err != nil {
		return MonthlyTotal{}, err
	}
	lines, err := s.repo.ListActuals(ctx, actor.TenantID, Filter{ResourceID: &resourceID, Year: &ym.Year, Month: &ym.Month})
	if err != nil {
		return MonthlyTotal{}, err
	}
	total := 0
	for _, l := range lines {
		total += l.ActualFTEPercent
	}
	return MonthlyTotal{
		ResourceID:       resourceID,
		Year:             ym.Year,
		Month:            ym.Month,
		TotalPercent:     total,
		RemainingPercent: MaxMonthlyActualPercent - total,
	}, nil
}

// checkOwnership restricts employees to their own resource.
func (s *Service) checkOwnership(ctx context.Context, actor shared.Actor, resourceID uuid.UUID) error {
	switch actor.Role {
	case shared.RoleEmployee:
		res, err := s.dir.Resource(ctx, actor.TenantID, resourceID)
		if err != nil {
			return err
		}
		if res.UserID == nil || *res.UserID != actor.UserID {
			return shared.Unauthorized("employees may only manage their own actuals")
		}
		return nil
	case shared.RoleAdmin, shared.RoleFinance, shared.RolePM, shared.RoleRO, shared.RoleDirector:
		return nil
	default:
		return shared.Unauthorized("unknown role")
	}
}

// CreateActual validates and persists an actual line, holding the resource-month lock
// while the 100% cap is evaluated.
func (s *Service) CreateActual(ctx context.Context, actor shared.Actor, in ActualInput) (ActualLine, error) {
	if err := actor.Require(shared.CapMutateActuals); err != nil {
		return ActualLine{}, err
	}
	if err := in.Period.Validate(); err != nil {
		return ActualLine{}, err
	}
	var line ActualLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := requireOpen(ctx, tx, actor.TenantID, in.Period)
		if err != nil {
			return err
		}
		if err := FTEInRange(in.FTEPercent, true); err != nil {
			return err
		}
		if _, err := s.dir.Resource(ctx, actor.TenantID, in.ResourceID); err != nil {
			return err
		}
		if err := s.checkOwnership(ctx, actor, in.ResourceID); err != nil {
			return err
		}
		if _, err := s.dir.Project(ctx, actor.TenantID, in.ProjectID); err != nil {
			return err
		}
		if err := tx.AdvisoryLock(ctx, shared.ActualCapLockKey(actor.TenantID, in.ResourceID, in.Period)); err != nil {
			return err
		}
		now := s.now().UTC()
		line = ActualLine{
			ID:                uuid.New(),
			TenantID:          actor.TenantID,
			PeriodID:          period.ID,
			ResourceID:        in.ResourceID,
			ProjectID:         in.ProjectID,
			Year:              in.Period.Year,
			Month:             in.Period.Month,
			PlannedFTEPercent: in.PlannedFTEPercent,
			ActualFTEPercent:  in.FTEPercent,
			CreatedBy:         actor.UserID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		exists, err := tx.ActualExists(ctx, line)
		if err != nil {
			return err
		}
		if exists {
			return shared.Conflict("an actual line already exists for this resource/project/month combination")
		}
		existing, err := tx.ActualsForResourceMonth(ctx, actor.TenantID, in.ResourceID, in.Period)
		if err != nil {
			return err
		}
		if err := CheckActualsCap(in.ResourceID, in.Period, existing, uuid.Nil, in.FTEPercent); err != nil {
			return err
		}
		if err := tx.InsertActual(ctx, line); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "create", "ActualLine", line.ID)
		entry.NewValues = map[string]any{
			"resource_id":         line.ResourceID.String(),
			"project_id":          line.ProjectID.String(),
			"year":                line.Year,
			"month":               line.Month,
			"actual_fte_percent":  line.ActualFTEPercent,
			"planned_fte_percent": line.PlannedFTEPercent,
		}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentActuals, err, true); err != nil {
		return ActualLine{}, err
	}
	return line, nil
}

// UpdateActual changes the FTE of an unsigned actual line, re-running the cap check
// without the line itself.
func (s *Service) UpdateActual(ctx context.Context, actor shared.Actor, id uuid.UUID, fte int) (ActualLine, error) {
	if err := actor.Require(shared.CapMutateActuals); err != nil {
		return ActualLine{}, err
	}
	var line ActualLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadActualForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if current.Signed() {
			return shared.Validation("cannot edit signed actuals")
		}
		if err := s.checkOwnership(ctx, actor, current.ResourceID); err != nil {
			return err
		}
		ym := current.YearMonth()
		if _, err := requireOpen(ctx, tx, actor.TenantID, ym); err != nil {
			return err
		}
		if err := FTEInRange(fte, true); err != nil {
			return err
		}
		if err := tx.AdvisoryLock(ctx, shared.ActualCapLockKey(actor.TenantID, current.ResourceID, ym)); err != nil {
			return err
		}
		existing, err := tx.ActualsForResourceMonth(ctx, actor.TenantID, current.ResourceID, ym)
		if err != nil {
			return err
		}
		if err := CheckActualsCap(current.ResourceID, ym, existing, current.ID, fte); err != nil {
			return err
		}
		old := current.ActualFTEPercent
		current.ActualFTEPercent = fte
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateActual(ctx, current); err != nil {
			return err
		}
		line = current
		entry := shared.NewAuditLog(actor, "update", "ActualLine", line.ID)
		entry.OldValues = map[string]any{"actual_fte_percent": old}
		entry.NewValues = map[string]any{"actual_fte_percent": fte}
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentActuals, err, true); err != nil {
		return ActualLine{}, err
	}
	return line, nil
}

// DeleteActual removes an unsigned actual line.
func (s *Service) DeleteActual(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	if err := actor.Require(shared.CapMutateActuals); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadActualForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if current.Signed() {
			return shared.Validation("cannot delete signed actuals")
		}
		if err := s.checkOwnership(ctx, actor, current.ResourceID); err != nil {
			return err
		}
		if _, err := requireOpen(ctx, tx, actor.TenantID, current.YearMonth()); err != nil {
			return err
		}
		if err := tx.DeleteActual(ctx, actor.TenantID, id); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "delete", "ActualLine", id)
		entry.OldValues = map[string]any{
			"resource_id":        current.ResourceID.String(),
			"project_id":         current.ProjectID.String(),
			"year":               current.Year,
			"month":              current.Month,
			"actual_fte_percent": current.ActualFTEPercent,
		}
		return s.audit.Record(ctx, entry)
	})
	return s.finish(ctx, actor.TenantID, componentActuals, err, true)
}

// Sign marks an actual line signed by the employee and starts its approval.
func (s *Service) Sign(ctx context.Context, actor shared.Actor, id uuid.UUID) (ActualLine, error) {
	if err := actor.Require(shared.CapSignActuals); err != nil {
		return ActualLine{}, err
	}
	return s.sign(ctx, actor, id, "")
}

// ProxySign signs on behalf of an absent employee. A reason is mandatory.
func (s *Service) ProxySign(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) (ActualLine, error) {
	if err := actor.Require(shared.CapProxySignActuals); err != nil {
		return ActualLine{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ActualLine{}, shared.Validation("reason is required for proxy signing")
	}
	return s.sign(ctx, actor, id, reason)
}

func (s *Service) sign(ctx context.Context, actor shared.Actor, id uuid.UUID, proxyReason string) (ActualLine, error) {
	proxy := proxyReason != ""
	var line ActualLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadActualForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if current.Signed() {
			return shared.Validation("actuals already signed")
		}
		if !proxy {
			if err := s.checkOwnership(ctx, actor, current.ResourceID); err != nil {
				return err
			}
		}
		if _, err := requireOpen(ctx, tx, actor.TenantID, current.YearMonth()); err != nil {
			return err
		}
		now := s.now().UTC()
		signer := actor.UserID
		current.SignedAt = &now
		current.SignedBy = &signer
		current.ProxySigned = proxy
		current.ProxySignReason = proxyReason
		current.UpdatedAt = now
		if err := tx.UpdateActual(ctx, current); err != nil {
			return err
		}
		if err := s.approvals.EnsureForActual(ctx, actor, current.ID, current.ResourceID); err != nil {
			return err
		}
		line = current
		action := "sign"
		if proxy {
			action = "proxy_sign"
		}
		entry := shared.NewAuditLog(actor, action, "ActualLine", line.ID)
		entry.NewValues = map[string]any{"signed_at": now.Format(time.RFC3339), "is_proxy": proxy}
		entry.Reason = proxyReason
		return s.audit.Record(ctx, entry)
	})
	if err := s.finish(ctx, actor.TenantID, componentActuals, err, false); err != nil {
		return ActualLine{}, err
	}
	return line, nil
}
