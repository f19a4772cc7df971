package core

import (
	"context"
	"fmt"

	"pmpcore/pkg/domain"
)

// ArchivedVersionRule blocks mutations under a tombstoned procedure version.
// Tombstoning itself is permitted; everything after it is frozen history.
func ArchivedVersionRule() domain.Rule {
	return archivedVersionRule{}
}

type archivedVersionRule struct{}

func (archivedVersionRule) Name() string { return "archived_version" }

func (archivedVersionRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityProcedure:
			if change.Action != domain.ActionUpdate {
				continue
			}
			before, ok := change.Before.(domain.Procedure)
			if !ok || !before.Deleted() {
				continue
			}
			res.Violations = append(res.Violations, archivedViolation(domain.EntityProcedure, before.ID,
				fmt.Sprintf("procedure version %s is archived and immutable", before.ID)))
		case domain.EntityOperation:
			if op, ok := change.After.(domain.Operation); ok {
				res.Violations = appendIfArchived(res.Violations, view, op.ProcedureID, domain.EntityOperation, op.ID)
			}
		case domain.EntityLabel:
			if l, ok := change.After.(domain.Label); ok {
				res.Violations = appendIfArchivedOperation(res.Violations, view, l.OperationID, domain.EntityLabel, l.ID)
			}
		case domain.EntityParameter:
			if p, ok := change.After.(domain.Parameter); ok {
				res.Violations = appendIfArchivedOperation(res.Violations, view, p.OperationID, domain.EntityParameter, p.ID)
			}
		}
	}
	return res, nil
}

func appendIfArchived(violations []domain.Violation, view domain.RuleView, procedureID string, entity domain.EntityType, id string) []domain.Violation {
	proc, ok := view.FindProcedure(procedureID)
	if !ok || !proc.Deleted() {
		return violations
	}
	return append(violations, archivedViolation(entity, id,
		fmt.Sprintf("%s %s belongs to archived procedure version %s", entity, id, proc.ID)))
}

func appendIfArchivedOperation(violations []domain.Violation, view domain.RuleView, operationID string, entity domain.EntityType, id string) []domain.Violation {
	op, ok := view.FindOperation(operationID)
	if !ok {
		return violations
	}
	return appendIfArchived(violations, view, op.ProcedureID, entity, id)
}

func archivedViolation(entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "archived_version",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
