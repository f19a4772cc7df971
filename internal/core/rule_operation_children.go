package core

import (
	"context"
	"fmt"

	"pmpcore/pkg/domain"
)

// OperationChildrenRule enforces the type exclusivity of operation children:
// a visual operation holds labels, a parameter operation holds parameters,
// never both. Evaluated against the post-mutation snapshot for every
// operation touched in the transaction.
func OperationChildrenRule() domain.Rule {
	return operationChildrenRule{}
}

type operationChildrenRule struct{}

func (operationChildrenRule) Name() string { return "operation_children" }

func (operationChildrenRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[string]struct{})

	check := func(operationID string) {
		if operationID == "" {
			return
		}
		if _, done := checked[operationID]; done {
			return
		}
		checked[operationID] = struct{}{}
		op, ok := view.FindOperation(operationID)
		if !ok {
			return
		}
		labels := len(view.ListLabelsByOperation(op.ID))
		parameters := len(view.ListParametersByOperation(op.ID))
		switch op.Type {
		case domain.OperationVisual:
			if parameters > 0 {
				res.Violations = append(res.Violations, childViolation(op, "visual operation holds parameters"))
			}
		case domain.OperationParameter:
			if labels > 0 {
				res.Violations = append(res.Violations, childViolation(op, "parameter operation holds labels"))
			}
		default:
			res.Violations = append(res.Violations, childViolation(op, fmt.Sprintf("unknown operation type %s", op.Type)))
		}
	}

	for _, change := range changes {
		switch change.Entity {
		case domain.EntityOperation:
			if op, ok := change.After.(domain.Operation); ok {
				check(op.ID)
			}
		case domain.EntityLabel:
			if l, ok := change.After.(domain.Label); ok {
				check(l.OperationID)
			}
		case domain.EntityParameter:
			if p, ok := change.After.(domain.Parameter); ok {
				check(p.OperationID)
			}
		}
	}
	return res, nil
}

func childViolation(op domain.Operation, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "operation_children",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("operation %s: %s", op.ID, msg),
		Entity:   domain.EntityOperation,
		EntityID: op.ID,
	}
}
