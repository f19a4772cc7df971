package core

import (
	"context"
	"fmt"

	"pmpcore/pkg/domain"
)

// ParameterBoundsRule blocks parameters whose min bound exceeds the max, and
// warns when the bounds collapse to a single admissible value.
func ParameterBoundsRule() domain.Rule {
	return parameterBoundsRule{}
}

type parameterBoundsRule struct{}

func (parameterBoundsRule) Name() string { return "parameter_bounds" }

func (parameterBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityParameter || change.Action == domain.ActionDelete {
			continue
		}
		p, ok := change.After.(domain.Parameter)
		if !ok {
			continue
		}
		switch {
		case p.Min > p.Max:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "parameter_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("parameter %s has min %g above max %g", p.ID, p.Min, p.Max),
				Entity:   domain.EntityParameter,
				EntityID: p.ID,
			})
		case p.Min == p.Max:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "parameter_bounds",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("parameter %s admits a single value %g", p.ID, p.Min),
				Entity:   domain.EntityParameter,
				EntityID: p.ID,
			})
		}
	}
	return res, nil
}
