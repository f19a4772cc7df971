package core

import (
	"context"
	"fmt"

	"pmpcore/pkg/domain"
)

// EventTransitionRule blocks illegal event status transitions: unknown
// statuses and any regression to planned.
func EventTransitionRule() domain.Rule {
	return eventTransitionRule{}
}

type eventTransitionRule struct{}

func (eventTransitionRule) Name() string { return "event_transition" }

func (eventTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityEvent || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.Event)
		if !ok {
			continue
		}
		after, ok := change.After.(domain.Event)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "event_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("event %s is set to unknown status %s", after.ID, after.Status),
				Entity:   domain.EntityEvent,
				EntityID: after.ID,
			})
			continue
		}
		if before.Status != domain.EventPlanned && after.Status == domain.EventPlanned {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "event_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("event %s cannot move from %s back to planned", after.ID, before.Status),
				Entity:   domain.EntityEvent,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
