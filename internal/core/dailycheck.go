package core

import (
	"context"
	"time"

	"pmpcore/pkg/domain"
)

// CreateDailyCheckForProject creates the project's daily-check instance for
// the current day together with its event. The operation is idempotent per
// (project, calendar day): a duplicate trigger finds the existing instance
// and returns it unchanged.
func (s *Service) CreateDailyCheckForProject(ctx context.Context, projectID string) (Procedure, Result, error) {
	var proc Procedure
	var res Result
	err := s.instrument(ctx, "create_daily_check", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindProject(projectID); !ok {
				return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
			}
			today := domain.DateOnly(tx.Now())
			if existing, ok := findDailyCheck(tx, projectID, today); ok {
				proc = existing
				return nil
			}
			created, txErr := tx.CreateProcedure(Procedure{
				Kind:      domain.KindDailyCheck,
				Name:      "daily check " + today.Format("2006-01-02"),
				ProjectID: projectID,
				Frequency: domain.FrequencyDaily,
				StartDate: &today,
			})
			if txErr != nil {
				return txErr
			}
			dates := domain.Schedule(&today, today, today.AddDate(0, 0, 1), domain.FrequencyDaily)
			events := make([]Event, 0, len(dates))
			for _, d := range dates {
				events = append(events, Event{
					ProcedureID: created.ID,
					ProjectID:   projectID,
					Date:        d,
					Status:      domain.EventPlanned,
				})
			}
			if _, txErr := tx.CreateEvents(events); txErr != nil {
				return txErr
			}
			proc = created
			return nil
		})
		return err
	})
	return proc, res, err
}

// findDailyCheck locates the live daily-check instance anchored on day.
func findDailyCheck(tx Transaction, projectID string, day time.Time) (Procedure, bool) {
	for _, p := range tx.Snapshot().ListProcedures(false) {
		if p.Kind != domain.KindDailyCheck || p.ProjectID != projectID || p.StartDate == nil {
			continue
		}
		if domain.DateOnly(*p.StartDate).Equal(day) {
			return p, true
		}
	}
	return Procedure{}, false
}

// CreateDailyCheckForActiveProjects runs the daily batch: one daily-check
// instance per active project, iterated sequentially. A failing project is
// logged and skipped so the batch still covers the rest; duplicate triggers
// for the same day no-op per project.
func (s *Service) CreateDailyCheckForActiveProjects(ctx context.Context) ([]Procedure, error) {
	var out []Procedure
	err := s.instrument(ctx, "create_daily_checks", func(ctx context.Context) error {
		for _, project := range s.store.ListProjects() {
			if !project.Active {
				continue
			}
			proc, _, err := s.CreateDailyCheckForProject(ctx, project.ID)
			if err != nil {
				s.logger.Warn("daily check creation failed", "project", project.ID, "error", err)
				continue
			}
			out = append(out, proc)
		}
		return nil
	})
	return out, err
}
