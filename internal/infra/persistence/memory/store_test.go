package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmpcore/pkg/domain"
)

func frozenStore(t *testing.T, engine *RulesEngine, at time.Time) *Store {
	t.Helper()
	s := NewStore(engine)
	s.SetNowFunc(func() time.Time { return at })
	return s
}

func mustRun(t *testing.T, s *Store, fn func(tx Transaction) error) Result {
	t.Helper()
	res, err := s.RunInTransaction(context.Background(), fn)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	return res
}

func TestCreateAndGetProject(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	s := frozenStore(t, nil, now)

	var created Project
	mustRun(t, s, func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(Project{Code: "P-01", Title: "Plant north", Active: true})
		return err
	})

	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if !created.CreatedAt.Equal(now) || !created.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not pinned to transaction clock: %+v", created.Base)
	}
	got, ok := s.GetProject(created.ID)
	if !ok || got.Code != "P-01" {
		t.Fatalf("GetProject: %+v ok=%v", got, ok)
	}
}

func TestUpdateProjectNotFound(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateProject("missing", func(p *Project) error { return nil })
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityProject {
		t.Fatalf("got %v, want project not found", err)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := NewStore(nil)
	boom := errors.New("boom")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateProject(Project{Code: "P-02"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if projects := s.ListProjects(); len(projects) != 0 {
		t.Fatalf("rolled-back project leaked: %+v", projects)
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }
func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []domain.Violation{{Rule: "block_everything", Severity: domain.SeverityBlock, Message: "nope"}}}, nil
}

func TestBlockingRulePreventsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	s := NewStore(engine)

	res, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateProject(Project{Code: "P-03"})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("got %v, want RuleViolationError", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("result should carry the blocking violation: %+v", res)
	}
	if projects := s.ListProjects(); len(projects) != 0 {
		t.Fatalf("blocked transaction committed: %+v", projects)
	}
}

type warnEverything struct{}

func (warnEverything) Name() string { return "warn_everything" }
func (warnEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []domain.Violation{{Rule: "warn_everything", Severity: domain.SeverityWarn, Message: "careful"}}}, nil
}

func TestWarningRuleCommits(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(warnEverything{})
	s := NewStore(engine)

	res := mustRun(t, s, func(tx Transaction) error {
		_, err := tx.CreateProject(Project{Code: "P-04"})
		return err
	})
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected one warning, got %+v", res)
	}
	if projects := s.ListProjects(); len(projects) != 1 {
		t.Fatalf("warned transaction should commit, got %+v", projects)
	}
}

func TestCreateEventsNormalizes(t *testing.T) {
	s := NewStore(nil)
	var proc Procedure
	var events []Event
	mustRun(t, s, func(tx Transaction) error {
		var err error
		proc, err = tx.CreateProcedure(Procedure{Kind: domain.KindMaintenance, Name: "pump check", Frequency: domain.FrequencyWeekly})
		if err != nil {
			return err
		}
		events, err = tx.CreateEvents([]Event{
			{ProcedureID: proc.ID, Date: time.Date(2024, time.May, 2, 13, 45, 0, 0, time.UTC)},
		})
		return err
	})
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Status != domain.EventPlanned {
		t.Fatalf("status = %s, want planned", events[0].Status)
	}
	want := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)
	if !events[0].Date.Equal(want) {
		t.Fatalf("date not truncated: %s", events[0].Date)
	}
}

func seedProcedureWithEvents(t *testing.T, s *Store, dates ...time.Time) (Procedure, []Event) {
	t.Helper()
	var proc Procedure
	var events []Event
	mustRun(t, s, func(tx Transaction) error {
		var err error
		proc, err = tx.CreateProcedure(Procedure{Kind: domain.KindMaintenance, Name: "inspection", Frequency: domain.FrequencyMonthly})
		if err != nil {
			return err
		}
		batch := make([]Event, 0, len(dates))
		for _, d := range dates {
			batch = append(batch, Event{ProcedureID: proc.ID, Date: d})
		}
		events, err = tx.CreateEvents(batch)
		return err
	})
	return proc, events
}

func TestDeleteEventsByProcedureCutoffAndCascade(t *testing.T) {
	s := NewStore(nil)
	jan := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	proc, events := seedProcedureWithEvents(t, s, jan, feb, mar)

	mustRun(t, s, func(tx Transaction) error {
		op, err := tx.CreateOperation(Operation{ProcedureID: proc.ID, Name: "read gauge", Type: domain.OperationParameter})
		if err != nil {
			return err
		}
		if _, err := tx.CreateMeasurement(Measurement{EventID: events[2].ID, OperationID: op.ID, RecordedBy: "u1"}); err != nil {
			return err
		}
		_, err = tx.CreateLogItem(LogItem{EventID: events[2].ID, Kind: domain.LogMeasurement, UserID: "u1"})
		return err
	})

	var removed int
	mustRun(t, s, func(tx Transaction) error {
		var err error
		removed, err = tx.DeleteEventsByProcedure(proc.ID, feb)
		return err
	})
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	if _, ok := s.GetEvent(events[0].ID); !ok {
		t.Fatal("event before cutoff should survive")
	}
	if _, ok := s.GetEvent(events[2].ID); ok {
		t.Fatal("event at or after cutoff should be gone")
	}
	if ms := s.ListMeasurementsByEvent(events[2].ID); len(ms) != 0 {
		t.Fatalf("cascaded measurements survived: %+v", ms)
	}
	if logs := s.ListLogItemsByEvent(events[2].ID); len(logs) != 0 {
		t.Fatalf("cascaded logs survived: %+v", logs)
	}
}

func TestRepointEventsCutoff(t *testing.T) {
	s := NewStore(nil)
	jan := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	oldProc, events := seedProcedureWithEvents(t, s, jan, feb)

	var newProc Procedure
	var moved int
	mustRun(t, s, func(tx Transaction) error {
		var err error
		newProc, err = tx.CreateProcedure(Procedure{Kind: domain.KindMaintenance, Name: "inspection v2", Frequency: domain.FrequencyMonthly})
		if err != nil {
			return err
		}
		moved, err = tx.RepointEvents(oldProc.ID, newProc.ID, feb)
		return err
	})
	if moved != 1 {
		t.Fatalf("moved %d, want 1", moved)
	}
	past, _ := s.GetEvent(events[0].ID)
	future, _ := s.GetEvent(events[1].ID)
	if past.ProcedureID != oldProc.ID {
		t.Fatalf("past event repointed: %+v", past)
	}
	if future.ProcedureID != newProc.ID {
		t.Fatalf("future event not repointed: %+v", future)
	}
}

func TestRepointEventsRequiresTarget(t *testing.T) {
	s := NewStore(nil)
	proc, _ := seedProcedureWithEvents(t, s, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.RepointEvents(proc.ID, "missing", time.Time{})
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityProcedure {
		t.Fatalf("got %v, want procedure not found", err)
	}
}

func TestListEventsByProjectWindow(t *testing.T) {
	s := NewStore(nil)
	mustRun(t, s, func(tx Transaction) error {
		proc, err := tx.CreateProcedure(Procedure{Kind: domain.KindMaintenance, Name: "n", Frequency: domain.FrequencyMonthly, ProjectID: "proj"})
		if err != nil {
			return err
		}
		_, err = tx.CreateEvents([]Event{
			{ProcedureID: proc.ID, ProjectID: "proj", Date: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)},
			{ProcedureID: proc.ID, ProjectID: "proj", Date: time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)},
			{ProcedureID: proc.ID, ProjectID: "proj", Date: time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)},
			{ProcedureID: proc.ID, ProjectID: "other", Date: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)},
		})
		return err
	})
	got := s.ListEventsByProject("proj",
		time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1 (half-open window, project scoped): %+v", len(got), got)
	}
	if got[0].Date.Month() != time.February {
		t.Fatalf("wrong event selected: %+v", got[0])
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore(nil)
	proc, events := seedProcedureWithEvents(t, s, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	restored := NewStore(nil)
	restored.ImportState(s.ExportState())

	if _, ok := restored.GetProcedure(proc.ID); !ok {
		t.Fatal("procedure lost in round trip")
	}
	if _, ok := restored.GetEvent(events[0].ID); !ok {
		t.Fatal("event lost in round trip")
	}
}

func TestImportPrunesOrphans(t *testing.T) {
	snapshot := Snapshot{
		Operations: map[string]Operation{
			"op1": {Base: domain.Base{ID: "op1"}, ProcedureID: "gone", Type: domain.OperationVisual},
		},
		Events: map[string]Event{
			"ev1": {Base: domain.Base{ID: "ev1"}, ProcedureID: "gone", Status: domain.EventPlanned},
		},
		Measurements: map[string]Measurement{
			"m1": {Base: domain.Base{ID: "m1"}, EventID: "ev1"},
		},
	}
	s := NewStore(nil)
	s.ImportState(snapshot)
	if _, ok := s.GetEvent("ev1"); ok {
		t.Fatal("orphaned event survived import")
	}
	if ms := s.ListMeasurementsByEvent("ev1"); len(ms) != 0 {
		t.Fatalf("orphaned measurements survived: %+v", ms)
	}
}

func TestViewSeesCommittedState(t *testing.T) {
	s := NewStore(nil)
	proc, _ := seedProcedureWithEvents(t, s, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC))
	err := s.View(context.Background(), func(view TransactionView) error {
		if _, ok := view.FindProcedure(proc.ID); !ok {
			t.Fatal("view missing committed procedure")
		}
		if events := view.ListEvents(); len(events) != 1 {
			t.Fatalf("view events: %+v", events)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestLogItemsKeepWriteOrder(t *testing.T) {
	now := time.Date(2024, time.August, 5, 8, 0, 0, 0, time.UTC)
	s := frozenStore(t, nil, now)

	var event Event
	mustRun(t, s, func(tx Transaction) error {
		proc, err := tx.CreateProcedure(Procedure{Kind: domain.KindMaintenance, Name: "n", Frequency: domain.FrequencyMonthly})
		if err != nil {
			return err
		}
		events, err := tx.CreateEvents([]Event{{ProcedureID: proc.ID, Date: now}})
		if err != nil {
			return err
		}
		event = events[0]
		for _, kind := range []domain.LogKind{domain.LogMeasurement, domain.LogStatusChange, domain.LogChangeDate} {
			if _, err := tx.CreateLogItem(LogItem{EventID: event.ID, Kind: kind, UserID: "u1"}); err != nil {
				return err
			}
		}
		return nil
	})

	// All three entries share the transaction timestamp; order must still be
	// the write order.
	logs := s.ListLogItemsByEvent(event.ID)
	want := []domain.LogKind{domain.LogMeasurement, domain.LogStatusChange, domain.LogChangeDate}
	if len(logs) != len(want) {
		t.Fatalf("got %d log items, want %d", len(logs), len(want))
	}
	for i, kind := range want {
		if logs[i].Kind != kind {
			t.Fatalf("log[%d] = %s, want %s", i, logs[i].Kind, kind)
		}
	}

	restored := NewStore(nil)
	restored.SetNowFunc(func() time.Time { return now })
	restored.ImportState(s.ExportState())
	mustRun(t, restored, func(tx Transaction) error {
		_, err := tx.CreateLogItem(LogItem{EventID: event.ID, Kind: domain.LogOperationData, UserID: "u1"})
		return err
	})
	logs = restored.ListLogItemsByEvent(event.ID)
	if len(logs) != 4 || logs[3].Kind != domain.LogOperationData {
		t.Fatalf("post-import append out of order: %+v", logs)
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].Seq <= logs[i-1].Seq {
			t.Fatalf("sequence not monotonic: %d then %d", logs[i-1].Seq, logs[i].Seq)
		}
	}
}
