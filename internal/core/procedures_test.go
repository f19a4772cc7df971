package core_test

import (
	"errors"
	"testing"
	"time"

	"pmpcore/internal/core"
	"pmpcore/pkg/domain"
)

// addVisualOperation appends a visual operation with one label. While the
// procedure is unmeasured these edits stay on the current version.
func addVisualOperation(t *testing.T, f *fixture, procedureID string) (core.Operation, core.Label) {
	t.Helper()
	op, _, err := f.svc.AddOperation(f.ctx, procedureID, core.Operation{
		Name: "check for corrosion",
		Type: domain.OperationVisual,
	})
	if err != nil {
		t.Fatalf("add operation: %v", err)
	}
	label, _, err := f.svc.AddLabel(f.ctx, op.ID, core.Label{Name: "rust"})
	if err != nil {
		t.Fatalf("add label: %v", err)
	}
	return op, label
}

func addParameterOperation(t *testing.T, f *fixture, procedureID, unitID string) (core.Operation, core.Parameter) {
	t.Helper()
	op, _, err := f.svc.AddOperation(f.ctx, procedureID, core.Operation{
		Name: "read gauge",
		Type: domain.OperationParameter,
	})
	if err != nil {
		t.Fatalf("add operation: %v", err)
	}
	param, _, err := f.svc.AddParameter(f.ctx, op.ID, core.Parameter{
		Name:   "pressure",
		Min:    1,
		Max:    10,
		UnitID: unitID,
	})
	if err != nil {
		t.Fatalf("add parameter: %v", err)
	}
	return op, param
}

// measureEvent records a label measurement on the given day, which freezes the
// procedure version for all subsequent edits.
func measureEvent(t *testing.T, f *fixture, projectID string, label core.Label, op core.Operation, day time.Time) core.Event {
	t.Helper()
	event := f.eventOn(t, projectID, day)
	if _, _, err := f.svc.SaveMeasurement(f.ctx, core.MeasurementInput{
		EventID:     event.ID,
		OperationID: op.ID,
		LabelID:     &label.ID,
		UserID:      "inspector-1",
	}); err != nil {
		t.Fatalf("save measurement: %v", err)
	}
	return event
}

func TestCreateProcedureMaterializesEvents(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)

	events := f.projectEvents(t, project.ID)
	if len(events) != 24 {
		t.Fatalf("got %d events, want 24 across the two-year horizon", len(events))
	}
	first := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC)
	if !events[0].Date.Equal(first) || !events[len(events)-1].Date.Equal(last) {
		t.Fatalf("window edges: first=%s last=%s", events[0].Date, events[len(events)-1].Date)
	}
	for _, e := range events {
		if e.ProcedureID != proc.ID || e.Status != domain.EventPlanned {
			t.Fatalf("unexpected event: %+v", e)
		}
	}
}

func TestCreateProcedureValidation(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)

	cases := []struct {
		name string
		proc core.Procedure
	}{
		{"daily maintenance", core.Procedure{
			Kind: domain.KindMaintenance, ProjectID: project.ID,
			EquipmentID: &eq.ID, Frequency: domain.FrequencyDaily,
		}},
		{"maintenance without target", core.Procedure{
			Kind: domain.KindMaintenance, ProjectID: project.ID,
			Frequency: domain.FrequencyMonthly,
		}},
		{"non-daily daily check", core.Procedure{
			Kind: domain.KindDailyCheck, ProjectID: project.ID,
			Frequency: domain.FrequencyWeekly,
		}},
		{"unknown kind", core.Procedure{
			Kind: "inspection", ProjectID: project.ID,
			Frequency: domain.FrequencyMonthly,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := f.svc.CreateProcedure(f.ctx, c.proc)
			var ve domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestCreateProcedureUnknownProject(t *testing.T) {
	f := newFixture(t)
	eqID := "eq-1"
	_, _, err := f.svc.CreateProcedure(f.ctx, core.Procedure{
		Kind:        domain.KindMaintenance,
		ProjectID:   "missing",
		EquipmentID: &eqID,
		Frequency:   domain.FrequencyMonthly,
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityProject {
		t.Fatalf("got %v, want project not found", err)
	}
}

func TestCreateProcedureReadOnlyEquipment(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq, _, err := f.svc.CreateEquipment(f.ctx, core.Equipment{
		Name: "sealed tank", ProjectID: project.ID, ReadOnly: true,
	})
	if err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	_, _, err = f.svc.CreateProcedure(f.ctx, core.Procedure{
		Kind:        domain.KindMaintenance,
		ProjectID:   project.ID,
		EquipmentID: &eq.ID,
		Frequency:   domain.FrequencyMonthly,
	})
	var ro domain.ReadOnlyError
	if !errors.As(err, &ro) || ro.Entity != domain.EntityEquipment {
		t.Fatalf("got %v, want read-only equipment", err)
	}
}

func TestUpdateProcedureInPlaceWhenUnmeasured(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)

	updated, _, err := f.svc.UpdateProcedure(f.ctx, proc.ID, core.ProcedurePatch{
		Name: strPtr("valve inspection v2"),
	})
	if err != nil {
		t.Fatalf("update procedure: %v", err)
	}
	if updated.ID != proc.ID {
		t.Fatalf("unmeasured edit changed identity: %s -> %s", proc.ID, updated.ID)
	}
	if versions := f.svc.ListProcedures(true); len(versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(versions))
	}
}

func TestUpdateProcedureRescheduleRegeneratesFutureEvents(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)

	quarterly := domain.FrequencyQuarterly
	if _, _, err := f.svc.UpdateProcedure(f.ctx, proc.ID, core.ProcedurePatch{
		Frequency: &quarterly,
	}); err != nil {
		t.Fatalf("update frequency: %v", err)
	}

	events := f.projectEvents(t, project.ID)
	// Three monthly events before the cutover survive; the future is rebuilt
	// on the quarterly cadence from the same anchor.
	if len(events) != 10 {
		t.Fatalf("got %d events, want 10", len(events))
	}
	f.eventOn(t, project.ID, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))
	f.eventOn(t, project.ID, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC))
	for _, e := range events {
		if e.Date.Equal(time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC)) {
			t.Fatal("monthly event survived the reschedule")
		}
	}
}

func TestUpdateProcedureClonesAfterMeasurement(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, label := addVisualOperation(t, f, proc.ID)
	measured := measureEvent(t, f, project.ID, label, op,
		time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))

	updated, _, err := f.svc.UpdateProcedure(f.ctx, proc.ID, core.ProcedurePatch{
		Name: strPtr("valve inspection v2"),
	})
	if err != nil {
		t.Fatalf("update procedure: %v", err)
	}
	if updated.ID == proc.ID {
		t.Fatal("measured edit reused the old identity")
	}
	if updated.Name != "valve inspection v2" {
		t.Fatalf("edit not merged into clone: %+v", updated)
	}

	old, ok := f.svc.GetProcedure(proc.ID)
	if !ok || !old.Deleted() {
		t.Fatalf("old version not tombstoned: %+v ok=%v", old, ok)
	}
	if old.Name != "valve inspection" {
		t.Fatalf("old version mutated: %+v", old)
	}
	live := f.svc.ListProcedures(false)
	if len(live) != 1 || live[0].ID != updated.ID {
		t.Fatalf("live versions: %+v", live)
	}
	if all := f.svc.ListProcedures(true); len(all) != 2 {
		t.Fatalf("got %d versions with tombstones, want 2", len(all))
	}

	// History before the cutover keeps the archived version; the future is
	// repointed wholesale.
	for _, e := range f.projectEvents(t, project.ID) {
		cutover := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
		want := updated.ID
		if e.Date.Before(cutover) {
			want = proc.ID
		}
		if e.ProcedureID != want {
			t.Fatalf("event %s points at %s, want %s", e.Date.Format("2006-01-02"), e.ProcedureID, want)
		}
	}
	if ms := f.svc.Store().ListMeasurementsByEvent(measured.ID); len(ms) != 1 {
		t.Fatalf("measurement lost on clone: %+v", ms)
	}

	// The operation tree was deep-copied with fresh identities.
	err = f.svc.Store().View(f.ctx, func(view core.TransactionView) error {
		newOps := view.ListOperationsByProcedure(updated.ID)
		if len(newOps) != 1 || newOps[0].ID == op.ID || newOps[0].Name != op.Name {
			t.Fatalf("cloned operations: %+v", newOps)
		}
		labels := view.ListLabelsByOperation(newOps[0].ID)
		if len(labels) != 1 || labels[0].ID == label.ID || labels[0].Name != "rust" {
			t.Fatalf("cloned labels: %+v", labels)
		}
		if oldOps := view.ListOperationsByProcedure(proc.ID); len(oldOps) != 1 {
			t.Fatalf("old version tree changed: %+v", oldOps)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRescheduleCloneOnInactiveProject(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, false)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, label := addVisualOperation(t, f, proc.ID)
	measureEvent(t, f, project.ID, label, op,
		time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))

	quarterly := domain.FrequencyQuarterly
	updated, _, err := f.svc.UpdateProcedure(f.ctx, proc.ID, core.ProcedurePatch{
		Frequency: &quarterly,
	})
	if err != nil {
		t.Fatalf("update frequency: %v", err)
	}
	if updated.ID == proc.ID {
		t.Fatal("measured edit reused the old identity")
	}

	// Even without the active-project repoint, the archived version may not
	// keep future events alongside the regenerated schedule.
	events := f.projectEvents(t, project.ID)
	if len(events) != 10 {
		t.Fatalf("got %d events, want 10", len(events))
	}
	cutover := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]int)
	for _, e := range events {
		seen[e.Date.Format("2006-01-02")]++
		want := updated.ID
		if e.Date.Before(cutover) {
			want = proc.ID
		}
		if e.ProcedureID != want {
			t.Fatalf("event %s points at %s, want %s", e.Date.Format("2006-01-02"), e.ProcedureID, want)
		}
	}
	for day, n := range seen {
		if n > 1 {
			t.Fatalf("overlapping schedules: %d events on %s", n, day)
		}
	}
}

func TestUpdateArchivedVersionRejected(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, label := addVisualOperation(t, f, proc.ID)
	measureEvent(t, f, project.ID, label, op,
		time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))

	if _, _, err := f.svc.UpdateProcedure(f.ctx, proc.ID, core.ProcedurePatch{
		Name: strPtr("v2"),
	}); err != nil {
		t.Fatalf("clone edit: %v", err)
	}

	_, _, err := f.svc.UpdateProcedure(f.ctx, proc.ID, core.ProcedurePatch{Name: strPtr("v3")})
	var ro domain.ReadOnlyError
	if !errors.As(err, &ro) || ro.Entity != domain.EntityProcedure {
		t.Fatalf("got %v, want read-only procedure", err)
	}
}

func TestAddOperationOnMeasuredVersionClones(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, label := addVisualOperation(t, f, proc.ID)
	measureEvent(t, f, project.ID, label, op,
		time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))

	created, _, err := f.svc.AddOperation(f.ctx, proc.ID, core.Operation{
		Name: "lubricate bearings",
		Type: domain.OperationVisual,
	})
	if err != nil {
		t.Fatalf("add operation: %v", err)
	}
	if created.ProcedureID == proc.ID {
		t.Fatal("insertion landed on the measured version")
	}
	live := f.svc.ListProcedures(false)
	if len(live) != 1 || live[0].ID != created.ProcedureID {
		t.Fatalf("live versions: %+v", live)
	}
	err = f.svc.Store().View(f.ctx, func(view core.TransactionView) error {
		if ops := view.ListOperationsByProcedure(created.ProcedureID); len(ops) != 2 {
			t.Fatalf("new version operations: %+v", ops)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestAddOperationUnknownType(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)

	_, _, err := f.svc.AddOperation(f.ctx, proc.ID, core.Operation{Name: "x", Type: "acoustic"})
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestAddLabelRequiresVisualOperation(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	unit := f.seedUnit(t)
	proc := f.seedProcedure(t, "gauge readout", project.ID, &eq.ID)
	op, _ := addParameterOperation(t, f, proc.ID, unit.ID)

	_, _, err := f.svc.AddLabel(f.ctx, op.ID, core.Label{Name: "rust"})
	var ise domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("got %v, want invalid state", err)
	}
}

func TestAddParameterRequiresUnit(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "gauge readout", project.ID, &eq.ID)
	op, _, err := f.svc.AddOperation(f.ctx, proc.ID, core.Operation{
		Name: "read gauge", Type: domain.OperationParameter,
	})
	if err != nil {
		t.Fatalf("add operation: %v", err)
	}

	_, _, err = f.svc.AddParameter(f.ctx, op.ID, core.Parameter{Name: "pressure", Max: 10, UnitID: "missing"})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityUnit {
		t.Fatalf("got %v, want unit not found", err)
	}
}

func TestAddParameterBoundsPolicy(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	unit := f.seedUnit(t)
	proc := f.seedProcedure(t, "gauge readout", project.ID, &eq.ID)
	op, _, err := f.svc.AddOperation(f.ctx, proc.ID, core.Operation{
		Name: "read gauge", Type: domain.OperationParameter,
	})
	if err != nil {
		t.Fatalf("add operation: %v", err)
	}

	_, _, err = f.svc.AddParameter(f.ctx, op.ID, core.Parameter{
		Name: "pressure", Min: 10, Max: 1, UnitID: unit.ID,
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("got %v, want rule violation", err)
	}

	_, res, err := f.svc.AddParameter(f.ctx, op.ID, core.Parameter{
		Name: "setpoint", Min: 5, Max: 5, UnitID: unit.ID,
	})
	if err != nil {
		t.Fatalf("degenerate bounds should commit: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("violations: %+v", res.Violations)
	}
}

func TestOperationTypeChangePurgesLabels(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, _ := addVisualOperation(t, f, proc.ID)

	paramType := domain.OperationParameter
	updated, _, err := f.svc.UpdateOperation(f.ctx, op.ID, core.OperationPatch{Type: &paramType})
	if err != nil {
		t.Fatalf("update operation: %v", err)
	}
	if updated.Type != domain.OperationParameter {
		t.Fatalf("type not applied: %+v", updated)
	}
	err = f.svc.Store().View(f.ctx, func(view core.TransactionView) error {
		if labels := view.ListLabelsByOperation(op.ID); len(labels) != 0 {
			t.Fatalf("labels survived the type change: %+v", labels)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRemoveProcedureUnmeasuredHardDeletes(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	addVisualOperation(t, f, proc.ID)

	if _, err := f.svc.RemoveProcedure(f.ctx, proc.ID); err != nil {
		t.Fatalf("remove procedure: %v", err)
	}
	if _, ok := f.svc.GetProcedure(proc.ID); ok {
		t.Fatal("procedure still resolvable after hard delete")
	}
	if events := f.projectEvents(t, project.ID); len(events) != 0 {
		t.Fatalf("events survived the delete: %d", len(events))
	}
}

func TestRemoveProcedureMeasuredTombstones(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, label := addVisualOperation(t, f, proc.ID)
	measureEvent(t, f, project.ID, label, op,
		time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))

	if _, err := f.svc.RemoveProcedure(f.ctx, proc.ID); err != nil {
		t.Fatalf("remove procedure: %v", err)
	}
	got, ok := f.svc.GetProcedure(proc.ID)
	if !ok || !got.Deleted() {
		t.Fatalf("measured procedure not tombstoned: %+v ok=%v", got, ok)
	}
	if events := f.projectEvents(t, project.ID); len(events) != 24 {
		t.Fatalf("history events removed: %d", len(events))
	}
	// Removing a tombstoned version is a no-op.
	if _, err := f.svc.RemoveProcedure(f.ctx, proc.ID); err != nil {
		t.Fatalf("repeat remove: %v", err)
	}
}

func TestRemoveChildrenWithMeasurementsRejected(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	proc := f.seedProcedure(t, "valve inspection", project.ID, &eq.ID)
	op, label := addVisualOperation(t, f, proc.ID)
	measureEvent(t, f, project.ID, label, op,
		time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))

	var ise domain.InvalidStateError
	if _, err := f.svc.RemoveOperation(f.ctx, op.ID); !errors.As(err, &ise) {
		t.Fatalf("remove operation: %v, want invalid state", err)
	}
	if _, err := f.svc.RemoveLabel(f.ctx, label.ID); !errors.As(err, &ise) {
		t.Fatalf("remove label: %v, want invalid state", err)
	}
}

func TestRemoveParameterWithMeasurementRejected(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	eq := f.seedEquipment(t, project.ID)
	unit := f.seedUnit(t)
	proc := f.seedProcedure(t, "gauge readout", project.ID, &eq.ID)
	op, param := addParameterOperation(t, f, proc.ID, unit.ID)

	event := f.eventOn(t, project.ID, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))
	if _, _, err := f.svc.SaveMeasurement(f.ctx, core.MeasurementInput{
		EventID:     event.ID,
		OperationID: op.ID,
		ParameterID: &param.ID,
		Value:       f64Ptr(4.2),
		UserID:      "inspector-1",
	}); err != nil {
		t.Fatalf("save measurement: %v", err)
	}

	_, err := f.svc.RemoveParameter(f.ctx, param.ID)
	var ise domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("got %v, want invalid state", err)
	}
}
