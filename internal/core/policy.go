package core

import (
	"context"
	"time"

	"pmpcore/pkg/domain"
)

// editOutcome reports how an edit was applied.
type editOutcome struct {
	// Procedure is the live version after the edit: the original on the
	// in-place path, the freshly created version on the clone path.
	Procedure Procedure
	Cloned    bool
	// Entity is the edited or inserted entity as it exists in the live version.
	Entity any
}

// applyEdit runs the versioning decision for one edit, uniformly for
// procedure, operation, label, and parameter targets. cutover is the start of
// "today" pinned by the transaction clock. When no event dated at or before
// cutover carries a measurement the edit mutates the current version in
// place; otherwise the version is cloned with the edit merged in, the old
// version is tombstoned, and — if the owning project is active — events from
// cutover onward are repointed to the new version. Clone, tombstone, and
// repoint commit atomically or not at all.
func (s *Service) applyEdit(ctx context.Context, edit editSpec) (editOutcome, Result, error) {
	var out editOutcome
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		proc, err := ownerProcedure(tx, edit)
		if err != nil {
			return err
		}
		if proc.Deleted() {
			return domain.ReadOnlyError{Entity: domain.EntityProcedure, ID: proc.ID, Reason: "version is archived"}
		}
		if proc.EquipmentID != nil {
			if eq, ok := tx.FindEquipment(*proc.EquipmentID); ok && eq.ReadOnly {
				return domain.ReadOnlyError{Entity: domain.EntityEquipment, ID: eq.ID, Reason: "equipment is read-only"}
			}
		}
		if edit.validate != nil {
			if err := edit.validate(tx); err != nil {
				return err
			}
		}

		cutover := domain.DateOnly(tx.Now())
		if !hasMeasuredHistory(tx, proc.ID, cutover) {
			return s.applyInPlace(tx, proc, edit, cutover, &out)
		}
		return s.applyClone(tx, proc, edit, cutover, &out)
	})
	return out, res, err
}

// ownerProcedure resolves the procedure version that owns the edit target.
func ownerProcedure(tx Transaction, edit editSpec) (Procedure, error) {
	var procedureID string
	switch edit.target {
	case domain.EntityProcedure:
		procedureID = edit.targetID
	case domain.EntityOperation:
		op, ok := tx.FindOperation(edit.targetID)
		if !ok {
			return Procedure{}, domain.NotFoundError{Entity: domain.EntityOperation, ID: edit.targetID}
		}
		procedureID = op.ProcedureID
	case domain.EntityLabel:
		l, ok := tx.FindLabel(edit.targetID)
		if !ok {
			return Procedure{}, domain.NotFoundError{Entity: domain.EntityLabel, ID: edit.targetID}
		}
		op, ok := tx.FindOperation(l.OperationID)
		if !ok {
			return Procedure{}, domain.NotFoundError{Entity: domain.EntityOperation, ID: l.OperationID}
		}
		procedureID = op.ProcedureID
	case domain.EntityParameter:
		p, ok := tx.FindParameter(edit.targetID)
		if !ok {
			return Procedure{}, domain.NotFoundError{Entity: domain.EntityParameter, ID: edit.targetID}
		}
		op, ok := tx.FindOperation(p.OperationID)
		if !ok {
			return Procedure{}, domain.NotFoundError{Entity: domain.EntityOperation, ID: p.OperationID}
		}
		procedureID = op.ProcedureID
	default:
		return Procedure{}, domain.ValidationError{Message: "unsupported edit target"}
	}
	proc, ok := tx.FindProcedure(procedureID)
	if !ok {
		return Procedure{}, domain.NotFoundError{Entity: domain.EntityProcedure, ID: procedureID}
	}
	return proc, nil
}

// hasMeasuredHistory reports whether any event of the procedure dated at or
// before cutover carries at least one measurement. This is the trigger that
// makes the version immutable.
func hasMeasuredHistory(tx Transaction, procedureID string, cutover time.Time) bool {
	for _, e := range tx.ListEventsByProcedure(procedureID) {
		if e.Date.After(cutover) {
			continue
		}
		if len(tx.ListMeasurementsByEvent(e.ID)) > 0 {
			return true
		}
	}
	return false
}

func (s *Service) applyInPlace(tx Transaction, proc Procedure, edit editSpec, cutover time.Time, out *editOutcome) error {
	switch {
	case edit.insertOperation != nil:
		op := *edit.insertOperation
		op.ProcedureID = proc.ID
		created, err := tx.CreateOperation(op)
		if err != nil {
			return err
		}
		out.Entity = created
	case edit.insertLabel != nil:
		l := *edit.insertLabel
		l.OperationID = edit.targetID
		created, err := tx.CreateLabel(l)
		if err != nil {
			return err
		}
		out.Entity = created
	case edit.insertParameter != nil:
		p := *edit.insertParameter
		p.OperationID = edit.targetID
		created, err := tx.CreateParameter(p)
		if err != nil {
			return err
		}
		out.Entity = created
	default:
		switch edit.target {
		case domain.EntityProcedure:
			updated, err := tx.UpdateProcedure(proc.ID, edit.procedure)
			if err != nil {
				return err
			}
			proc = updated
			out.Entity = updated
		case domain.EntityOperation:
			updated, err := tx.UpdateOperation(edit.targetID, edit.operation)
			if err != nil {
				return err
			}
			if err := purgeMismatchedChildren(tx, updated); err != nil {
				return err
			}
			out.Entity = updated
		case domain.EntityLabel:
			updated, err := tx.UpdateLabel(edit.targetID, edit.label)
			if err != nil {
				return err
			}
			out.Entity = updated
		case domain.EntityParameter:
			updated, err := tx.UpdateParameter(edit.targetID, edit.parameter)
			if err != nil {
				return err
			}
			out.Entity = updated
		}
	}

	out.Procedure = proc
	out.Cloned = false
	if edit.reschedules {
		return s.regenerateFutureEvents(tx, proc, cutover)
	}
	return nil
}

func (s *Service) applyClone(tx Transaction, oldProc Procedure, edit editSpec, cutover time.Time, out *editOutcome) error {
	newProc, edited, err := cloneProcedureVersion(tx, oldProc, edit)
	if err != nil {
		return err
	}

	// Tombstone the old version. Its events are not cascade-deleted; history
	// before cutover keeps referencing the archived version.
	now := tx.Now()
	if _, err := tx.UpdateProcedure(oldProc.ID, func(p *Procedure) error {
		p.DeletedAt = &now
		return nil
	}); err != nil {
		return err
	}

	if project, ok := tx.FindProject(oldProc.ProjectID); ok && project.Active {
		if _, err := tx.RepointEvents(oldProc.ID, newProc.ID, cutover); err != nil {
			return err
		}
	}

	out.Procedure = newProc
	out.Cloned = true
	out.Entity = edited
	if edit.reschedules {
		// A cadence change invalidates every future date. Without this the
		// archived version keeps its unrepointed future events on inactive
		// projects and both versions would carry overlapping schedules.
		if _, err := tx.DeleteEventsByProcedure(oldProc.ID, cutover); err != nil {
			return err
		}
		return s.regenerateFutureEvents(tx, newProc, cutover)
	}
	return nil
}

// purgeMismatchedChildren drops the child collection that became illegal
// after an operation type change.
func purgeMismatchedChildren(tx Transaction, op Operation) error {
	switch op.Type {
	case domain.OperationVisual:
		for _, p := range tx.ListParametersByOperation(op.ID) {
			if err := tx.DeleteParameter(p.ID); err != nil {
				return err
			}
		}
	case domain.OperationParameter:
		for _, l := range tx.ListLabelsByOperation(op.ID) {
			if err := tx.DeleteLabel(l.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
