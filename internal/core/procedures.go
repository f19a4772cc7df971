package core

import (
	"context"
	"time"

	"pmpcore/pkg/domain"
)

// scheduleHorizon returns the exclusive end of the scheduling window for a
// project: two years from project start.
func scheduleHorizon(project Project) time.Time {
	return domain.DateOnly(project.StartDate).AddDate(domain.DefaultScheduleYears, 0, 0)
}

// generateEvents materializes the procedure's occurrences from max(from,
// project start) up to the scheduling horizon in one set-based write.
func generateEvents(tx Transaction, proc Procedure, from time.Time) error {
	project, ok := tx.FindProject(proc.ProjectID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProject, ID: proc.ProjectID}
	}
	start := domain.DateOnly(project.StartDate)
	if from.After(start) {
		start = domain.DateOnly(from)
	}
	dates := domain.Schedule(proc.StartDate, start, scheduleHorizon(project), proc.Frequency)
	if len(dates) == 0 {
		return nil
	}
	events := make([]Event, 0, len(dates))
	for _, d := range dates {
		events = append(events, Event{
			ProcedureID: proc.ID,
			ProjectID:   proc.ProjectID,
			Date:        d,
			Status:      domain.EventPlanned,
		})
	}
	_, err := tx.CreateEvents(events)
	return err
}

// regenerateFutureEvents replaces the procedure's events from cutover onward
// with a freshly generated set. Past events are never touched.
func (s *Service) regenerateFutureEvents(tx Transaction, proc Procedure, cutover time.Time) error {
	if _, err := tx.DeleteEventsByProcedure(proc.ID, cutover); err != nil {
		return err
	}
	return generateEvents(tx, proc, cutover)
}

func validateProcedure(proc Procedure) error {
	switch proc.Kind {
	case domain.KindMaintenance:
		if proc.Frequency == domain.FrequencyDaily {
			return domain.ValidationError{Message: "daily frequency is reserved for daily checks"}
		}
		if proc.EquipmentID == nil && proc.LocationID == nil {
			return domain.ValidationError{Message: "maintenance procedure requires equipment or location"}
		}
	case domain.KindDailyCheck:
		if proc.Frequency != domain.FrequencyDaily {
			return domain.ValidationError{Message: "daily check requires daily frequency"}
		}
	default:
		return domain.ValidationError{Message: "unknown procedure kind"}
	}
	if !proc.Frequency.Valid() {
		return domain.ValidationError{Message: "unknown frequency"}
	}
	return nil
}

// CreateProcedure persists a new procedure version and materializes its full
// two-year event window.
func (s *Service) CreateProcedure(ctx context.Context, proc Procedure) (Procedure, Result, error) {
	var created Procedure
	var res Result
	err := s.instrument(ctx, "create_procedure", func(ctx context.Context) error {
		if err := validateProcedure(proc); err != nil {
			return err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindProject(proc.ProjectID); !ok {
				return domain.NotFoundError{Entity: domain.EntityProject, ID: proc.ProjectID}
			}
			if proc.EquipmentID != nil {
				eq, ok := tx.FindEquipment(*proc.EquipmentID)
				if !ok {
					return domain.NotFoundError{Entity: domain.EntityEquipment, ID: *proc.EquipmentID}
				}
				if eq.ReadOnly {
					return domain.ReadOnlyError{Entity: domain.EntityEquipment, ID: eq.ID, Reason: "equipment is read-only"}
				}
			}
			var txErr error
			created, txErr = tx.CreateProcedure(proc)
			if txErr != nil {
				return txErr
			}
			return generateEvents(tx, created, time.Time{})
		})
		return err
	})
	return created, res, err
}

// GetProcedure retrieves a procedure version, tombstoned versions included.
func (s *Service) GetProcedure(id string) (Procedure, bool) {
	return s.store.GetProcedure(id)
}

// ListProcedures returns procedure versions, optionally including tombstones.
func (s *Service) ListProcedures(withDeleted bool) []Procedure {
	return s.store.ListProcedures(withDeleted)
}

// ProcedurePatch describes a partial procedure update. Nil fields are left
// unchanged; ClearStartDate drops the anchor date.
type ProcedurePatch struct {
	Name            *string
	Frequency       *Frequency
	StartDate       *time.Time
	ClearStartDate  bool
	SubcontractorID *string
	IsFromStandard  *bool
}

func (p ProcedurePatch) reschedules() bool {
	return p.Frequency != nil || p.StartDate != nil || p.ClearStartDate
}

func (p ProcedurePatch) apply(proc *Procedure) error {
	if p.Name != nil {
		proc.Name = *p.Name
	}
	if p.Frequency != nil {
		proc.Frequency = *p.Frequency
	}
	if p.StartDate != nil {
		d := domain.DateOnly(*p.StartDate)
		proc.StartDate = &d
	}
	if p.ClearStartDate {
		proc.StartDate = nil
	}
	if p.SubcontractorID != nil {
		proc.SubcontractorID = p.SubcontractorID
	}
	if p.IsFromStandard != nil {
		proc.IsFromStandard = *p.IsFromStandard
	}
	return validateProcedure(*proc)
}

// UpdateProcedure applies a patch through the versioning policy. The returned
// procedure is the live version afterwards; on the clone path it carries a
// fresh identity and the previous version is tombstoned. Frequency and
// start-date changes regenerate future events regardless of the clone
// decision.
func (s *Service) UpdateProcedure(ctx context.Context, id string, patch ProcedurePatch) (Procedure, Result, error) {
	var updated Procedure
	var res Result
	err := s.instrument(ctx, "update_procedure", func(ctx context.Context) error {
		out, r, err := s.applyEdit(ctx, editSpec{
			target:      domain.EntityProcedure,
			targetID:    id,
			procedure:   patch.apply,
			reschedules: patch.reschedules(),
		})
		res = r
		if err != nil {
			return err
		}
		updated = out.Procedure
		return nil
	})
	return updated, res, err
}

// OperationPatch describes a partial operation update. A type change purges
// the child collection that became illegal.
type OperationPatch struct {
	Name     *string
	Type     *OperationType
	Position *int
}

func (p OperationPatch) apply(op *Operation) error {
	if p.Name != nil {
		op.Name = *p.Name
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return domain.ValidationError{Message: "unknown operation type"}
		}
		op.Type = *p.Type
	}
	if p.Position != nil {
		op.Position = *p.Position
	}
	return nil
}

// AddOperation appends an operation to a procedure through the versioning
// policy.
func (s *Service) AddOperation(ctx context.Context, procedureID string, op Operation) (Operation, Result, error) {
	var created Operation
	var res Result
	err := s.instrument(ctx, "add_operation", func(ctx context.Context) error {
		if !op.Type.Valid() {
			return domain.ValidationError{Message: "unknown operation type"}
		}
		out, r, err := s.applyEdit(ctx, editSpec{
			target:          domain.EntityProcedure,
			targetID:        procedureID,
			insertOperation: &op,
		})
		res = r
		if err != nil {
			return err
		}
		created = out.Entity.(Operation)
		return nil
	})
	return created, res, err
}

// UpdateOperation applies a patch to an operation through the versioning
// policy.
func (s *Service) UpdateOperation(ctx context.Context, id string, patch OperationPatch) (Operation, Result, error) {
	var updated Operation
	var res Result
	err := s.instrument(ctx, "update_operation", func(ctx context.Context) error {
		out, r, err := s.applyEdit(ctx, editSpec{
			target:    domain.EntityOperation,
			targetID:  id,
			operation: patch.apply,
		})
		res = r
		if err != nil {
			return err
		}
		updated = out.Entity.(Operation)
		return nil
	})
	return updated, res, err
}

// LabelPatch describes a partial label update.
type LabelPatch struct {
	Name *string
}

func (p LabelPatch) apply(l *Label) error {
	if p.Name != nil {
		l.Name = *p.Name
	}
	return nil
}

// AddLabel appends a label to a visual operation through the versioning
// policy.
func (s *Service) AddLabel(ctx context.Context, operationID string, label Label) (Label, Result, error) {
	var created Label
	var res Result
	err := s.instrument(ctx, "add_label", func(ctx context.Context) error {
		out, r, err := s.applyEdit(ctx, editSpec{
			target:      domain.EntityOperation,
			targetID:    operationID,
			insertLabel: &label,
			validate: func(tx Transaction) error {
				return requireOperationType(tx, operationID, domain.OperationVisual)
			},
		})
		res = r
		if err != nil {
			return err
		}
		created = out.Entity.(Label)
		return nil
	})
	return created, res, err
}

// UpdateLabel applies a patch to a label through the versioning policy.
func (s *Service) UpdateLabel(ctx context.Context, id string, patch LabelPatch) (Label, Result, error) {
	var updated Label
	var res Result
	err := s.instrument(ctx, "update_label", func(ctx context.Context) error {
		out, r, err := s.applyEdit(ctx, editSpec{
			target:   domain.EntityLabel,
			targetID: id,
			label:    patch.apply,
		})
		res = r
		if err != nil {
			return err
		}
		updated = out.Entity.(Label)
		return nil
	})
	return updated, res, err
}

// ParameterPatch describes a partial parameter update.
type ParameterPatch struct {
	Name   *string
	Min    *float64
	Max    *float64
	UnitID *string
}

func (p ParameterPatch) apply(param *Parameter) error {
	if p.Name != nil {
		param.Name = *p.Name
	}
	if p.Min != nil {
		param.Min = *p.Min
	}
	if p.Max != nil {
		param.Max = *p.Max
	}
	if p.UnitID != nil {
		param.UnitID = *p.UnitID
	}
	return nil
}

// AddParameter appends a parameter to a parameter operation through the
// versioning policy. The referenced unit must exist.
func (s *Service) AddParameter(ctx context.Context, operationID string, param Parameter) (Parameter, Result, error) {
	var created Parameter
	var res Result
	err := s.instrument(ctx, "add_parameter", func(ctx context.Context) error {
		out, r, err := s.applyEdit(ctx, editSpec{
			target:          domain.EntityOperation,
			targetID:        operationID,
			insertParameter: &param,
			validate: func(tx Transaction) error {
				if err := requireOperationType(tx, operationID, domain.OperationParameter); err != nil {
					return err
				}
				return requireUnit(tx, param.UnitID)
			},
		})
		res = r
		if err != nil {
			return err
		}
		created = out.Entity.(Parameter)
		return nil
	})
	return created, res, err
}

// UpdateParameter applies a patch to a parameter through the versioning
// policy. A unit change must reference an existing unit.
func (s *Service) UpdateParameter(ctx context.Context, id string, patch ParameterPatch) (Parameter, Result, error) {
	var updated Parameter
	var res Result
	err := s.instrument(ctx, "update_parameter", func(ctx context.Context) error {
		spec := editSpec{
			target:    domain.EntityParameter,
			targetID:  id,
			parameter: patch.apply,
		}
		if patch.UnitID != nil {
			spec.validate = func(tx Transaction) error {
				return requireUnit(tx, *patch.UnitID)
			}
		}
		out, r, err := s.applyEdit(ctx, spec)
		res = r
		if err != nil {
			return err
		}
		updated = out.Entity.(Parameter)
		return nil
	})
	return updated, res, err
}

func requireOperationType(tx Transaction, operationID string, want OperationType) error {
	op, ok := tx.FindOperation(operationID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOperation, ID: operationID}
	}
	if op.Type != want {
		return domain.InvalidStateError{Message: "operation type " + string(op.Type) + " does not accept this child"}
	}
	return nil
}

func requireUnit(tx Transaction, unitID string) error {
	if _, ok := tx.FindUnit(unitID); !ok {
		return domain.NotFoundError{Entity: domain.EntityUnit, ID: unitID}
	}
	return nil
}

// RemoveProcedure removes a procedure version. Versions with recorded
// measurements are tombstoned so historical events keep a resolvable
// reference; unmeasured versions are hard-deleted with their events and
// children.
func (s *Service) RemoveProcedure(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "remove_procedure", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			proc, ok := tx.FindProcedure(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityProcedure, ID: id}
			}
			if proc.Deleted() {
				return nil
			}
			if procedureMeasured(tx, id) {
				now := tx.Now()
				_, err := tx.UpdateProcedure(id, func(p *Procedure) error {
					p.DeletedAt = &now
					return nil
				})
				return err
			}
			if _, err := tx.DeleteEventsByProcedure(id, time.Time{}); err != nil {
				return err
			}
			for _, op := range tx.ListOperationsByProcedure(id) {
				if err := tx.DeleteOperation(op.ID); err != nil {
					return err
				}
			}
			return tx.DeleteProcedure(id)
		})
		return err
	})
	return res, err
}

// RemoveOperation hard-deletes an operation and its children. Operations
// referenced by a measurement cannot be removed.
func (s *Service) RemoveOperation(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "remove_operation", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			op, ok := tx.FindOperation(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityOperation, ID: id}
			}
			if measurementReferences(tx, func(m Measurement) bool { return m.OperationID == op.ID }) {
				return domain.InvalidStateError{Message: "operation has recorded measurements"}
			}
			return tx.DeleteOperation(id)
		})
		return err
	})
	return res, err
}

// RemoveLabel hard-deletes a label unless a measurement references it.
func (s *Service) RemoveLabel(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "remove_label", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindLabel(id); !ok {
				return domain.NotFoundError{Entity: domain.EntityLabel, ID: id}
			}
			if measurementReferences(tx, func(m Measurement) bool { return m.LabelID != nil && *m.LabelID == id }) {
				return domain.InvalidStateError{Message: "label has recorded measurements"}
			}
			return tx.DeleteLabel(id)
		})
		return err
	})
	return res, err
}

// RemoveParameter hard-deletes a parameter unless a measurement references it.
func (s *Service) RemoveParameter(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "remove_parameter", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindParameter(id); !ok {
				return domain.NotFoundError{Entity: domain.EntityParameter, ID: id}
			}
			if measurementReferences(tx, func(m Measurement) bool { return m.ParameterID != nil && *m.ParameterID == id }) {
				return domain.InvalidStateError{Message: "parameter has recorded measurements"}
			}
			return tx.DeleteParameter(id)
		})
		return err
	})
	return res, err
}

// procedureMeasured reports whether any event of the procedure, at any date,
// carries a measurement.
func procedureMeasured(tx Transaction, procedureID string) bool {
	for _, e := range tx.ListEventsByProcedure(procedureID) {
		if len(tx.ListMeasurementsByEvent(e.ID)) > 0 {
			return true
		}
	}
	return false
}

// measurementReferences scans all measurements in the snapshot for one
// matching the predicate.
func measurementReferences(tx Transaction, match func(Measurement) bool) bool {
	view := tx.Snapshot()
	for _, e := range view.ListEvents() {
		for _, m := range view.ListMeasurementsByEvent(e.ID) {
			if match(m) {
				return true
			}
		}
	}
	return false
}
