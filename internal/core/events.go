package core

import (
	"context"
	"strings"
	"time"

	"pmpcore/internal/blob"
	"pmpcore/pkg/domain"
)

// MeasurementInput carries one measurement write. Exactly one of LabelID and
// ParameterID must identify the measured child; when both are supplied the
// parameter reference wins and the label is ignored.
type MeasurementInput struct {
	EventID     string
	OperationID string
	LabelID     *string
	ParameterID *string
	Value       *float64
	Feedback    *string
	FileKeys    []string
	UserID      string
}

// SaveMeasurement records a measurement against an event, upserting the
// unique row for its (event, operation, parameter) or (event, operation)
// key. The first successful write moves a planned or open event to
// inProgress.
func (s *Service) SaveMeasurement(ctx context.Context, input MeasurementInput) (Measurement, Result, error) {
	var saved Measurement
	var res Result
	err := s.instrument(ctx, "save_measurement", func(ctx context.Context) error {
		if input.LabelID == nil && input.ParameterID == nil {
			return domain.ValidationError{Message: "one of label_id or parameter_id is required"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			event, ok := tx.FindEvent(input.EventID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEvent, ID: input.EventID}
			}
			op, ok := tx.FindOperation(input.OperationID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityOperation, ID: input.OperationID}
			}
			if op.ProcedureID != event.ProcedureID {
				return domain.InvalidStateError{Message: "operation does not belong to the event's procedure version"}
			}

			var txErr error
			if input.ParameterID != nil {
				saved, txErr = saveParameterMeasurement(tx, event, op, input)
			} else {
				saved, txErr = saveLabelMeasurement(tx, event, op, input)
			}
			if txErr != nil {
				return txErr
			}

			if _, txErr = tx.CreateLogItem(LogItem{
				EventID:  event.ID,
				Kind:     domain.LogMeasurement,
				UserID:   input.UserID,
				FileKeys: input.FileKeys,
			}); txErr != nil {
				return txErr
			}
			return advanceToInProgress(tx, event, input.UserID)
		})
		return err
	})
	return saved, res, err
}

func saveParameterMeasurement(tx Transaction, event Event, op Operation, input MeasurementInput) (Measurement, error) {
	if op.Type != domain.OperationParameter {
		return Measurement{}, domain.InvalidStateError{Message: "operation type visual does not accept parameter measurements"}
	}
	param, ok := tx.FindParameter(*input.ParameterID)
	if !ok {
		return Measurement{}, domain.NotFoundError{Entity: domain.EntityParameter, ID: *input.ParameterID}
	}
	if param.OperationID != op.ID {
		return Measurement{}, domain.InvalidStateError{Message: "parameter does not belong to the operation"}
	}
	if existing, ok := tx.FindMeasurementByParameter(event.ID, op.ID, param.ID); ok {
		return tx.UpdateMeasurement(existing.ID, func(m *Measurement) error {
			m.Value = input.Value
			m.Feedback = input.Feedback
			m.FileKeys = input.FileKeys
			m.RecordedBy = input.UserID
			return nil
		})
	}
	return tx.CreateMeasurement(Measurement{
		EventID:     event.ID,
		OperationID: op.ID,
		ParameterID: &param.ID,
		Value:       input.Value,
		Feedback:    input.Feedback,
		FileKeys:    input.FileKeys,
		RecordedBy:  input.UserID,
	})
}

func saveLabelMeasurement(tx Transaction, event Event, op Operation, input MeasurementInput) (Measurement, error) {
	if op.Type != domain.OperationVisual {
		return Measurement{}, domain.InvalidStateError{Message: "operation type parameter does not accept label measurements"}
	}
	label, ok := tx.FindLabel(*input.LabelID)
	if !ok {
		return Measurement{}, domain.NotFoundError{Entity: domain.EntityLabel, ID: *input.LabelID}
	}
	if label.OperationID != op.ID {
		return Measurement{}, domain.InvalidStateError{Message: "label does not belong to the operation"}
	}
	// The label choice is the value; one measurement per (event, operation).
	if existing, ok := tx.FindMeasurementByOperation(event.ID, op.ID); ok {
		return tx.UpdateMeasurement(existing.ID, func(m *Measurement) error {
			m.LabelID = &label.ID
			m.Feedback = input.Feedback
			m.FileKeys = input.FileKeys
			m.RecordedBy = input.UserID
			return nil
		})
	}
	return tx.CreateMeasurement(Measurement{
		EventID:     event.ID,
		OperationID: op.ID,
		LabelID:     &label.ID,
		Feedback:    input.Feedback,
		FileKeys:    input.FileKeys,
		RecordedBy:  input.UserID,
	})
}

// OperationDataInput carries free-form feedback for an (event, operation)
// pair.
type OperationDataInput struct {
	EventID     string
	OperationID string
	Feedback    string
	FileKeys    []string
	UserID      string
}

// SaveOperationData upserts the free-form feedback record of an (event,
// operation) pair. Like measurements, the first successful write moves a
// planned or open event to inProgress.
func (s *Service) SaveOperationData(ctx context.Context, input OperationDataInput) (OperationData, Result, error) {
	var saved OperationData
	var res Result
	err := s.instrument(ctx, "save_operation_data", func(ctx context.Context) error {
		if input.Feedback == "" {
			return domain.ValidationError{Message: "feedback is required"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			event, ok := tx.FindEvent(input.EventID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEvent, ID: input.EventID}
			}
			op, ok := tx.FindOperation(input.OperationID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityOperation, ID: input.OperationID}
			}
			if op.ProcedureID != event.ProcedureID {
				return domain.InvalidStateError{Message: "operation does not belong to the event's procedure version"}
			}

			var txErr error
			if existing, ok := tx.FindOperationData(event.ID, op.ID); ok {
				saved, txErr = tx.UpdateOperationData(existing.ID, func(od *OperationData) error {
					od.Feedback = input.Feedback
					od.FileKeys = input.FileKeys
					od.RecordedBy = input.UserID
					return nil
				})
			} else {
				saved, txErr = tx.CreateOperationData(OperationData{
					EventID:     event.ID,
					OperationID: op.ID,
					Feedback:    input.Feedback,
					FileKeys:    input.FileKeys,
					RecordedBy:  input.UserID,
				})
			}
			if txErr != nil {
				return txErr
			}

			if _, txErr = tx.CreateLogItem(LogItem{
				EventID:  event.ID,
				Kind:     domain.LogOperationData,
				UserID:   input.UserID,
				FileKeys: input.FileKeys,
			}); txErr != nil {
				return txErr
			}
			return advanceToInProgress(tx, event, input.UserID)
		})
		return err
	})
	return saved, res, err
}

// advanceToInProgress moves a planned or open event to inProgress on its
// first recorded data, appending the status-change log entry. Later states
// are left alone.
func advanceToInProgress(tx Transaction, event Event, userID string) error {
	if event.Status != domain.EventPlanned && event.Status != domain.EventOpen {
		return nil
	}
	from := event.Status
	to := domain.EventInProgress
	if _, err := tx.UpdateEvent(event.ID, func(e *Event) error {
		e.Status = to
		return nil
	}); err != nil {
		return err
	}
	_, err := tx.CreateLogItem(LogItem{
		EventID:    event.ID,
		Kind:       domain.LogStatusChange,
		FromStatus: &from,
		ToStatus:   &to,
		UserID:     userID,
	})
	return err
}

// StatusUpdateInput carries an explicit event status change.
type StatusUpdateInput struct {
	EventID  string
	Status   EventStatus
	UserID   string
	Comment  *string
	FileKeys []string
}

// UpdateEventStatus applies an explicit status change and appends the audit
// entry. Entering open marks the owning equipment non-deletable; no status
// ever returns to planned.
func (s *Service) UpdateEventStatus(ctx context.Context, input StatusUpdateInput) (Event, Result, error) {
	var updated Event
	var res Result
	err := s.instrument(ctx, "update_event_status", func(ctx context.Context) error {
		if !input.Status.Valid() {
			return domain.ValidationError{Message: "unknown event status"}
		}
		if input.Status == domain.EventPlanned {
			return domain.InvalidStateError{Message: "event status cannot return to planned"}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			event, ok := tx.FindEvent(input.EventID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEvent, ID: input.EventID}
			}
			from := event.Status

			var txErr error
			updated, txErr = tx.UpdateEvent(event.ID, func(e *Event) error {
				e.Status = input.Status
				return nil
			})
			if txErr != nil {
				return txErr
			}

			if input.Status == domain.EventOpen {
				if txErr = lockEquipment(tx, event.ProcedureID); txErr != nil {
					return txErr
				}
			}

			_, txErr = tx.CreateLogItem(LogItem{
				EventID:    event.ID,
				Kind:       domain.LogStatusChange,
				FromStatus: &from,
				ToStatus:   &input.Status,
				Comment:    input.Comment,
				UserID:     input.UserID,
				FileKeys:   input.FileKeys,
			})
			return txErr
		})
		return err
	})
	return updated, res, err
}

// lockEquipment marks the equipment owning the procedure non-deletable once
// an event references it.
func lockEquipment(tx Transaction, procedureID string) error {
	proc, ok := tx.FindProcedure(procedureID)
	if !ok || proc.EquipmentID == nil {
		return nil
	}
	eq, ok := tx.FindEquipment(*proc.EquipmentID)
	if !ok || !eq.Deletable {
		return nil
	}
	_, err := tx.UpdateEquipment(eq.ID, func(e *Equipment) error {
		e.Deletable = false
		return nil
	})
	return err
}

// ChangeEventDate moves a planned or open event to a new date, appending a
// changeDate log entry. Status is unchanged.
func (s *Service) ChangeEventDate(ctx context.Context, eventID string, newDate time.Time, userID string, comment *string) (Event, Result, error) {
	var updated Event
	var res Result
	err := s.instrument(ctx, "change_event_date", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			event, ok := tx.FindEvent(eventID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEvent, ID: eventID}
			}
			if event.Status != domain.EventPlanned && event.Status != domain.EventOpen {
				return domain.InvalidStateError{Message: "only planned or open events can be rescheduled"}
			}
			oldDate := event.Date
			day := domain.DateOnly(newDate)

			var txErr error
			updated, txErr = tx.UpdateEvent(event.ID, func(e *Event) error {
				e.Date = day
				return nil
			})
			if txErr != nil {
				return txErr
			}
			_, txErr = tx.CreateLogItem(LogItem{
				EventID: event.ID,
				Kind:    domain.LogChangeDate,
				OldDate: &oldDate,
				NewDate: &day,
				Comment: comment,
				UserID:  userID,
			})
			return txErr
		})
		return err
	})
	return updated, res, err
}

// EventFilter narrows a project event listing.
type EventFilter struct {
	// Statuses keeps only events in one of the given states.
	Statuses []EventStatus
	// ProcedureID keeps only events of one procedure version.
	ProcedureID string
	// Search keeps only events whose procedure name contains the term,
	// case-insensitively.
	Search string
}

// ListEventsByProject returns project events within [start, end) ordered by
// date, narrowed by the filter.
func (s *Service) ListEventsByProject(ctx context.Context, projectID string, start, end time.Time, filter EventFilter) ([]Event, error) {
	var out []Event
	err := s.instrument(ctx, "list_events_by_project", func(ctx context.Context) error {
		if _, ok := s.store.GetProject(projectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		events := s.store.ListEventsByProject(projectID, start, end)
		statuses := make(map[EventStatus]struct{}, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses[st] = struct{}{}
		}
		search := strings.ToLower(filter.Search)
		for _, e := range events {
			if len(statuses) > 0 {
				if _, ok := statuses[e.Status]; !ok {
					continue
				}
			}
			if filter.ProcedureID != "" && e.ProcedureID != filter.ProcedureID {
				continue
			}
			if search != "" {
				proc, ok := s.store.GetProcedure(e.ProcedureID)
				if !ok || !strings.Contains(strings.ToLower(proc.Name), search) {
					continue
				}
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// EventLog returns the audit trail of an event in append order.
func (s *Service) EventLog(eventID string) []LogItem {
	return s.store.ListLogItemsByEvent(eventID)
}

// ResolveAttachments resolves file keys against the attachment store.
// Missing keys are skipped; resolution is best-effort by design of the
// attachment policy.
func (s *Service) ResolveAttachments(ctx context.Context, keys []string) []blob.Info {
	if s.blobs == nil || len(keys) == 0 {
		return nil
	}
	out := make([]blob.Info, 0, len(keys))
	for _, key := range keys {
		info, err := s.blobs.Head(ctx, key)
		if err != nil {
			s.logger.Debug("attachment skipped", "key", key, "error", err)
			continue
		}
		out = append(out, info)
	}
	return out
}

// EventAttachments resolves every file key referenced by the event's
// measurements and log entries.
func (s *Service) EventAttachments(ctx context.Context, eventID string) ([]blob.Info, error) {
	if _, ok := s.store.GetEvent(eventID); !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityEvent, ID: eventID}
	}
	var keys []string
	seen := make(map[string]struct{})
	add := func(fileKeys []string) {
		for _, k := range fileKeys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for _, m := range s.store.ListMeasurementsByEvent(eventID) {
		add(m.FileKeys)
	}
	for _, l := range s.store.ListLogItemsByEvent(eventID) {
		add(l.FileKeys)
	}
	return s.ResolveAttachments(ctx, keys), nil
}
