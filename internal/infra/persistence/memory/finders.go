package memory

import (
	"sort"
	"time"

	"pmpcore/pkg/domain"
)

func findProcedure(state *memoryState, id string) (Procedure, bool) {
	p, ok := state.procedures[id]
	if !ok {
		return Procedure{}, false
	}
	return cloneProcedure(p), true
}

func listProcedures(state *memoryState, withDeleted bool) []Procedure {
	out := make([]Procedure, 0, len(state.procedures))
	for _, p := range state.procedures {
		if !withDeleted && p.Deleted() {
			continue
		}
		out = append(out, cloneProcedure(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listOperationsByProcedure(state *memoryState, procedureID string) []Operation {
	var out []Operation
	for _, o := range state.operations {
		if o.ProcedureID == procedureID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listLabelsByOperation(state *memoryState, operationID string) []Label {
	var out []Label
	for _, l := range state.labels {
		if l.OperationID == operationID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listParametersByOperation(state *memoryState, operationID string) []Parameter {
	var out []Parameter
	for _, p := range state.parameters {
		if p.OperationID == operationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listEventsByProcedure(state *memoryState, procedureID string) []Event {
	var out []Event
	for _, e := range state.events {
		if e.ProcedureID == procedureID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

func listMeasurementsByEvent(state *memoryState, eventID string) []Measurement {
	var out []Measurement
	for _, m := range state.measurements {
		if m.EventID == eventID {
			out = append(out, cloneMeasurement(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].ID < events[j].ID
	})
}

// Transaction finders -------------------------------------------------------

// FindProject retrieves a project by ID from the transactional state.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	return p, ok
}

// FindEquipment retrieves an equipment record by ID.
func (tx *transaction) FindEquipment(id string) (Equipment, bool) {
	e, ok := tx.state.equipment[id]
	if !ok {
		return Equipment{}, false
	}
	return cloneEquipment(e), true
}

// FindUnit retrieves a measurement unit by ID.
func (tx *transaction) FindUnit(id string) (Unit, bool) {
	u, ok := tx.state.units[id]
	return u, ok
}

// FindProcedure retrieves a procedure version by ID, tombstoned versions included.
func (tx *transaction) FindProcedure(id string) (Procedure, bool) {
	return findProcedure(&tx.state, id)
}

// FindOperation retrieves an operation by ID.
func (tx *transaction) FindOperation(id string) (Operation, bool) {
	o, ok := tx.state.operations[id]
	return o, ok
}

// FindLabel retrieves a label by ID.
func (tx *transaction) FindLabel(id string) (Label, bool) {
	l, ok := tx.state.labels[id]
	return l, ok
}

// FindParameter retrieves a parameter by ID.
func (tx *transaction) FindParameter(id string) (Parameter, bool) {
	p, ok := tx.state.parameters[id]
	return p, ok
}

// FindEvent retrieves an event by ID.
func (tx *transaction) FindEvent(id string) (Event, bool) {
	e, ok := tx.state.events[id]
	return e, ok
}

// FindMeasurementByParameter locates the unique measurement keyed by
// (event, operation, parameter).
func (tx *transaction) FindMeasurementByParameter(eventID, operationID, parameterID string) (Measurement, bool) {
	for _, m := range tx.state.measurements {
		if m.EventID == eventID && m.OperationID == operationID && m.ParameterID != nil && *m.ParameterID == parameterID {
			return cloneMeasurement(m), true
		}
	}
	return Measurement{}, false
}

// FindMeasurementByOperation locates the unique label measurement keyed by
// (event, operation).
func (tx *transaction) FindMeasurementByOperation(eventID, operationID string) (Measurement, bool) {
	for _, m := range tx.state.measurements {
		if m.EventID == eventID && m.OperationID == operationID && m.LabelID != nil {
			return cloneMeasurement(m), true
		}
	}
	return Measurement{}, false
}

// FindOperationData locates the unique feedback record keyed by (event, operation).
func (tx *transaction) FindOperationData(eventID, operationID string) (OperationData, bool) {
	for _, od := range tx.state.opdata {
		if od.EventID == eventID && od.OperationID == operationID {
			return cloneOperationData(od), true
		}
	}
	return OperationData{}, false
}

// ListOperationsByProcedure returns the ordered operations of a procedure version.
func (tx *transaction) ListOperationsByProcedure(procedureID string) []Operation {
	return listOperationsByProcedure(&tx.state, procedureID)
}

// ListLabelsByOperation returns the labels of a visual operation.
func (tx *transaction) ListLabelsByOperation(operationID string) []Label {
	return listLabelsByOperation(&tx.state, operationID)
}

// ListParametersByOperation returns the parameters of a parameter operation.
func (tx *transaction) ListParametersByOperation(operationID string) []Parameter {
	return listParametersByOperation(&tx.state, operationID)
}

// ListEventsByProcedure returns the events of a procedure version ordered by date.
func (tx *transaction) ListEventsByProcedure(procedureID string) []Event {
	return listEventsByProcedure(&tx.state, procedureID)
}

// ListMeasurementsByEvent returns the measurements attached to an event.
func (tx *transaction) ListMeasurementsByEvent(eventID string) []Measurement {
	return listMeasurementsByEvent(&tx.state, eventID)
}

// View methods --------------------------------------------------------------

// ListProcedures returns procedure versions in the snapshot.
func (v transactionView) ListProcedures(withDeleted bool) []Procedure {
	return listProcedures(v.state, withDeleted)
}

// ListEvents returns all events in the snapshot ordered by date.
func (v transactionView) ListEvents() []Event {
	out := make([]Event, 0, len(v.state.events))
	for _, e := range v.state.events {
		out = append(out, e)
	}
	sortEvents(out)
	return out
}

// FindProcedure retrieves a procedure version from the snapshot.
func (v transactionView) FindProcedure(id string) (Procedure, bool) {
	return findProcedure(v.state, id)
}

// FindOperation retrieves an operation from the snapshot.
func (v transactionView) FindOperation(id string) (Operation, bool) {
	o, ok := v.state.operations[id]
	return o, ok
}

// FindEvent retrieves an event from the snapshot.
func (v transactionView) FindEvent(id string) (Event, bool) {
	e, ok := v.state.events[id]
	return e, ok
}

// ListOperationsByProcedure returns the ordered operations of a procedure version.
func (v transactionView) ListOperationsByProcedure(procedureID string) []Operation {
	return listOperationsByProcedure(v.state, procedureID)
}

// ListLabelsByOperation returns the labels of a visual operation.
func (v transactionView) ListLabelsByOperation(operationID string) []Label {
	return listLabelsByOperation(v.state, operationID)
}

// ListParametersByOperation returns the parameters of a parameter operation.
func (v transactionView) ListParametersByOperation(operationID string) []Parameter {
	return listParametersByOperation(v.state, operationID)
}

// ListMeasurementsByEvent returns the measurements attached to an event.
func (v transactionView) ListMeasurementsByEvent(eventID string) []Measurement {
	return listMeasurementsByEvent(v.state, eventID)
}

// Committed-state read helpers ----------------------------------------------

// GetProject retrieves a project by ID from committed state.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	return p, ok
}

// ListProjects returns all projects from committed state.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetEquipment retrieves an equipment record by ID.
func (s *Store) GetEquipment(id string) (Equipment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.equipment[id]
	if !ok {
		return Equipment{}, false
	}
	return cloneEquipment(e), true
}

// GetProcedure retrieves a procedure version by ID, tombstoned versions included.
func (s *Store) GetProcedure(id string) (Procedure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findProcedure(&s.state, id)
}

// ListProcedures returns procedure versions, optionally including tombstones.
func (s *Store) ListProcedures(withDeleted bool) []Procedure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProcedures(&s.state, withDeleted)
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.events[id]
	return e, ok
}

// ListEventsByProject returns project events within [start, end) ordered by date.
func (s *Store) ListEventsByProject(projectID string, start, end time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from := domain.DateOnly(start)
	to := domain.DateOnly(end)
	var out []Event
	for _, e := range s.state.events {
		if e.ProjectID != projectID {
			continue
		}
		if e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out
}

// ListMeasurementsByEvent returns the measurements attached to an event.
func (s *Store) ListMeasurementsByEvent(eventID string) []Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMeasurementsByEvent(&s.state, eventID)
}

// ListLogItemsByEvent returns the audit trail of an event in append order.
func (s *Store) ListLogItemsByEvent(eventID string) []LogItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LogItem
	for _, l := range s.state.logs {
		if l.EventID == eventID {
			out = append(out, cloneLogItem(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListUnits returns all measurement units.
func (s *Store) ListUnits() []Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Unit, 0, len(s.state.units))
	for _, u := range s.state.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
