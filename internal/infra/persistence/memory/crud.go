package memory

import (
	"fmt"
	"time"

	"pmpcore/pkg/domain"
)

// CreateProject stores a project record.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProject mutates an existing project record.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = current
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteProject removes a project from state.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateEquipment stores an equipment record.
func (tx *transaction) CreateEquipment(e Equipment) (Equipment, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.equipment[e.ID]; exists {
		return Equipment{}, fmt.Errorf("equipment %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.equipment[e.ID] = cloneEquipment(e)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionCreate, After: cloneEquipment(e)})
	return cloneEquipment(e), nil
}

// UpdateEquipment mutates an equipment record.
func (tx *transaction) UpdateEquipment(id string, mutator func(*Equipment) error) (Equipment, error) {
	current, ok := tx.state.equipment[id]
	if !ok {
		return Equipment{}, domain.NotFoundError{Entity: domain.EntityEquipment, ID: id}
	}
	before := cloneEquipment(current)
	if err := mutator(&current); err != nil {
		return Equipment{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.equipment[id] = cloneEquipment(current)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionUpdate, Before: before, After: cloneEquipment(current)})
	return cloneEquipment(current), nil
}

// DeleteEquipment removes an equipment record.
func (tx *transaction) DeleteEquipment(id string) error {
	current, ok := tx.state.equipment[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEquipment, ID: id}
	}
	delete(tx.state.equipment, id)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionDelete, Before: cloneEquipment(current)})
	return nil
}

// CreateUnit stores a measurement unit.
func (tx *transaction) CreateUnit(u Unit) (Unit, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.units[u.ID]; exists {
		return Unit{}, fmt.Errorf("unit %q already exists", u.ID)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.units[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUnit, Action: domain.ActionCreate, After: u})
	return u, nil
}

// DeleteUnit removes a measurement unit.
func (tx *transaction) DeleteUnit(id string) error {
	current, ok := tx.state.units[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUnit, ID: id}
	}
	delete(tx.state.units, id)
	tx.recordChange(Change{Entity: domain.EntityUnit, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateProcedure stores a procedure version.
func (tx *transaction) CreateProcedure(p Procedure) (Procedure, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.procedures[p.ID]; exists {
		return Procedure{}, fmt.Errorf("procedure %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.procedures[p.ID] = cloneProcedure(p)
	tx.recordChange(Change{Entity: domain.EntityProcedure, Action: domain.ActionCreate, After: cloneProcedure(p)})
	return cloneProcedure(p), nil
}

// UpdateProcedure mutates a procedure version.
func (tx *transaction) UpdateProcedure(id string, mutator func(*Procedure) error) (Procedure, error) {
	current, ok := tx.state.procedures[id]
	if !ok {
		return Procedure{}, domain.NotFoundError{Entity: domain.EntityProcedure, ID: id}
	}
	before := cloneProcedure(current)
	if err := mutator(&current); err != nil {
		return Procedure{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.procedures[id] = cloneProcedure(current)
	tx.recordChange(Change{Entity: domain.EntityProcedure, Action: domain.ActionUpdate, Before: before, After: cloneProcedure(current)})
	return cloneProcedure(current), nil
}

// DeleteProcedure hard-deletes a procedure version.
func (tx *transaction) DeleteProcedure(id string) error {
	current, ok := tx.state.procedures[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProcedure, ID: id}
	}
	delete(tx.state.procedures, id)
	tx.recordChange(Change{Entity: domain.EntityProcedure, Action: domain.ActionDelete, Before: cloneProcedure(current)})
	return nil
}

// CreateOperation stores an operation under a procedure version.
func (tx *transaction) CreateOperation(o Operation) (Operation, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.operations[o.ID]; exists {
		return Operation{}, fmt.Errorf("operation %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.operations[o.ID] = o
	tx.recordChange(Change{Entity: domain.EntityOperation, Action: domain.ActionCreate, After: o})
	return o, nil
}

// UpdateOperation mutates an operation.
func (tx *transaction) UpdateOperation(id string, mutator func(*Operation) error) (Operation, error) {
	current, ok := tx.state.operations[id]
	if !ok {
		return Operation{}, domain.NotFoundError{Entity: domain.EntityOperation, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Operation{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.operations[id] = current
	tx.recordChange(Change{Entity: domain.EntityOperation, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteOperation removes an operation and cascades to its children.
func (tx *transaction) DeleteOperation(id string) error {
	current, ok := tx.state.operations[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOperation, ID: id}
	}
	for labelID, label := range tx.state.labels {
		if label.OperationID == id {
			delete(tx.state.labels, labelID)
		}
	}
	for parameterID, parameter := range tx.state.parameters {
		if parameter.OperationID == id {
			delete(tx.state.parameters, parameterID)
		}
	}
	delete(tx.state.operations, id)
	tx.recordChange(Change{Entity: domain.EntityOperation, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateLabel stores a label under a visual operation.
func (tx *transaction) CreateLabel(l Label) (Label, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.labels[l.ID]; exists {
		return Label{}, fmt.Errorf("label %q already exists", l.ID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.labels[l.ID] = l
	tx.recordChange(Change{Entity: domain.EntityLabel, Action: domain.ActionCreate, After: l})
	return l, nil
}

// UpdateLabel mutates a label.
func (tx *transaction) UpdateLabel(id string, mutator func(*Label) error) (Label, error) {
	current, ok := tx.state.labels[id]
	if !ok {
		return Label{}, domain.NotFoundError{Entity: domain.EntityLabel, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Label{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.labels[id] = current
	tx.recordChange(Change{Entity: domain.EntityLabel, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteLabel removes a label.
func (tx *transaction) DeleteLabel(id string) error {
	current, ok := tx.state.labels[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityLabel, ID: id}
	}
	delete(tx.state.labels, id)
	tx.recordChange(Change{Entity: domain.EntityLabel, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateParameter stores a parameter under a parameter operation.
func (tx *transaction) CreateParameter(p Parameter) (Parameter, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.parameters[p.ID]; exists {
		return Parameter{}, fmt.Errorf("parameter %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.parameters[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityParameter, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateParameter mutates a parameter.
func (tx *transaction) UpdateParameter(id string, mutator func(*Parameter) error) (Parameter, error) {
	current, ok := tx.state.parameters[id]
	if !ok {
		return Parameter{}, domain.NotFoundError{Entity: domain.EntityParameter, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Parameter{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.parameters[id] = current
	tx.recordChange(Change{Entity: domain.EntityParameter, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteParameter removes a parameter.
func (tx *transaction) DeleteParameter(id string) error {
	current, ok := tx.state.parameters[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityParameter, ID: id}
	}
	delete(tx.state.parameters, id)
	tx.recordChange(Change{Entity: domain.EntityParameter, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateEvents persists a generated batch of events in one write.
func (tx *transaction) CreateEvents(events []Event) ([]Event, error) {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			e.ID = tx.store.newID()
		}
		if _, exists := tx.state.events[e.ID]; exists {
			return nil, fmt.Errorf("event %q already exists", e.ID)
		}
		if e.Status == "" {
			e.Status = domain.EventPlanned
		}
		e.Date = domain.DateOnly(e.Date)
		e.CreatedAt = tx.now
		e.UpdatedAt = tx.now
		tx.state.events[e.ID] = e
		tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionCreate, After: e})
		out = append(out, e)
	}
	return out, nil
}

// UpdateEvent mutates an event record.
func (tx *transaction) UpdateEvent(id string, mutator func(*Event) error) (Event, error) {
	current, ok := tx.state.events[id]
	if !ok {
		return Event{}, domain.NotFoundError{Entity: domain.EntityEvent, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Event{}, err
	}
	current.ID = id
	current.Date = domain.DateOnly(current.Date)
	current.UpdatedAt = tx.now
	tx.state.events[id] = current
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteEventsByProcedure removes events of the procedure dated at or after from.
func (tx *transaction) DeleteEventsByProcedure(procedureID string, from time.Time) (int, error) {
	cutoff := domain.DateOnly(from)
	removed := 0
	for id, event := range tx.state.events {
		if event.ProcedureID != procedureID || event.Date.Before(cutoff) {
			continue
		}
		for mID, m := range tx.state.measurements {
			if m.EventID == id {
				delete(tx.state.measurements, mID)
			}
		}
		for odID, od := range tx.state.opdata {
			if od.EventID == id {
				delete(tx.state.opdata, odID)
			}
		}
		for logID, log := range tx.state.logs {
			if log.EventID == id {
				delete(tx.state.logs, logID)
			}
		}
		delete(tx.state.events, id)
		tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionDelete, Before: event})
		removed++
	}
	return removed, nil
}

// RepointEvents moves events of oldID dated at or after from to newID.
func (tx *transaction) RepointEvents(oldID, newID string, from time.Time) (int, error) {
	if _, ok := tx.state.procedures[newID]; !ok {
		return 0, domain.NotFoundError{Entity: domain.EntityProcedure, ID: newID}
	}
	cutoff := domain.DateOnly(from)
	moved := 0
	for id, event := range tx.state.events {
		if event.ProcedureID != oldID || event.Date.Before(cutoff) {
			continue
		}
		before := event
		event.ProcedureID = newID
		event.UpdatedAt = tx.now
		tx.state.events[id] = event
		tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Before: before, After: event})
		moved++
	}
	return moved, nil
}

// CreateMeasurement stores a measurement record.
func (tx *transaction) CreateMeasurement(m Measurement) (Measurement, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.measurements[m.ID]; exists {
		return Measurement{}, fmt.Errorf("measurement %q already exists", m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.measurements[m.ID] = cloneMeasurement(m)
	tx.recordChange(Change{Entity: domain.EntityMeasurement, Action: domain.ActionCreate, After: cloneMeasurement(m)})
	return cloneMeasurement(m), nil
}

// UpdateMeasurement mutates a measurement record.
func (tx *transaction) UpdateMeasurement(id string, mutator func(*Measurement) error) (Measurement, error) {
	current, ok := tx.state.measurements[id]
	if !ok {
		return Measurement{}, domain.NotFoundError{Entity: domain.EntityMeasurement, ID: id}
	}
	before := cloneMeasurement(current)
	if err := mutator(&current); err != nil {
		return Measurement{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.measurements[id] = cloneMeasurement(current)
	tx.recordChange(Change{Entity: domain.EntityMeasurement, Action: domain.ActionUpdate, Before: before, After: cloneMeasurement(current)})
	return cloneMeasurement(current), nil
}

// CreateOperationData stores an operation feedback record.
func (tx *transaction) CreateOperationData(od OperationData) (OperationData, error) {
	if od.ID == "" {
		od.ID = tx.store.newID()
	}
	if _, exists := tx.state.opdata[od.ID]; exists {
		return OperationData{}, fmt.Errorf("operation data %q already exists", od.ID)
	}
	od.CreatedAt = tx.now
	od.UpdatedAt = tx.now
	tx.state.opdata[od.ID] = cloneOperationData(od)
	tx.recordChange(Change{Entity: domain.EntityOperationData, Action: domain.ActionCreate, After: cloneOperationData(od)})
	return cloneOperationData(od), nil
}

// UpdateOperationData mutates an operation feedback record.
func (tx *transaction) UpdateOperationData(id string, mutator func(*OperationData) error) (OperationData, error) {
	current, ok := tx.state.opdata[id]
	if !ok {
		return OperationData{}, domain.NotFoundError{Entity: domain.EntityOperationData, ID: id}
	}
	before := cloneOperationData(current)
	if err := mutator(&current); err != nil {
		return OperationData{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.opdata[id] = cloneOperationData(current)
	tx.recordChange(Change{Entity: domain.EntityOperationData, Action: domain.ActionUpdate, Before: before, After: cloneOperationData(current)})
	return cloneOperationData(current), nil
}

// CreateLogItem appends an audit entry; log items are never updated or removed.
func (tx *transaction) CreateLogItem(l LogItem) (LogItem, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.logs[l.ID]; exists {
		return LogItem{}, fmt.Errorf("log item %q already exists", l.ID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.logSeq++
	l.Seq = tx.state.logSeq
	tx.state.logs[l.ID] = cloneLogItem(l)
	tx.recordChange(Change{Entity: domain.EntityLogItem, Action: domain.ActionCreate, After: cloneLogItem(l)})
	return cloneLogItem(l), nil
}
