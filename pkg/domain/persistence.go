package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. A transaction either commits as a
// whole or leaves the store untouched; the clone/repoint/soft-delete sequence
// of a versioning edit relies on this.
type Transaction interface {
	Snapshot() TransactionView
	// Now returns the wall-clock instant pinned for the lifetime of the
	// transaction. Cutover computation derives from it so tests can freeze time.
	Now() time.Time

	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateEquipment(Equipment) (Equipment, error)
	UpdateEquipment(id string, mutator func(*Equipment) error) (Equipment, error)
	DeleteEquipment(id string) error
	CreateUnit(Unit) (Unit, error)
	DeleteUnit(id string) error

	CreateProcedure(Procedure) (Procedure, error)
	UpdateProcedure(id string, mutator func(*Procedure) error) (Procedure, error)
	DeleteProcedure(id string) error
	CreateOperation(Operation) (Operation, error)
	UpdateOperation(id string, mutator func(*Operation) error) (Operation, error)
	DeleteOperation(id string) error
	CreateLabel(Label) (Label, error)
	UpdateLabel(id string, mutator func(*Label) error) (Label, error)
	DeleteLabel(id string) error
	CreateParameter(Parameter) (Parameter, error)
	UpdateParameter(id string, mutator func(*Parameter) error) (Parameter, error)
	DeleteParameter(id string) error

	// CreateEvents persists a generated batch in one set-based write.
	CreateEvents([]Event) ([]Event, error)
	UpdateEvent(id string, mutator func(*Event) error) (Event, error)
	// DeleteEventsByProcedure removes events of the procedure dated at or
	// after from, returning the number removed.
	DeleteEventsByProcedure(procedureID string, from time.Time) (int, error)
	// RepointEvents moves events of oldID dated at or after from to newID,
	// returning the number repointed.
	RepointEvents(oldID, newID string, from time.Time) (int, error)

	CreateMeasurement(Measurement) (Measurement, error)
	UpdateMeasurement(id string, mutator func(*Measurement) error) (Measurement, error)
	CreateOperationData(OperationData) (OperationData, error)
	UpdateOperationData(id string, mutator func(*OperationData) error) (OperationData, error)
	CreateLogItem(LogItem) (LogItem, error)

	FindProject(id string) (Project, bool)
	FindEquipment(id string) (Equipment, bool)
	FindUnit(id string) (Unit, bool)
	FindProcedure(id string) (Procedure, bool)
	FindOperation(id string) (Operation, bool)
	FindLabel(id string) (Label, bool)
	FindParameter(id string) (Parameter, bool)
	FindEvent(id string) (Event, bool)
	FindMeasurementByParameter(eventID, operationID, parameterID string) (Measurement, bool)
	FindMeasurementByOperation(eventID, operationID string) (Measurement, bool)
	FindOperationData(eventID, operationID string) (OperationData, bool)

	ListOperationsByProcedure(procedureID string) []Operation
	ListLabelsByOperation(operationID string) []Label
	ListParametersByOperation(operationID string) []Parameter
	ListEventsByProcedure(procedureID string) []Event
	ListMeasurementsByEvent(eventID string) []Measurement
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListProcedures(withDeleted bool) []Procedure
	ListEvents() []Event
	FindProcedure(id string) (Procedure, bool)
	FindOperation(id string) (Operation, bool)
	FindEvent(id string) (Event, bool)
	ListOperationsByProcedure(procedureID string) []Operation
	ListLabelsByOperation(operationID string) []Label
	ListParametersByOperation(operationID string) []Parameter
	ListMeasurementsByEvent(eventID string) []Measurement
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetEquipment(id string) (Equipment, bool)
	GetProcedure(id string) (Procedure, bool)
	ListProcedures(withDeleted bool) []Procedure
	GetEvent(id string) (Event, bool)
	ListEventsByProject(projectID string, start, end time.Time) []Event
	ListMeasurementsByEvent(eventID string) []Measurement
	ListLogItemsByEvent(eventID string) []LogItem
	ListUnits() []Unit
}
