// Package core implements the scheduling service: recurrence materialization,
// the copy-on-write procedure versioning policy, the event lifecycle, and the
// daily-check batch, on top of a pluggable persistent store.
package core

import (
	"pmpcore/pkg/domain"
)

type (
	// Project aliases domain.Project.
	Project = domain.Project
	// Equipment aliases domain.Equipment.
	Equipment = domain.Equipment
	// Unit aliases domain.Unit.
	Unit = domain.Unit
	// Procedure aliases domain.Procedure.
	Procedure = domain.Procedure
	// Operation aliases domain.Operation.
	Operation = domain.Operation
	// Label aliases domain.Label.
	Label = domain.Label
	// Parameter aliases domain.Parameter.
	Parameter = domain.Parameter
	// Event aliases domain.Event.
	Event = domain.Event
	// Measurement aliases domain.Measurement.
	Measurement = domain.Measurement
	// OperationData aliases domain.OperationData.
	OperationData = domain.OperationData
	// LogItem aliases domain.LogItem.
	LogItem = domain.LogItem
	// Change aliases domain.Change.
	Change = domain.Change
	// Result aliases domain.Result.
	Result = domain.Result
	// Violation aliases domain.Violation.
	Violation = domain.Violation
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// EntityType aliases domain.EntityType.
	EntityType = domain.EntityType
	// Frequency aliases domain.Frequency.
	Frequency = domain.Frequency
	// ProcedureKind aliases domain.ProcedureKind.
	ProcedureKind = domain.ProcedureKind
	// OperationType aliases domain.OperationType.
	OperationType = domain.OperationType
	// EventStatus aliases domain.EventStatus.
	EventStatus = domain.EventStatus
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
