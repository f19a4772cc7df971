// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the maintenance scheduling core.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityEquipment identifies an equipment record.
	EntityEquipment EntityType = "equipment"
	// EntityUnit identifies a measurement unit record.
	EntityUnit EntityType = "unit"
	// EntityProcedure identifies a procedure version record.
	EntityProcedure EntityType = "procedure"
	// EntityOperation identifies an operation record.
	EntityOperation EntityType = "operation"
	// EntityLabel identifies a label record under a visual operation.
	EntityLabel EntityType = "label"
	// EntityParameter identifies a parameter record under a parameter operation.
	EntityParameter EntityType = "parameter"
	// EntityEvent identifies a materialized schedule event record.
	EntityEvent EntityType = "event"
	// EntityMeasurement identifies a recorded measurement record.
	EntityMeasurement EntityType = "measurement"
	// EntityOperationData identifies free-form operation feedback captured on an event.
	EntityOperationData EntityType = "operation_data"
	// EntityLogItem identifies an append-only event audit entry.
	EntityLogItem EntityType = "log_item"
)

// ProcedureKind distinguishes recurring maintenance routines from daily checks.
type ProcedureKind string

// Canonical procedure kinds.
const (
	KindMaintenance ProcedureKind = "maintenance"
	KindDailyCheck  ProcedureKind = "daily_check"
)

// Frequency enumerates the fixed recurrence vocabulary driving event generation.
type Frequency string

// Canonical frequencies. Daily is reserved for daily-check procedures.
const (
	FrequencyDaily        Frequency = "daily"
	FrequencyWeekly       Frequency = "weekly"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyQuarterly    Frequency = "quarterly"
	FrequencySemiannually Frequency = "semiannually"
	FrequencyAnnually     Frequency = "annually"
)

// Valid reports whether f is one of the canonical frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencySemiannually, FrequencyAnnually:
		return true
	}
	return false
}

// OperationType discriminates which child collection an operation may hold.
type OperationType string

// Canonical operation types. A visual operation holds labels, a parameter
// operation holds parameters; never both.
const (
	OperationVisual    OperationType = "visual"
	OperationParameter OperationType = "parameter"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	return t == OperationVisual || t == OperationParameter
}

// EventStatus enumerates the lifecycle states of a schedule event.
type EventStatus string

// Canonical event statuses.
const (
	// EventPlanned is the initial state; no human action yet.
	EventPlanned EventStatus = "planned"
	// EventOpen indicates an inspector explicitly started work.
	EventOpen EventStatus = "open"
	// EventInProgress is entered automatically on the first measurement or
	// operation-data write.
	EventInProgress EventStatus = "in_progress"
	// EventOnHold indicates work paused pending external input.
	EventOnHold EventStatus = "on_hold"
	// EventResolved indicates the event is complete.
	EventResolved EventStatus = "resolved"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPlanned, EventOpen, EventInProgress, EventOnHold, EventResolved:
		return true
	}
	return false
}

// LogKind classifies event audit entries.
type LogKind string

// Canonical log kinds.
const (
	LogStatusChange  LogKind = "status_change"
	LogMeasurement   LogKind = "measurement"
	LogOperationData LogKind = "operation_data"
	LogChangeDate    LogKind = "change_date"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project groups equipment and schedules under one time and cost scope.
type Project struct {
	Base
	Code      string    `json:"code"`
	Title     string    `json:"title"`
	Active    bool      `json:"active"`
	StartDate time.Time `json:"start_date"`
}

// Equipment is a physical asset that maintenance procedures target.
type Equipment struct {
	Base
	Name       string  `json:"name"`
	ProjectID  string  `json:"project_id"`
	LocationID *string `json:"location_id,omitempty"`
	ReadOnly   bool    `json:"read_only"`
	Deletable  bool    `json:"deletable"`
}

// Unit is a measurement unit referenced by parameters.
type Unit struct {
	Base
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Procedure is one definition-snapshot of a maintenance or daily-check
// routine. A version that has been measured against is immutable; edits
// produce a new version and tombstone the old one.
type Procedure struct {
	Base
	Kind            ProcedureKind `json:"kind"`
	Name            string        `json:"name"`
	ProjectID       string        `json:"project_id"`
	EquipmentID     *string       `json:"equipment_id,omitempty"`
	LocationID      *string       `json:"location_id,omitempty"`
	SubcontractorID *string       `json:"subcontractor_id,omitempty"`
	Frequency       Frequency     `json:"frequency"`
	StartDate       *time.Time    `json:"start_date,omitempty"`
	IsFromStandard  bool          `json:"is_from_standard"`
	DeletedAt       *time.Time    `json:"deleted_at,omitempty"`
}

// Deleted reports whether the version carries a tombstone.
func (p Procedure) Deleted() bool { return p.DeletedAt != nil }

// Operation belongs to exactly one procedure version. Its type determines
// which child collection is legal.
type Operation struct {
	Base
	ProcedureID string        `json:"procedure_id"`
	Name        string        `json:"name"`
	Type        OperationType `json:"type"`
	Position    int           `json:"position"`
}

// Label is a selectable finding under a visual operation.
type Label struct {
	Base
	OperationID string `json:"operation_id"`
	Name        string `json:"name"`
}

// Parameter is a measurable quantity under a parameter operation.
type Parameter struct {
	Base
	OperationID string  `json:"operation_id"`
	Name        string  `json:"name"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	UnitID      string  `json:"unit_id"`
}

// Event is one calendar occurrence of a procedure version, the record
// against which field measurements are taken.
type Event struct {
	Base
	ProcedureID string      `json:"procedure_id"`
	ProjectID   string      `json:"project_id"`
	Date        time.Time   `json:"date"`
	Status      EventStatus `json:"status"`
}

// Measurement captures one recorded value or finding on an event. Parameter
// measurements are unique per (event, operation, parameter); label
// measurements are unique per (event, operation) since the chosen label is
// itself the value.
type Measurement struct {
	Base
	EventID     string   `json:"event_id"`
	OperationID string   `json:"operation_id"`
	LabelID     *string  `json:"label_id,omitempty"`
	ParameterID *string  `json:"parameter_id,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Feedback    *string  `json:"feedback,omitempty"`
	FileKeys    []string `json:"file_keys,omitempty"`
	RecordedBy  string   `json:"recorded_by"`
}

// OperationData captures free-form feedback on an (event, operation) pair
// without a label or parameter reference. Unique per pair.
type OperationData struct {
	Base
	EventID     string   `json:"event_id"`
	OperationID string   `json:"operation_id"`
	Feedback    string   `json:"feedback"`
	FileKeys    []string `json:"file_keys,omitempty"`
	RecordedBy  string   `json:"recorded_by"`
}

// LogItem is an append-only audit entry on an event. Seq is assigned
// monotonically by the store so the trail keeps its write order even when
// several entries share one transaction timestamp.
type LogItem struct {
	Base
	Seq        uint64       `json:"seq"`
	EventID    string       `json:"event_id"`
	Kind       LogKind      `json:"kind"`
	FromStatus *EventStatus `json:"from_status,omitempty"`
	ToStatus   *EventStatus `json:"to_status,omitempty"`
	OldDate    *time.Time   `json:"old_date,omitempty"`
	NewDate    *time.Time   `json:"new_date,omitempty"`
	Comment    *string      `json:"comment,omitempty"`
	UserID     string       `json:"user_id"`
	FileKeys   []string     `json:"file_keys,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
