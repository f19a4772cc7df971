// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"pmpcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Project aliases domain.Project for in-memory persistence operations.
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
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	projects     map[string]Project
	equipment    map[string]Equipment
	units        map[string]Unit
	procedures   map[string]Procedure
	operations   map[string]Operation
	labels       map[string]Label
	parameters   map[string]Parameter
	events       map[string]Event
	measurements map[string]Measurement
	opdata       map[string]OperationData
	logs         map[string]LogItem
	// logSeq is the last audit sequence number handed out. It lives in the
	// state so a rolled-back transaction cannot leave gaps behind.
	logSeq uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Projects      map[string]Project       `json:"projects"`
	Equipment     map[string]Equipment     `json:"equipment"`
	Units         map[string]Unit          `json:"units"`
	Procedures    map[string]Procedure     `json:"procedures"`
	Operations    map[string]Operation     `json:"operations"`
	Labels        map[string]Label         `json:"labels"`
	Parameters    map[string]Parameter     `json:"parameters"`
	Events        map[string]Event         `json:"events"`
	Measurements  map[string]Measurement   `json:"measurements"`
	OperationData map[string]OperationData `json:"operation_data"`
	Logs          map[string]LogItem       `json:"logs"`
	LogSeq        uint64                   `json:"log_seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects:     make(map[string]Project),
		equipment:    make(map[string]Equipment),
		units:        make(map[string]Unit),
		procedures:   make(map[string]Procedure),
		operations:   make(map[string]Operation),
		labels:       make(map[string]Label),
		parameters:   make(map[string]Parameter),
		events:       make(map[string]Event),
		measurements: make(map[string]Measurement),
		opdata:       make(map[string]OperationData),
		logs:         make(map[string]LogItem),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Projects:      make(map[string]Project, len(state.projects)),
		Equipment:     make(map[string]Equipment, len(state.equipment)),
		Units:         make(map[string]Unit, len(state.units)),
		Procedures:    make(map[string]Procedure, len(state.procedures)),
		Operations:    make(map[string]Operation, len(state.operations)),
		Labels:        make(map[string]Label, len(state.labels)),
		Parameters:    make(map[string]Parameter, len(state.parameters)),
		Events:        make(map[string]Event, len(state.events)),
		Measurements:  make(map[string]Measurement, len(state.measurements)),
		OperationData: make(map[string]OperationData, len(state.opdata)),
		Logs:          make(map[string]LogItem, len(state.logs)),
	}
	for k, v := range state.projects {
		s.Projects[k] = v
	}
	for k, v := range state.equipment {
		s.Equipment[k] = cloneEquipment(v)
	}
	for k, v := range state.units {
		s.Units[k] = v
	}
	for k, v := range state.procedures {
		s.Procedures[k] = cloneProcedure(v)
	}
	for k, v := range state.operations {
		s.Operations[k] = v
	}
	for k, v := range state.labels {
		s.Labels[k] = v
	}
	for k, v := range state.parameters {
		s.Parameters[k] = v
	}
	for k, v := range state.events {
		s.Events[k] = v
	}
	for k, v := range state.measurements {
		s.Measurements[k] = cloneMeasurement(v)
	}
	for k, v := range state.opdata {
		s.OperationData[k] = cloneOperationData(v)
	}
	for k, v := range state.logs {
		s.Logs[k] = cloneLogItem(v)
	}
	s.LogSeq = state.logSeq
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Projects {
		state.projects[k] = v
	}
	for k, v := range s.Equipment {
		state.equipment[k] = cloneEquipment(v)
	}
	for k, v := range s.Units {
		state.units[k] = v
	}
	for k, v := range s.Procedures {
		state.procedures[k] = cloneProcedure(v)
	}
	for k, v := range s.Operations {
		state.operations[k] = v
	}
	for k, v := range s.Labels {
		state.labels[k] = v
	}
	for k, v := range s.Parameters {
		state.parameters[k] = v
	}
	for k, v := range s.Events {
		state.events[k] = v
	}
	for k, v := range s.Measurements {
		state.measurements[k] = cloneMeasurement(v)
	}
	for k, v := range s.OperationData {
		state.opdata[k] = cloneOperationData(v)
	}
	for k, v := range s.Logs {
		state.logs[k] = cloneLogItem(v)
	}
	state.logSeq = s.LogSeq
	// Snapshots written before sequence tracking carry LogSeq 0; resume the
	// counter above the highest imported entry.
	for _, l := range state.logs {
		if l.Seq > state.logSeq {
			state.logSeq = l.Seq
		}
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from durable backends: nil maps
// become empty, and children whose parent rows are gone are dropped so stale
// snapshots cannot resurrect orphans.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Projects == nil {
		snapshot.Projects = map[string]Project{}
	}
	if snapshot.Equipment == nil {
		snapshot.Equipment = map[string]Equipment{}
	}
	if snapshot.Units == nil {
		snapshot.Units = map[string]Unit{}
	}
	if snapshot.Procedures == nil {
		snapshot.Procedures = map[string]Procedure{}
	}
	if snapshot.Operations == nil {
		snapshot.Operations = map[string]Operation{}
	}
	if snapshot.Labels == nil {
		snapshot.Labels = map[string]Label{}
	}
	if snapshot.Parameters == nil {
		snapshot.Parameters = map[string]Parameter{}
	}
	if snapshot.Events == nil {
		snapshot.Events = map[string]Event{}
	}
	if snapshot.Measurements == nil {
		snapshot.Measurements = map[string]Measurement{}
	}
	if snapshot.OperationData == nil {
		snapshot.OperationData = map[string]OperationData{}
	}
	if snapshot.Logs == nil {
		snapshot.Logs = map[string]LogItem{}
	}

	procedureExists := func(id string) bool {
		_, ok := snapshot.Procedures[id]
		return ok
	}
	operationExists := func(id string) bool {
		_, ok := snapshot.Operations[id]
		return ok
	}
	eventExists := func(id string) bool {
		_, ok := snapshot.Events[id]
		return ok
	}

	for id, op := range snapshot.Operations {
		if !procedureExists(op.ProcedureID) {
			delete(snapshot.Operations, id)
		}
	}
	for id, label := range snapshot.Labels {
		if !operationExists(label.OperationID) {
			delete(snapshot.Labels, id)
		}
	}
	for id, parameter := range snapshot.Parameters {
		if !operationExists(parameter.OperationID) {
			delete(snapshot.Parameters, id)
		}
	}
	// Events deliberately survive the loss of their procedure version only
	// when the version is tombstoned, never when it is gone entirely.
	for id, event := range snapshot.Events {
		if !procedureExists(event.ProcedureID) {
			delete(snapshot.Events, id)
		}
	}
	for id, m := range snapshot.Measurements {
		if !eventExists(m.EventID) {
			delete(snapshot.Measurements, id)
		}
	}
	for id, od := range snapshot.OperationData {
		if !eventExists(od.EventID) {
			delete(snapshot.OperationData, id)
		}
	}
	for id, log := range snapshot.Logs {
		if !eventExists(log.EventID) {
			delete(snapshot.Logs, id)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = v
	}
	for k, v := range s.equipment {
		cloned.equipment[k] = cloneEquipment(v)
	}
	for k, v := range s.units {
		cloned.units[k] = v
	}
	for k, v := range s.procedures {
		cloned.procedures[k] = cloneProcedure(v)
	}
	for k, v := range s.operations {
		cloned.operations[k] = v
	}
	for k, v := range s.labels {
		cloned.labels[k] = v
	}
	for k, v := range s.parameters {
		cloned.parameters[k] = v
	}
	for k, v := range s.events {
		cloned.events[k] = v
	}
	for k, v := range s.measurements {
		cloned.measurements[k] = cloneMeasurement(v)
	}
	for k, v := range s.opdata {
		cloned.opdata[k] = cloneOperationData(v)
	}
	for k, v := range s.logs {
		cloned.logs[k] = cloneLogItem(v)
	}
	cloned.logSeq = s.logSeq
	return cloned
}

func cloneEquipment(e Equipment) Equipment {
	cp := e
	if e.LocationID != nil {
		v := *e.LocationID
		cp.LocationID = &v
	}
	return cp
}

func cloneProcedure(p Procedure) Procedure {
	cp := p
	if p.EquipmentID != nil {
		v := *p.EquipmentID
		cp.EquipmentID = &v
	}
	if p.LocationID != nil {
		v := *p.LocationID
		cp.LocationID = &v
	}
	if p.SubcontractorID != nil {
		v := *p.SubcontractorID
		cp.SubcontractorID = &v
	}
	if p.StartDate != nil {
		v := *p.StartDate
		cp.StartDate = &v
	}
	if p.DeletedAt != nil {
		v := *p.DeletedAt
		cp.DeletedAt = &v
	}
	return cp
}

func cloneMeasurement(m Measurement) Measurement {
	cp := m
	if m.LabelID != nil {
		v := *m.LabelID
		cp.LabelID = &v
	}
	if m.ParameterID != nil {
		v := *m.ParameterID
		cp.ParameterID = &v
	}
	if m.Value != nil {
		v := *m.Value
		cp.Value = &v
	}
	if m.Feedback != nil {
		v := *m.Feedback
		cp.Feedback = &v
	}
	cp.FileKeys = append([]string(nil), m.FileKeys...)
	return cp
}

func cloneOperationData(od OperationData) OperationData {
	cp := od
	cp.FileKeys = append([]string(nil), od.FileKeys...)
	return cp
}

func cloneLogItem(l LogItem) LogItem {
	cp := l
	if l.FromStatus != nil {
		v := *l.FromStatus
		cp.FromStatus = &v
	}
	if l.ToStatus != nil {
		v := *l.ToStatus
		cp.ToStatus = &v
	}
	if l.OldDate != nil {
		v := *l.OldDate
		cp.OldDate = &v
	}
	if l.NewDate != nil {
		v := *l.NewDate
		cp.NewDate = &v
	}
	if l.Comment != nil {
		v := *l.Comment
		cp.Comment = &v
	}
	cp.FileKeys = append([]string(nil), l.FileKeys...)
	return cp
}

// Store provides an in-memory transactional store for the scheduling domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc swaps the time provider. Tests use it to freeze the cutover clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The mutated copy replaces the committed state only after every registered
// rule passes without a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to callers needing read access.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the instant pinned at transaction start.
func (tx *transaction) Now() time.Time { return tx.now }
