package core

import (
	"pmpcore/pkg/domain"
)

// editSpec threads one pending edit through the versioning machinery. It
// names the entity under edit and carries the mutation (or insertion) to
// apply, so the edit is merged into a clone while the walk still reads the
// old version's tree.
type editSpec struct {
	target   EntityType
	targetID string

	procedure func(*Procedure) error
	operation func(*Operation) error
	label     func(*Label) error
	parameter func(*Parameter) error

	insertOperation *Operation
	insertLabel     *Label
	insertParameter *Parameter

	// validate runs inside the transaction before the edit is applied.
	validate func(tx Transaction) error

	// reschedules marks frequency/start-date edits, which regenerate future
	// events regardless of the clone decision.
	reschedules bool
}

func (e editSpec) inserts() bool {
	return e.insertOperation != nil || e.insertLabel != nil || e.insertParameter != nil
}

// copyChild deep-copies one child record, re-parents it into the new version
// via prep, applies the pending mutation when the source matches, and
// persists the copy. The same algorithm serves operations, labels, and
// parameters.
func copyChild[T any](src T, matched bool, mutate func(*T) error, prep func(*T), create func(T) (T, error)) (T, error) {
	cp := src
	prep(&cp)
	if matched && mutate != nil {
		if err := mutate(&cp); err != nil {
			var zero T
			return zero, err
		}
	}
	return create(cp)
}

// cloneProcedureVersion deep-copies a procedure and its operation tree with
// fresh identities, merging the pending edit into the copy. Children are
// copied per the operation's (possibly just edited) type, so a type change
// sheds the now-illegal child collection. The old version is left untouched;
// tombstoning it is the coordinator's job.
//
// Returns the new version and the entity under edit as it exists in the new
// version, so callers respond with the edited object rather than a stale
// source copy.
func cloneProcedureVersion(tx Transaction, source Procedure, edit editSpec) (Procedure, any, error) {
	cp := source
	cp.Base = domain.Base{}
	cp.DeletedAt = nil
	if edit.target == domain.EntityProcedure && edit.procedure != nil {
		if err := edit.procedure(&cp); err != nil {
			return Procedure{}, nil, err
		}
	}
	newProc, err := tx.CreateProcedure(cp)
	if err != nil {
		return Procedure{}, nil, err
	}

	var edited any
	if edit.target == domain.EntityProcedure && !edit.inserts() {
		edited = newProc
	}

	operationIDs := make(map[string]string)
	for _, op := range tx.ListOperationsByProcedure(source.ID) {
		matched := edit.target == domain.EntityOperation && edit.targetID == op.ID
		newOp, err := copyChild(op, matched, edit.operation, func(o *Operation) {
			o.Base = domain.Base{}
			o.ProcedureID = newProc.ID
		}, tx.CreateOperation)
		if err != nil {
			return Procedure{}, nil, err
		}
		if matched && !edit.inserts() {
			edited = newOp
		}
		operationIDs[op.ID] = newOp.ID

		switch newOp.Type {
		case domain.OperationVisual:
			for _, l := range tx.ListLabelsByOperation(op.ID) {
				lm := edit.target == domain.EntityLabel && edit.targetID == l.ID
				newLabel, err := copyChild(l, lm, edit.label, func(c *Label) {
					c.Base = domain.Base{}
					c.OperationID = newOp.ID
				}, tx.CreateLabel)
				if err != nil {
					return Procedure{}, nil, err
				}
				if lm {
					edited = newLabel
				}
			}
		case domain.OperationParameter:
			for _, p := range tx.ListParametersByOperation(op.ID) {
				pm := edit.target == domain.EntityParameter && edit.targetID == p.ID
				newParam, err := copyChild(p, pm, edit.parameter, func(c *Parameter) {
					c.Base = domain.Base{}
					c.OperationID = newOp.ID
				}, tx.CreateParameter)
				if err != nil {
					return Procedure{}, nil, err
				}
				if pm {
					edited = newParam
				}
			}
		}
	}

	// Insertions land under the new version, re-parented through the identity
	// map when the insertion point is an operation.
	switch {
	case edit.insertOperation != nil:
		op := *edit.insertOperation
		op.Base = domain.Base{}
		op.ProcedureID = newProc.ID
		created, err := tx.CreateOperation(op)
		if err != nil {
			return Procedure{}, nil, err
		}
		edited = created
	case edit.insertLabel != nil:
		newOpID, ok := operationIDs[edit.targetID]
		if !ok {
			return Procedure{}, nil, domain.NotFoundError{Entity: domain.EntityOperation, ID: edit.targetID}
		}
		l := *edit.insertLabel
		l.Base = domain.Base{}
		l.OperationID = newOpID
		created, err := tx.CreateLabel(l)
		if err != nil {
			return Procedure{}, nil, err
		}
		edited = created
	case edit.insertParameter != nil:
		newOpID, ok := operationIDs[edit.targetID]
		if !ok {
			return Procedure{}, nil, domain.NotFoundError{Entity: domain.EntityOperation, ID: edit.targetID}
		}
		p := *edit.insertParameter
		p.Base = domain.Base{}
		p.OperationID = newOpID
		created, err := tx.CreateParameter(p)
		if err != nil {
			return Procedure{}, nil, err
		}
		edited = created
	}

	return newProc, edited, nil
}
