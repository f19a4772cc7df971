package core

import "pmpcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(EventTransitionRule())
	engine.Register(OperationChildrenRule())
	engine.Register(ArchivedVersionRule())
	engine.Register(ParameterBoundsRule())
	return engine
}
