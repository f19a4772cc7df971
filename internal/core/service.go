package core

import (
	"context"
	"time"

	"pmpcore/internal/blob"
	"pmpcore/internal/infra/persistence/memory"
	"pmpcore/pkg/domain"
)

// Service exposes the transactional operations of the scheduling core:
// procedure versioning, event materialization, the event lifecycle, and the
// daily-check batch.
type Service struct {
	store   PersistentStore
	blobs   blob.Store
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
}

type serviceOptions struct {
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	blobs   blob.Store
}

// ServiceOption customizes service construction.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// WithLogger installs a logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock installs the clock driving cutover computation.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithBlobStore installs the attachment store used to resolve file keys.
func WithBlobStore(b blob.Store) ServiceOption {
	return func(o *serviceOptions) {
		if b != nil {
			o.blobs = b
		}
	}
}

// clockSetter is implemented by stores whose transactions pin their Now()
// from a swappable provider.
type clockSetter interface {
	SetNowFunc(fn func() time.Time)
}

// NewService constructs a service backed by the supplied store. When the
// store supports it, the service clock also drives transaction timestamps so
// cutover and persistence agree on "now".
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if setter, ok := store.(clockSetter); ok {
		setter.SetNowFunc(options.clock.Now)
	}
	return &Service{
		store:   store,
		blobs:   options.blobs,
		logger:  options.logger,
		clock:   options.clock,
		metrics: options.metrics,
		tracer:  options.tracer,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine gets the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Attachments returns the configured attachment store, or nil when none is set.
func (s *Service) Attachments() blob.Store {
	return s.blobs
}

// instrument wraps a service operation with tracing, metrics, and error
// logging.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	started := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, s.clock.Now().Sub(started))
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation)
	}
	return err
}

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	var res Result
	err := s.instrument(ctx, "create_project", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateProject(project)
			return txErr
		})
		return err
	})
	return created, res, err
}

// UpdateProject mutates a project using the provided mutator.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project) error) (Project, Result, error) {
	var updated Project
	var res Result
	err := s.instrument(ctx, "update_project", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateProject(id, mutator)
			return txErr
		})
		return err
	})
	return updated, res, err
}

// GetProject retrieves a project by ID.
func (s *Service) GetProject(id string) (Project, bool) {
	return s.store.GetProject(id)
}

// ListProjects returns all projects.
func (s *Service) ListProjects() []Project {
	return s.store.ListProjects()
}

// CreateEquipment persists an equipment record under its project.
func (s *Service) CreateEquipment(ctx context.Context, equipment Equipment) (Equipment, Result, error) {
	var created Equipment
	var res Result
	err := s.instrument(ctx, "create_equipment", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindProject(equipment.ProjectID); !ok {
				return domain.NotFoundError{Entity: domain.EntityProject, ID: equipment.ProjectID}
			}
			var txErr error
			created, txErr = tx.CreateEquipment(equipment)
			return txErr
		})
		return err
	})
	return created, res, err
}

// UpdateEquipment mutates an equipment record.
func (s *Service) UpdateEquipment(ctx context.Context, id string, mutator func(*Equipment) error) (Equipment, Result, error) {
	var updated Equipment
	var res Result
	err := s.instrument(ctx, "update_equipment", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateEquipment(id, mutator)
			return txErr
		})
		return err
	})
	return updated, res, err
}

// GetEquipment retrieves an equipment record by ID.
func (s *Service) GetEquipment(id string) (Equipment, bool) {
	return s.store.GetEquipment(id)
}

// RemoveEquipment deletes an equipment record. Equipment referenced by
// started events is locked and cannot be removed.
func (s *Service) RemoveEquipment(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "remove_equipment", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			eq, ok := tx.FindEquipment(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEquipment, ID: id}
			}
			if !eq.Deletable {
				return domain.InvalidStateError{Message: "equipment is referenced by started events"}
			}
			return tx.DeleteEquipment(id)
		})
		return err
	})
	return res, err
}

// CreateUnit registers a measurement unit.
func (s *Service) CreateUnit(ctx context.Context, unit Unit) (Unit, Result, error) {
	var created Unit
	var res Result
	err := s.instrument(ctx, "create_unit", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			created, txErr = tx.CreateUnit(unit)
			return txErr
		})
		return err
	})
	return created, res, err
}

// ListUnits returns all registered measurement units.
func (s *Service) ListUnits() []Unit {
	return s.store.ListUnits()
}
