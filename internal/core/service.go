package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stancore/internal/infra/persistence/memory"
	"stancore/internal/transfer"
	"stancore/pkg/domain"
)

const (
	opCreateLabwareType   = "create_labware_type"
	opCreateBioState      = "create_bio_state"
	opCreateTissue        = "create_tissue"
	opCreateOperationType = "create_operation_type"
	opCreateWork          = "create_work"
	opUpdateWorkStatus    = "update_work_status"
	opCreateSample        = "create_sample"
	opCreateLabware       = "create_labware"
	opUpdateLabware       = "update_labware"
	opPerformTransfer     = "perform_transfer"
	opValidateTransfer    = "validate_transfer"
	opApplySeed           = "apply_seed"
)

// Service exposes transactional operations over a persistent store.
type Service struct {
	store        domain.PersistentStore
	engine       *domain.RulesEngine
	coordinator  *transfer.Coordinator
	clock        Clock
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	discarder    transfer.StorageDiscarder
	transferOpts []transfer.Option
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used to stamp records and audit entries.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger. The transfer coordinator shares it.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder sets the recipient of audit entries.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the operation metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithStorageDiscarder sets the collaborator told about labware removed from
// storage by committed transfers.
func WithStorageDiscarder(d transfer.StorageDiscarder) Option {
	return func(s *Service) {
		s.discarder = d
	}
}

// WithTransferOptions passes extra options to the transfer coordinator. They
// are applied after the service defaults.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(s *Service) {
		s.transferOpts = append(s.transferOpts, opts...)
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   domain.SystemClock(),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if provider, ok := store.(interface{ RulesEngine() *domain.RulesEngine }); ok {
		s.engine = provider.RulesEngine()
	}
	if setter, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		setter.SetNowFunc(s.clock.Now)
	}
	transferOpts := []transfer.Option{
		transfer.WithExecutor(transfer.NewExecutor(transfer.WithExecutorClock(s.clock))),
		transfer.WithLogger(s.logger),
	}
	if s.discarder != nil {
		transferOpts = append(transferOpts, transfer.WithStorageDiscarder(s.discarder))
	}
	s.coordinator = transfer.NewCoordinator(store, append(transferOpts, s.transferOpts...)...)
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// RulesEngine returns the engine of the underlying store, nil when the store
// does not expose one.
func (s *Service) RulesEngine() *domain.RulesEngine { return s.engine }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	duration := time.Since(started)
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)

	var verr *domain.ValidationError
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op, "duration", duration)
	case errors.As(err, &verr):
		s.logger.Info("operation rejected", "operation", op, "problems", len(verr.Problems))
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, username, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, username, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, username string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, username, "", duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, username, entityID string, duration time.Duration, err error) {
	target, ok := auditTargets[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Timestamp: s.clock.Now(),
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  entityID,
		Username:  username,
		Status:    AuditStatusSuccess,
		Duration:  duration,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// transact runs fn in one store transaction under the service hooks and
// audits the outcome, identifying the written record with idOf.
func transact[T any](ctx context.Context, s *Service, op string, idOf func(T) int, fn func(domain.Transaction) (T, error)) (T, Result, error) {
	var (
		out T
		res Result
	)
	started := time.Now()
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			out, err = fn(tx)
			return err
		})
		return err
	})
	if err != nil {
		s.recordAuditError(ctx, op, "", time.Since(started), err)
		var zero T
		return zero, res, err
	}
	s.recordAuditSuccess(ctx, op, "", strconv.Itoa(idOf(out)), time.Since(started))
	return out, res, nil
}

// CreateLabwareType persists a new labware type.
func (s *Service) CreateLabwareType(ctx context.Context, lt domain.LabwareType) (domain.LabwareType, Result, error) {
	return transact(ctx, s, opCreateLabwareType, func(v domain.LabwareType) int { return v.ID }, func(tx domain.Transaction) (domain.LabwareType, error) {
		return tx.CreateLabwareType(lt)
	})
}

// CreateBioState persists a new bio state.
func (s *Service) CreateBioState(ctx context.Context, bs domain.BioState) (domain.BioState, Result, error) {
	return transact(ctx, s, opCreateBioState, func(v domain.BioState) int { return v.ID }, func(tx domain.Transaction) (domain.BioState, error) {
		return tx.CreateBioState(bs)
	})
}

// CreateTissue persists a new tissue.
func (s *Service) CreateTissue(ctx context.Context, t domain.Tissue) (domain.Tissue, Result, error) {
	return transact(ctx, s, opCreateTissue, func(v domain.Tissue) int { return v.ID }, func(tx domain.Transaction) (domain.Tissue, error) {
		return tx.CreateTissue(t)
	})
}

// CreateOperationType persists a new operation type.
func (s *Service) CreateOperationType(ctx context.Context, ot domain.OperationType) (domain.OperationType, Result, error) {
	return transact(ctx, s, opCreateOperationType, func(v domain.OperationType) int { return v.ID }, func(tx domain.Transaction) (domain.OperationType, error) {
		return tx.CreateOperationType(ot)
	})
}

// CreateWork persists a new work number.
func (s *Service) CreateWork(ctx context.Context, w domain.Work) (domain.Work, Result, error) {
	return transact(ctx, s, opCreateWork, func(v domain.Work) int { return v.ID }, func(tx domain.Transaction) (domain.Work, error) {
		return tx.CreateWork(w)
	})
}

// UpdateWorkStatus moves a work number to a new status.
func (s *Service) UpdateWorkStatus(ctx context.Context, workNumber string, status domain.WorkStatus) (domain.Work, Result, error) {
	return transact(ctx, s, opUpdateWorkStatus, func(v domain.Work) int { return v.ID }, func(tx domain.Transaction) (domain.Work, error) {
		if !knownWorkStatus(status) {
			return domain.Work{}, fmt.Errorf("unknown work status %q", status)
		}
		work, ok := tx.Snapshot().FindWorkByNumber(workNumber)
		if !ok {
			return domain.Work{}, domain.ErrNotFound{Entity: domain.EntityWork, Key: workNumber}
		}
		return tx.UpdateWork(work.ID, func(w *domain.Work) error {
			w.Status = status
			return nil
		})
	})
}

func knownWorkStatus(status domain.WorkStatus) bool {
	switch status {
	case domain.WorkStatusUnstarted, domain.WorkStatusActive, domain.WorkStatusPaused,
		domain.WorkStatusCompleted, domain.WorkStatusFailed, domain.WorkStatusWithdrawn:
		return true
	}
	return false
}

// CreateSample persists a new sample.
func (s *Service) CreateSample(ctx context.Context, sample domain.Sample) (domain.Sample, Result, error) {
	return transact(ctx, s, opCreateSample, func(v domain.Sample) int { return v.ID }, func(tx domain.Transaction) (domain.Sample, error) {
		return tx.CreateSample(sample)
	})
}

// CreateLabware persists a new labware item of the named type. A blank
// barcode is issued by the store.
func (s *Service) CreateLabware(ctx context.Context, labwareType string, lw domain.Labware) (domain.Labware, Result, error) {
	return transact(ctx, s, opCreateLabware, func(v domain.Labware) int { return v.ID }, func(tx domain.Transaction) (domain.Labware, error) {
		lt, ok := tx.Snapshot().FindLabwareTypeByName(labwareType)
		if !ok {
			return domain.Labware{}, domain.ErrNotFound{Entity: domain.EntityLabwareType, Key: labwareType}
		}
		lw.LabwareType = lt
		return tx.CreateLabware(lw)
	})
}

// MarkCleanedOut flags the given slots of a labware item as cleaned out so
// they never receive new content.
func (s *Service) MarkCleanedOut(ctx context.Context, barcode string, addresses []domain.Address) (domain.Labware, Result, error) {
	return transact(ctx, s, opUpdateLabware, func(v domain.Labware) int { return v.ID }, func(tx domain.Transaction) (domain.Labware, error) {
		lw, ok := tx.Snapshot().FindLabwareByBarcode(barcode)
		if !ok {
			return domain.Labware{}, domain.ErrNotFound{Entity: domain.EntityLabware, Key: barcode}
		}
		return markCleanedOut(tx, lw, addresses)
	})
}

func markCleanedOut(tx domain.Transaction, lw domain.Labware, addresses []domain.Address) (domain.Labware, error) {
	snapshot := domain.NewLabwareSnapshot(lw)
	slots := make([]domain.Slot, 0, len(addresses))
	for _, addr := range addresses {
		slot, ok := snapshot.SlotAt(addr)
		if !ok {
			return domain.Labware{}, fmt.Errorf("labware %s has no slot %s", lw.Barcode, addr)
		}
		slot.CleanedOut = true
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return lw, nil
	}
	return tx.SaveSlots(lw.ID, slots)
}

// SetLabwareState replaces the state flags of a labware item. Active clears
// every flag.
func (s *Service) SetLabwareState(ctx context.Context, barcode string, state domain.LabwareState) (domain.Labware, Result, error) {
	return transact(ctx, s, opUpdateLabware, func(v domain.Labware) int { return v.ID }, func(tx domain.Transaction) (domain.Labware, error) {
		lw, ok := tx.Snapshot().FindLabwareByBarcode(barcode)
		if !ok {
			return domain.Labware{}, domain.ErrNotFound{Entity: domain.EntityLabware, Key: barcode}
		}
		return setLabwareState(tx, lw, state)
	})
}

func setLabwareState(tx domain.Transaction, lw domain.Labware, state domain.LabwareState) (domain.Labware, error) {
	updated, err := tx.UpdateLabware([]int{lw.ID}, func(l *domain.Labware) error {
		return applyState(l, state)
	})
	if err != nil {
		return domain.Labware{}, err
	}
	return updated[0], nil
}

func applyState(lw *domain.Labware, state domain.LabwareState) error {
	switch state {
	case "", domain.LabwareStateActive, domain.LabwareStateDiscarded, domain.LabwareStateDestroyed,
		domain.LabwareStateReleased, domain.LabwareStateUsed:
	default:
		return fmt.Errorf("unknown labware state %q", state)
	}
	lw.Discarded = state == domain.LabwareStateDiscarded
	lw.Destroyed = state == domain.LabwareStateDestroyed
	lw.Released = state == domain.LabwareStateReleased
	lw.Used = state == domain.LabwareStateUsed
	return nil
}

// ValidateTransfer reports every problem with the request without writing.
func (s *Service) ValidateTransfer(ctx context.Context, req transfer.Request) ([]string, error) {
	var problems []string
	err := s.run(ctx, opValidateTransfer, func(ctx context.Context) error {
		var err error
		problems, err = s.coordinator.Validate(ctx, req)
		return err
	})
	return problems, err
}

// PerformTransfer validates and records a transfer for user. A
// *transfer.PostCommitError is returned alongside the committed result when
// the storage notification fails.
func (s *Service) PerformTransfer(ctx context.Context, user domain.User, req transfer.Request) (transfer.Result, error) {
	var result transfer.Result
	started := time.Now()
	err := s.run(ctx, opPerformTransfer, func(ctx context.Context) error {
		var err error
		result, err = s.coordinator.Perform(ctx, user, req)
		return err
	})
	if len(result.Operations) == 0 {
		s.recordAuditError(ctx, opPerformTransfer, user.Username, time.Since(started), err)
		return result, err
	}
	ids := make([]string, 0, len(result.Operations))
	for _, op := range result.Operations {
		ids = append(ids, strconv.Itoa(op.ID))
	}
	s.recordAuditSuccess(ctx, opPerformTransfer, user.Username, strings.Join(ids, ","), time.Since(started))
	return result, err
}

// Labware returns committed labware by barcode.
func (s *Service) Labware(barcode string) (domain.Labware, bool) {
	return s.store.GetLabwareByBarcode(barcode)
}

// Operations returns every committed operation ordered by id.
func (s *Service) Operations() []domain.Operation {
	return s.store.ListOperations()
}

// Work returns a committed work by number.
func (s *Service) Work(workNumber string) (domain.Work, bool) {
	return s.store.GetWork(workNumber)
}
