package transfer

import (
	"context"
	"errors"
	"strings"

	"stancore/pkg/domain"
)

// Coordinator validates and performs transfer requests atomically.
type Coordinator struct {
	store     domain.PersistentStore
	resolver  Resolver
	validator Validator
	executor  Executor
	discarder StorageDiscarder
	logger    Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithResolver replaces the entity resolver.
func WithResolver(r Resolver) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithValidator replaces the request validator.
func WithValidator(v Validator) Option {
	return func(c *Coordinator) {
		if v != nil {
			c.validator = v
		}
	}
}

// WithExecutor replaces the executor.
func WithExecutor(e Executor) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.executor = e
		}
	}
}

// WithStorageDiscarder sets the collaborator told about sources removed
// from storage after commit.
func WithStorageDiscarder(d StorageDiscarder) Option {
	return func(c *Coordinator) {
		c.discarder = d
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator builds a coordinator over the store with default components.
func NewCoordinator(store domain.PersistentStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		resolver:  NewResolver(),
		validator: NewValidator(),
		executor:  NewExecutor(),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// check resolves and validates the request against view.
func (c *Coordinator) check(ctx context.Context, view domain.TransactionView, req Request) (Resolved, *domain.Problems, error) {
	problems := domain.NewProblems()
	resolved := c.resolver.Resolve(ctx, problems, view, req)
	if err := c.validator.Validate(ctx, problems, view, resolved, req); err != nil {
		return Resolved{}, nil, err
	}
	return resolved, problems, nil
}

// Validate reports every problem with the request without writing anything.
func (c *Coordinator) Validate(ctx context.Context, req Request) ([]string, error) {
	var items []string
	err := c.store.View(ctx, func(view domain.TransactionView) error {
		_, problems, err := c.check(ctx, view, req)
		if err != nil {
			return err
		}
		items = problems.Items()
		return nil
	})
	return items, err
}

// Perform validates and executes the request in one transaction. Problems
// are returned as *domain.ValidationError with nothing written. When the
// committed transfer asks for sources to be removed from storage and that
// fails, the result is returned together with a *PostCommitError.
func (c *Coordinator) Perform(ctx context.Context, user domain.User, req Request) (Result, error) {
	if strings.TrimSpace(user.Username) == "" {
		return Result{}, errors.New("transfer requires a user")
	}
	var (
		result  Result
		opType  domain.OperationType
		sources []string
	)
	_, err := c.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		resolved, problems, err := c.check(ctx, tx.Snapshot(), req)
		if err != nil {
			return err
		}
		if err := problems.Err(); err != nil {
			return err
		}
		res, err := c.executor.Execute(ctx, tx, user, resolved, req)
		if err != nil {
			return err
		}
		result = res
		opType = *resolved.OperationType
		for _, src := range resolved.Sources.Values() {
			sources = append(sources, src.Barcode())
		}
		return nil
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.logger.Debug("transfer rejected", "operation_type", req.OperationType, "problems", len(verr.Problems))
		} else {
			c.logger.Error("transfer failed", "operation_type", req.OperationType, "error", err)
		}
		return Result{}, err
	}
	c.logger.Info("transfer committed", "operation_type", opType.Name, "user", user.Username, "operations", len(result.Operations))

	if opType.DiscardSourcesFromStorage && c.discarder != nil && len(sources) > 0 {
		if err := c.discarder.DiscardStorage(ctx, user, sources); err != nil {
			c.logger.Warn("storage discard failed", "labware", sources, "error", err)
			return result, &PostCommitError{Step: "storage discard", Err: err}
		}
	}
	return result, nil
}
