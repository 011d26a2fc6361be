// Package production keeps production records consistent with their hourly
// entries and stoppages, validates every child mutation, and enforces the
// finalize/reopen lock.
//
// Every operation that mutates a child row recomputes the parent aggregates
// inside the same transaction; there is no deferred recomputation.
package production

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/metrics"

	"go.uber.org/zap"
)

// Notifier is told about lock transitions after they commit. Failures are
// logged and never undo the transition.
type Notifier interface {
	RecordFinalized(ctx context.Context, rec domain.ProductionRecord, line domain.ProductionLine, actor domain.Actor) error
	RecordReopened(ctx context.Context, rec domain.ProductionRecord, line domain.ProductionLine, actor domain.Actor) error
}

type Service struct {
	db       *sql.DB
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
	metrics  *metrics.Metrics
	notifier Notifier
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the plant time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(db *sql.DB, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:     db,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) DB() *sql.DB { return s.db }

func (s *Service) today() time.Time {
	return domain.DateOf(s.now().In(s.loc))
}

func (s *Service) stamp() time.Time {
	return s.now().UTC()
}

// reject logs a failed operation and counts it by error class.
func (s *Service) reject(op string, actor domain.Actor, err error) error {
	reason := rejectionReason(err)
	if reason == "" {
		s.logger.Error("operation failed", zap.String("op", op), zap.Int64("actor_id", actor.UserID), zap.Error(err))
		return err
	}
	s.metrics.Rejection(reason)
	s.logger.Warn("operation rejected",
		zap.String("op", op),
		zap.String("reason", reason),
		zap.Int64("actor_id", actor.UserID),
		zap.Error(err),
	)
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrLocked):
		return "locked"
	case errors.Is(err, domain.ErrState):
		return "state"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	}
	return ""
}
