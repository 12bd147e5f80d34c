package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultWriteTimeout = 5 * time.Second

// StatusChange describes a committed status transition.
type StatusChange struct {
	PatientID uuid.UUID `json:"patient_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	At        time.Time `json:"at"`
}

// Notifier is told about committed transitions. It is called after the
// patient lock is released and must not block.
type Notifier interface {
	StatusChanged(ctx context.Context, ch StatusChange)
}

// Notifiers fans each change out to every non-nil notifier in order.
type Notifiers []Notifier

func (ns Notifiers) StatusChanged(ctx context.Context, ch StatusChange) {
	for _, n := range ns {
		if n != nil {
			n.StatusChanged(ctx, ch)
		}
	}
}

type Service struct {
	repo         Repository
	locks        *keyedLock
	logger       zerolog.Logger
	notifier     Notifier
	writeTimeout time.Duration
	now          func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:         repo,
		locks:        newKeyedLock(),
		logger:       zerolog.Nop(),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l.With().Str("component", "eligibility").Logger() }

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetWriteTimeout bounds lock acquisition plus load and save of one case.
func (s *Service) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		s.writeTimeout = d
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) clock() time.Time { return s.now().UTC() }

// mutate runs fn against a freshly loaded case while holding the patient's
// lock and saves the result. fn's error aborts without writing.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(c *Case) error) (*Case, error) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("patient lock not acquired")
		return nil, fmt.Errorf("%w: patient %s is busy: %w", ErrUnavailable, id, err)
	}
	defer unlock()

	c, err := s.repo.LoadCase(ctx, id)
	if err != nil {
		return nil, s.storageErr("load", id, err)
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCase(ctx, c); err != nil {
		return nil, s.storageErr("save", id, err)
	}
	return c, nil
}

// load returns a consistent copy of the case without taking the lock.
func (s *Service) load(ctx context.Context, id uuid.UUID) (*Case, error) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	c, err := s.repo.LoadCase(ctx, id)
	if err != nil {
		return nil, s.storageErr("load", id, err)
	}
	return c, nil
}

// storageErr passes domain errors through and classifies everything else as
// ErrUnavailable.
func (s *Service) storageErr(op string, id uuid.UUID, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) {
		return err
	}
	s.logger.Error().Err(err).Str("op", op).Str("patient_id", id.String()).Msg("case storage failed")
	return fmt.Errorf("%w: %s case %s: %w", ErrUnavailable, op, id, err)
}

// lookupProvider reads the directory under the write timeout. ErrNotFound
// passes through; any other failure is ErrUnavailable.
func (s *Service) lookupProvider(ctx context.Context, providerID string, patientID uuid.UUID) (*Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	p, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, s.storageErr("get provider", patientID, err)
	}
	return p, nil
}

// GetCase returns the full aggregate for one patient.
func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.load(ctx, id)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
