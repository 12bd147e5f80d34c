package eligibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// transitions is the complete edge set. Anything absent, including
// same-state moves and every move out of a terminal status, is invalid.
var transitions = map[Status][]Status{
	StatusPending:  {StatusInReview, StatusCleared, StatusDisqualified},
	StatusInReview: {StatusCleared, StatusDisqualified},
	StatusCleared:  {StatusCompleted},
}

// CanTransition reports whether the edge from -> to exists, ignoring guards.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// guard evaluates the precondition of moving the case to target and returns
// every unmet condition. An empty result means the move is allowed.
func (c *Case) guard(target Status) []UnmetCondition {
	var unmet []UnmetCondition
	switch target {
	case StatusCleared:
		for _, name := range c.unclearedDocuments() {
			unmet = append(unmet, UnmetCondition{
				Kind:    UnmetDocument,
				Name:    name,
				Message: fmt.Sprintf("%q not cleared", name),
			})
		}
		for _, role := range c.missingClearanceRoles(c.Patient.RequiredClearanceRoles()) {
			unmet = append(unmet, UnmetCondition{
				Kind:    UnmetProviderRole,
				Name:    role.String(),
				Message: fmt.Sprintf("%s clearance missing", role),
			})
		}
		if n := len(c.Disqualifications); n > 0 {
			unmet = append(unmet, UnmetCondition{
				Kind:    UnmetDisqualified,
				Name:    c.Disqualifications[n-1].ProviderName,
				Message: fmt.Sprintf("patient was disqualified: %s", c.Disqualifications[n-1].Reason),
			})
		}
	case StatusDisqualified:
		if !c.disqualifiedSinceStatusChange() {
			unmet = append(unmet, UnmetCondition{
				Kind:    UnmetDisqualifyEntry,
				Name:    "disqualification",
				Message: "no disqualification recorded since the last status change",
			})
		}
	case StatusCompleted:
		if c.Patient.SurgeryPerformedAt == nil {
			unmet = append(unmet, UnmetCondition{
				Kind:    UnmetSurgery,
				Name:    "surgery",
				Message: "surgery has not been reported as performed",
			})
		}
	}
	return unmet
}

func (c *Case) disqualifiedSinceStatusChange() bool {
	for _, d := range c.Disqualifications {
		if !d.RecordedAt.Before(c.Patient.StatusChangedAt) {
			return true
		}
	}
	return false
}

// transition moves the case to target, validating the edge and its guard,
// and appends the audit entry. On error the case is left untouched.
func (c *Case) transition(target Status, actorID string, now time.Time) error {
	from := c.Patient.Status
	if !CanTransition(from, target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, target)
	}
	if unmet := c.guard(target); len(unmet) > 0 {
		return &GuardError{From: from, To: target, Unmet: unmet}
	}
	c.Patient.Status = target
	c.Patient.StatusChangedAt = now
	c.Patient.UpdatedAt = now
	c.recordTransitionAudit(from, target, actorID, now)
	return nil
}

func validTarget(target Status) error {
	for _, s := range AllStatuses {
		if s == target {
			return nil
		}
	}
	return invalidArg("unknown target status %d", target)
}

func validActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return invalidArg("actor is required")
	}
	return nil
}

// RequestTransition moves the patient to target if the edge exists and its
// guard holds. The status change and its audit entry are saved together.
func (s *Service) RequestTransition(ctx context.Context, patientID uuid.UUID, target Status, actorID string) (*Patient, error) {
	if err := validTarget(target); err != nil {
		return nil, err
	}
	if err := validActor(actorID); err != nil {
		return nil, err
	}
	var from Status
	c, err := s.mutate(ctx, patientID, func(c *Case) error {
		from = c.Patient.Status
		return c.transition(target, actorID, s.clock())
	})
	if err != nil {
		s.logRefusal(patientID, target, err)
		return nil, err
	}
	s.statusChanged(ctx, c, from, actorID)
	return &c.Patient, nil
}

// DisqualifyPatient records a disqualification and moves the patient to
// Disqualified in one save. If the move is not allowed nothing is recorded.
func (s *Service) DisqualifyPatient(ctx context.Context, patientID uuid.UUID, in DisqualificationInput, actorID string) (*Patient, *DisqualificationRecord, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	if err := validActor(actorID); err != nil {
		return nil, nil, err
	}
	var (
		from Status
		rec  DisqualificationRecord
	)
	c, err := s.mutate(ctx, patientID, func(c *Case) error {
		from = c.Patient.Status
		if !CanTransition(from, StatusDisqualified) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, StatusDisqualified)
		}
		now := s.clock()
		rec = c.appendDisqualification(in, now)
		return c.transition(StatusDisqualified, actorID, now)
	})
	if err != nil {
		s.logRefusal(patientID, StatusDisqualified, err)
		return nil, nil, err
	}
	s.statusChanged(ctx, c, from, actorID)
	return &c.Patient, &rec, nil
}

// MarkSurgeryPerformed records the scheduling system's signal that surgery
// happened. A Cleared patient moves to Completed in the same save; other
// non-terminal patients keep their status and the signal is kept for later.
func (s *Service) MarkSurgeryPerformed(ctx context.Context, patientID uuid.UUID, at time.Time, actorID string) (*Patient, error) {
	if err := validActor(actorID); err != nil {
		return nil, err
	}
	var from Status
	c, err := s.mutate(ctx, patientID, func(c *Case) error {
		from = c.Patient.Status
		if from.Terminal() {
			return fmt.Errorf("%w: patient is %s", ErrInvalidTransition, from)
		}
		now := s.clock()
		if at.IsZero() {
			at = now
		}
		performed := at.UTC()
		c.Patient.SurgeryPerformedAt = &performed
		c.Patient.UpdatedAt = now
		if from == StatusCleared {
			return c.transition(StatusCompleted, actorID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Patient.Status != from {
		s.statusChanged(ctx, c, from, actorID)
	}
	return &c.Patient, nil
}

func (s *Service) logRefusal(patientID uuid.UUID, target Status, err error) {
	if ge, ok := err.(*GuardError); ok {
		s.logger.Debug().
			Str("patient_id", patientID.String()).
			Str("to", target.String()).
			Int("unmet", len(ge.Unmet)).
			Msg("transition guard refused")
	}
}

func (s *Service) statusChanged(ctx context.Context, c *Case, from Status, actorID string) {
	ch := StatusChange{
		PatientID: c.Patient.ID,
		From:      from,
		To:        c.Patient.Status,
		ActorID:   actorID,
		At:        c.Patient.StatusChangedAt,
	}
	s.logger.Info().
		Str("patient_id", ch.PatientID.String()).
		Str("from", from.String()).
		Str("to", ch.To.String()).
		Str("actor_id", actorID).
		Msg("patient status changed")
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, ch)
	}
}
