package eligibility

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (c *Case) recordTransitionAudit(from, to Status, actorID string, at time.Time) {
	c.Audit = append(c.Audit, AuditEntry{
		ID:        uuid.New(),
		PatientID: c.Patient.ID,
		Action:    AuditStatusChange,
		From:      from.String(),
		To:        to.String(),
		ActorID:   actorID,
		Timestamp: at,
	})
}

// AddComment appends an immutable comment. Comments never affect status.
func (s *Service) AddComment(ctx context.Context, patientID uuid.UUID, commenter, text string) (*Comment, error) {
	commenter, text = strings.TrimSpace(commenter), strings.TrimSpace(text)
	if commenter == "" {
		return nil, invalidArg("commenter is required")
	}
	if text == "" {
		return nil, invalidArg("comment text is required")
	}
	var out Comment
	_, err := s.mutate(ctx, patientID, func(c *Case) error {
		out = Comment{
			ID:        uuid.New(),
			PatientID: patientID,
			Commenter: commenter,
			Text:      text,
			DateTime:  s.clock(),
		}
		c.Comments = append(c.Comments, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ListComments(ctx context.Context, patientID uuid.UUID) ([]Comment, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return c.Comments, nil
}

func (s *Service) ListAudit(ctx context.Context, patientID uuid.UUID) ([]AuditEntry, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return c.Audit, nil
}

// Categorize sets the risk category. It is independent of status and is
// audited when the value changes.
func (s *Service) Categorize(ctx context.Context, patientID uuid.UUID, category Category, actorID string) (*Patient, error) {
	if _, ok := categoryNames[category]; !ok {
		return nil, invalidArg("unknown category %d", category)
	}
	if err := validActor(actorID); err != nil {
		return nil, err
	}
	c, err := s.mutate(ctx, patientID, func(c *Case) error {
		prev := c.Patient.Category
		if prev == category {
			return nil
		}
		now := s.clock()
		c.Patient.Category = category
		c.Patient.UpdatedAt = now
		c.Audit = append(c.Audit, AuditEntry{
			ID:        uuid.New(),
			PatientID: patientID,
			Action:    AuditCategorize,
			From:      prev.String(),
			To:        category.String(),
			ActorID:   actorID,
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c.Patient, nil
}
