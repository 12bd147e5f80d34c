package eligibility

import (
	"context"

	"github.com/google/uuid"
)

// IngestSnapshot replaces the patient's recommendation snapshot. The content
// is stored as received and never affects status.
func (s *Service) IngestSnapshot(ctx context.Context, patientID uuid.UUID, snap RecommendationSnapshot) (*RecommendationSnapshot, error) {
	var out RecommendationSnapshot
	_, err := s.mutate(ctx, patientID, func(c *Case) error {
		snap.ReceivedAt = s.clock()
		c.Recommendation = &snap
		out = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("patient_id", patientID.String()).Msg("recommendation snapshot stored")
	return &out, nil
}

// GetSnapshot returns the current snapshot, or ErrNotFound if none has been
// received.
func (s *Service) GetSnapshot(ctx context.Context, patientID uuid.UUID) (*RecommendationSnapshot, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if c.Recommendation == nil {
		return nil, notFound("no recommendation for patient %s", patientID)
	}
	return c.Recommendation, nil
}
