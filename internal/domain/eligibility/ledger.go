package eligibility

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClearanceInput is a provider's sign-off as submitted.
type ClearanceInput struct {
	ProviderID   string
	ProviderName string
	ProviderType ProviderType
	Cleared      bool
	Date         time.Time
}

// DisqualificationInput is a provider's disqualification as submitted.
type DisqualificationInput struct {
	ProviderID   string
	ProviderName string
	Reason       string
	Date         time.Time
}

func (in *DisqualificationInput) validate() error {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.ProviderID == "" {
		return invalidArg("provider_id is required")
	}
	if in.Reason == "" {
		return invalidArg("disqualification reason is required")
	}
	if in.Date.IsZero() {
		return invalidArg("disqualification date is required")
	}
	return nil
}

// upsertClearance replaces the record for the same provider or appends a new
// one. A date earlier than the stored record is rejected.
func (c *Case) upsertClearance(rec ClearanceRecord) error {
	for i := range c.Clearances {
		if c.Clearances[i].ProviderID != rec.ProviderID {
			continue
		}
		if rec.Date.Before(c.Clearances[i].Date) {
			return invalidArg("clearance for provider %s dated %s precedes the recorded %s",
				rec.ProviderID, rec.Date.Format(time.RFC3339), c.Clearances[i].Date.Format(time.RFC3339))
		}
		c.Clearances[i] = rec
		return nil
	}
	c.Clearances = append(c.Clearances, rec)
	return nil
}

func (c *Case) latestDisqualification() time.Time {
	var latest time.Time
	for _, d := range c.Disqualifications {
		if d.Date.After(latest) {
			latest = d.Date
		}
	}
	return latest
}

// missingClearanceRoles returns the roles among required that lack a
// cleared record not superseded by a later disqualification.
func (c *Case) missingClearanceRoles(required map[ProviderType]bool) []ProviderType {
	latestDQ := c.latestDisqualification()
	satisfied := make(map[ProviderType]bool)
	for _, cr := range c.Clearances {
		if !cr.Cleared || !required[cr.ProviderType] {
			continue
		}
		if !latestDQ.IsZero() && latestDQ.After(cr.Date) {
			continue
		}
		satisfied[cr.ProviderType] = true
	}
	var missing []ProviderType
	for _, role := range []ProviderType{ProviderSurgeon, ProviderCRNA, ProviderTravelCoordinator} {
		if required[role] && !satisfied[role] {
			missing = append(missing, role)
		}
	}
	return missing
}

// RecordClearance upserts the sign-off of one provider for a patient. Only
// clearance-issuing providers may sign, and a provider known to the directory
// must sign under its directory type.
func (s *Service) RecordClearance(ctx context.Context, patientID uuid.UUID, in ClearanceInput) (*ClearanceRecord, error) {
	if in.ProviderID == "" {
		return nil, invalidArg("provider_id is required")
	}
	if !in.ProviderType.IssuesClearance() {
		return nil, invalidArg("provider type %s does not issue clearances", in.ProviderType)
	}
	if in.Date.IsZero() {
		return nil, invalidArg("clearance date is required")
	}
	p, err := s.lookupProvider(ctx, in.ProviderID, patientID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Providers outside the directory sign under the name they give.
	case err != nil:
		return nil, err
	default:
		if p.Type != in.ProviderType {
			return nil, invalidArg("provider %s is a %s, not a %s", in.ProviderID, p.Type, in.ProviderType)
		}
		if in.ProviderName == "" {
			in.ProviderName = p.Name
		}
	}
	if in.ProviderName == "" {
		return nil, invalidArg("provider_name is required")
	}

	var out ClearanceRecord
	_, err = s.mutate(ctx, patientID, func(c *Case) error {
		now := s.clock()
		out = ClearanceRecord{
			PatientID:    patientID,
			ProviderID:   in.ProviderID,
			ProviderName: in.ProviderName,
			ProviderType: in.ProviderType,
			Cleared:      in.Cleared,
			Date:         in.Date.UTC(),
			RecordedAt:   now,
		}
		if err := c.upsertClearance(out); err != nil {
			return err
		}
		c.Patient.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordDisqualification appends a disqualification. It does not change the
// patient's status; see DisqualifyPatient.
func (s *Service) RecordDisqualification(ctx context.Context, patientID uuid.UUID, in DisqualificationInput) (*DisqualificationRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var out DisqualificationRecord
	_, err := s.mutate(ctx, patientID, func(c *Case) error {
		out = c.appendDisqualification(in, s.clock())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Case) appendDisqualification(in DisqualificationInput, now time.Time) DisqualificationRecord {
	rec := DisqualificationRecord{
		ID:           uuid.New(),
		PatientID:    c.Patient.ID,
		ProviderID:   in.ProviderID,
		ProviderName: in.ProviderName,
		Reason:       in.Reason,
		Date:         in.Date.UTC(),
		RecordedAt:   now,
	}
	c.Disqualifications = append(c.Disqualifications, rec)
	c.Patient.UpdatedAt = now
	return rec
}

// HasAllRequiredClearances reports whether each role in required has a
// cleared record that no disqualification postdates.
func (s *Service) HasAllRequiredClearances(ctx context.Context, patientID uuid.UUID, required []ProviderType) (bool, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return false, err
	}
	set := make(map[ProviderType]bool, len(required))
	for _, r := range required {
		set[r] = true
	}
	return len(c.missingClearanceRoles(set)) == 0, nil
}

func (s *Service) ListClearances(ctx context.Context, patientID uuid.UUID) ([]ClearanceRecord, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return c.Clearances, nil
}

func (s *Service) ListDisqualifications(ctx context.Context, patientID uuid.UUID) ([]DisqualificationRecord, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return c.Disqualifications, nil
}
