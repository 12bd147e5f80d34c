package eligibility

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewPatient is the input for CreatePatient. It deliberately has no status:
// every case starts Pending.
type NewPatient struct {
	Name              string
	Age               int
	Sex               Sex
	Category          Category
	SurgeryDate       *time.Time
	ProposedTreatment Treatment
	Center            string
	AssignedProviders []ProviderRef
	Vitals            *VitalsInput
}

// VitalsInput is a measurement without the derived BMI.
type VitalsInput struct {
	HeightCm      float64
	WeightKg      float64
	BloodPressure string
	HeartRate     int
	SpO2          int
	Date          time.Time
}

var bloodPressureRe = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)

func (v VitalsInput) toVitals() (*Vitals, error) {
	if v.HeightCm <= 0 || v.HeightCm > 300 {
		return nil, invalidArg("height_cm must be between 0 and 300")
	}
	if v.WeightKg <= 0 || v.WeightKg > 700 {
		return nil, invalidArg("weight_kg must be between 0 and 700")
	}
	if !bloodPressureRe.MatchString(v.BloodPressure) {
		return nil, invalidArg("blood_pressure must look like 120/80, got %q", v.BloodPressure)
	}
	if v.HeartRate < 0 || v.HeartRate > 300 {
		return nil, invalidArg("heart_rate out of range")
	}
	if v.SpO2 < 0 || v.SpO2 > 100 {
		return nil, invalidArg("spo2 must be between 0 and 100")
	}
	if v.Date.IsZero() {
		return nil, invalidArg("vitals date is required")
	}
	return &Vitals{
		HeightCm:      v.HeightCm,
		WeightKg:      v.WeightKg,
		BMI:           ComputeBMI(v.HeightCm, v.WeightKg),
		BloodPressure: v.BloodPressure,
		HeartRate:     v.HeartRate,
		SpO2:          v.SpO2,
		Date:          v.Date.UTC(),
	}, nil
}

func (s *Service) CreatePatient(ctx context.Context, in NewPatient) (*Case, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalidArg("name is required")
	}
	if in.Age < 0 || in.Age > 150 {
		return nil, invalidArg("age must be between 0 and 150")
	}
	if in.Sex == 0 {
		return nil, invalidArg("sex is required")
	}
	if in.ProposedTreatment == 0 {
		return nil, invalidArg("proposed_treatment is required")
	}
	if in.Category == 0 {
		in.Category = CategoryUncategorized
	}
	refs, err := s.resolveProviders(ctx, in.AssignedProviders)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	c := &Case{Patient: Patient{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(in.Name),
		Age:               in.Age,
		Sex:               in.Sex,
		Status:            StatusPending,
		Category:          in.Category,
		ProposedTreatment: in.ProposedTreatment,
		Center:            in.Center,
		AssignedProviders: refs,
		StatusChangedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}}
	if in.SurgeryDate != nil {
		d := in.SurgeryDate.UTC()
		c.Patient.SurgeryDate = &d
	}
	if in.Vitals != nil {
		if c.Patient.Vitals, err = in.Vitals.toVitals(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.repo.CreatePatient(ctx, c); err != nil {
		return nil, s.storageErr("create", c.Patient.ID, err)
	}
	s.logger.Info().Str("patient_id", c.Patient.ID.String()).Msg("patient created")
	return c, nil
}

// resolveProviders validates an assignment list and fills missing names from
// the provider directory.
func (s *Service) resolveProviders(ctx context.Context, refs []ProviderRef) ([]ProviderRef, error) {
	out := make([]ProviderRef, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref.ProviderID == "" {
			return nil, invalidArg("provider_id is required for every assigned provider")
		}
		if seen[ref.ProviderID] {
			return nil, invalidArg("provider %s assigned twice", ref.ProviderID)
		}
		seen[ref.ProviderID] = true
		if ref.Role == 0 {
			return nil, invalidArg("role is required for provider %s", ref.ProviderID)
		}
		if ref.Name == "" {
			p, err := s.lookupProvider(ctx, ref.ProviderID, uuid.Nil)
			if err != nil {
				return nil, err
			}
			ref.Name = p.Name
		}
		out = append(out, ref)
	}
	return out, nil
}

// AssignProviders replaces the ordered list of assigned providers. Existing
// clearances are kept even for providers no longer assigned.
func (s *Service) AssignProviders(ctx context.Context, id uuid.UUID, refs []ProviderRef) (*Patient, error) {
	resolved, err := s.resolveProviders(ctx, refs)
	if err != nil {
		return nil, err
	}
	c, err := s.mutate(ctx, id, func(c *Case) error {
		c.Patient.AssignedProviders = resolved
		c.Patient.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c.Patient, nil
}

// RecordVitals replaces the vitals snapshot and recomputes BMI.
func (s *Service) RecordVitals(ctx context.Context, id uuid.UUID, in VitalsInput) (*Patient, error) {
	v, err := in.toVitals()
	if err != nil {
		return nil, err
	}
	c, err := s.mutate(ctx, id, func(c *Case) error {
		c.Patient.Vitals = v
		c.Patient.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c.Patient, nil
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.repo.ListPatients(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, s.storageErr("list", uuid.Nil, err)
	}
	return items, total, nil
}

// -- Provider directory --

func (s *Service) CreateProvider(ctx context.Context, p *Provider) error {
	if strings.TrimSpace(p.ID) == "" {
		return invalidArg("provider id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalidArg("provider name is required")
	}
	if p.Type == 0 {
		return invalidArg("provider type is required")
	}
	if err := s.repo.CreateProvider(ctx, p); err != nil {
		return s.storageErr("create provider", uuid.Nil, err)
	}
	return nil
}

func (s *Service) GetProvider(ctx context.Context, id string) (*Provider, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, s.storageErr("get provider", uuid.Nil, err)
	}
	return p, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]*Provider, error) {
	items, err := s.repo.ListProviders(ctx)
	if err != nil {
		return nil, s.storageErr("list providers", uuid.Nil, err)
	}
	return items, nil
}
