package eligibility

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Provider is a directory entry for a clinician or coordinator.
type Provider struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Type   ProviderType `json:"type"`
	Center string       `json:"center,omitempty"`
	Email  string       `json:"email,omitempty"`
	Phone  string       `json:"phone,omitempty"`
}

// ProviderRef is a provider assigned to a patient case.
type ProviderRef struct {
	ProviderID string       `json:"provider_id"`
	Name       string       `json:"name"`
	Role       ProviderType `json:"role"`
}

// Vitals is a timestamped vital-signs snapshot. BMI is derived from height
// and weight and is never set directly.
type Vitals struct {
	HeightCm      float64   `json:"height_cm"`
	WeightKg      float64   `json:"weight_kg"`
	BMI           float64   `json:"bmi"`
	BloodPressure string    `json:"blood_pressure"`
	HeartRate     int       `json:"heart_rate"`
	SpO2          int       `json:"spo2"`
	Date          time.Time `json:"date"`
}

// ComputeBMI returns weight / height_m^2 rounded to one decimal.
func ComputeBMI(heightCm, weightKg float64) float64 {
	if heightCm <= 0 {
		return 0
	}
	m := heightCm / 100
	return math.Round(weightKg/(m*m)*10) / 10
}

// Patient is the identity and clinical record of a case.
type Patient struct {
	ID                uuid.UUID     `json:"id"`
	Name              string        `json:"name"`
	Age               int           `json:"age"`
	Sex               Sex           `json:"sex"`
	Status            Status        `json:"status"`
	Category          Category      `json:"category"`
	SurgeryDate       *time.Time    `json:"surgery_date,omitempty"`
	ProposedTreatment Treatment     `json:"proposed_treatment"`
	Center            string        `json:"center"`
	AssignedProviders []ProviderRef `json:"assigned_providers"`
	Vitals            *Vitals       `json:"vitals,omitempty"`
	// SurgeryPerformedAt is the scheduling system's signal that the surgery
	// took place.
	SurgeryPerformedAt *time.Time `json:"surgery_performed_at,omitempty"`
	StatusChangedAt    time.Time  `json:"status_changed_at"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProvidersWithRole returns the assigned providers holding role.
func (p *Patient) ProvidersWithRole(role ProviderType) []ProviderRef {
	var out []ProviderRef
	for _, ref := range p.AssignedProviders {
		if ref.Role == role {
			out = append(out, ref)
		}
	}
	return out
}

// RequiredClearanceRoles is the set of clearance-issuing roles present among
// the assigned providers.
func (p *Patient) RequiredClearanceRoles() map[ProviderType]bool {
	roles := make(map[ProviderType]bool)
	for _, ref := range p.AssignedProviders {
		if ref.Role.IssuesClearance() {
			roles[ref.Role] = true
		}
	}
	return roles
}

// RequestedDocument tracks a document asked for during review.
// Invariant: Cleared implies Approved implies Available.
type RequestedDocument struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	Name        string    `json:"name"`
	Reason      string    `json:"reason"`
	Available   bool      `json:"available"`
	Approved    bool      `json:"approved"`
	Cleared     bool      `json:"cleared"`
	RequestedAt time.Time `json:"requested_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClearanceRecord is a provider's sign-off. One per (patient, provider).
type ClearanceRecord struct {
	PatientID    uuid.UUID    `json:"patient_id"`
	ProviderID   string       `json:"provider_id"`
	ProviderName string       `json:"provider_name"`
	ProviderType ProviderType `json:"provider_type"`
	Cleared      bool         `json:"cleared"`
	Date         time.Time    `json:"date"`
	RecordedAt   time.Time    `json:"recorded_at"`
}

// DisqualificationRecord is a provider's decision that the patient must not
// proceed. Append-only.
type DisqualificationRecord struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	ProviderID   string    `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	Reason       string    `json:"reason"`
	Date         time.Time `json:"date"`
	RecordedAt   time.Time `json:"recorded_at"`
}

type Comment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Commenter string    `json:"commenter"`
	Text      string    `json:"text"`
	DateTime  time.Time `json:"date_time"`
}

// AuditAction identifies what an audit entry records.
type AuditAction string

const (
	AuditStatusChange AuditAction = "status_change"
	AuditCategorize   AuditAction = "categorize"
)

// AuditEntry is an append-only record of a status or category change.
type AuditEntry struct {
	ID        uuid.UUID   `json:"id"`
	PatientID uuid.UUID   `json:"patient_id"`
	Action    AuditAction `json:"action"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type Recommendation struct {
	Recommendation string `json:"recommendation"`
	Reason         string `json:"reason"`
}

// RecommendationSnapshot is the latest output of the external analysis
// service. It is advisory only.
type RecommendationSnapshot struct {
	Callouts           []string         `json:"callouts"`
	Recommendations    []Recommendation `json:"recommendations"`
	SchedulingCategory string           `json:"scheduling_category"`
	Summary            string           `json:"summary"`
	ReceivedAt         time.Time        `json:"received_at"`
}

// Case is the per-patient aggregate: the patient and every record it owns.
// Repositories load and save it as a unit.
type Case struct {
	Patient           Patient                  `json:"patient"`
	Documents         []RequestedDocument      `json:"requested_documents"`
	Clearances        []ClearanceRecord        `json:"clearances"`
	Disqualifications []DisqualificationRecord `json:"disqualifications"`
	Comments          []Comment                `json:"comments"`
	Audit             []AuditEntry             `json:"audit"`
	Recommendation    *RecommendationSnapshot  `json:"recommendation,omitempty"`
}

func (c *Case) clone() *Case {
	out := &Case{
		Patient:           c.Patient,
		Documents:         append([]RequestedDocument(nil), c.Documents...),
		Clearances:        append([]ClearanceRecord(nil), c.Clearances...),
		Disqualifications: append([]DisqualificationRecord(nil), c.Disqualifications...),
		Comments:          append([]Comment(nil), c.Comments...),
		Audit:             append([]AuditEntry(nil), c.Audit...),
	}
	out.Patient.AssignedProviders = append([]ProviderRef(nil), c.Patient.AssignedProviders...)
	if c.Patient.Vitals != nil {
		v := *c.Patient.Vitals
		out.Patient.Vitals = &v
	}
	if c.Patient.SurgeryDate != nil {
		d := *c.Patient.SurgeryDate
		out.Patient.SurgeryDate = &d
	}
	if c.Patient.SurgeryPerformedAt != nil {
		d := *c.Patient.SurgeryPerformedAt
		out.Patient.SurgeryPerformedAt = &d
	}
	if c.Recommendation != nil {
		r := *c.Recommendation
		r.Callouts = append([]string(nil), c.Recommendation.Callouts...)
		r.Recommendations = append([]Recommendation(nil), c.Recommendation.Recommendations...)
		out.Recommendation = &r
	}
	return out
}
