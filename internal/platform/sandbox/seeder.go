// Package sandbox loads demo data for sandbox and on-boarding environments.
// Every seeded status is reached through the eligibility service's guarded
// operations, so a seeded store is indistinguishable from one built by hand.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nuvia/clearance/internal/domain/eligibility"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls what Seed loads.
type SeedConfig struct {
	// SyntheticPatients adds generated Pending/In Review cases on top of the
	// fixed demo roster.
	SyntheticPatients int `json:"syntheticPatients"`
	// Seed makes synthetic data reproducible.
	Seed int64 `json:"seed"`
	// Anchor is the day the demo timeline is shifted to. Zero means today.
	Anchor time.Time `json:"anchor"`
	// ActorID is recorded on every seeded transition.
	ActorID string `json:"actorId"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		SyntheticPatients: 0,
		Seed:              1,
		ActorID:           "demo-seed",
	}
}

// SeedResult summarises a seeding run.
type SeedResult struct {
	Providers int            `json:"providers"`
	Patients  int            `json:"patients"`
	ByStatus  map[string]int `json:"byStatus"`
	// Skipped is set when the store already held patients and nothing was
	// loaded.
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Demo roster
// ---------------------------------------------------------------------------

// rosterEpoch is the reference day of the demo timeline. Every roster date is
// shifted by Anchor - rosterEpoch.
var rosterEpoch = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

var demoProviders = []eligibility.Provider{
	{ID: "surgeon1", Name: "Dr. Sarah Johnson", Type: eligibility.ProviderSurgeon, Center: "Phoenix Center", Email: "sarah.johnson@nuviasmiles.com", Phone: "(602) 555-0101"},
	{ID: "surgeon2", Name: "Dr. Michael Chen", Type: eligibility.ProviderSurgeon, Center: "Phoenix Center", Email: "michael.chen@nuviasmiles.com", Phone: "(602) 555-0102"},
	{ID: "crna1", Name: "CRNA Lisa Rodriguez", Type: eligibility.ProviderCRNA, Center: "Phoenix Center", Email: "lisa.rodriguez@nuviasmiles.com", Phone: "(602) 555-0103"},
	{ID: "crna2", Name: "CRNA David Wilson", Type: eligibility.ProviderCRNA, Center: "Phoenix Center", Email: "david.wilson@nuviasmiles.com", Phone: "(602) 555-0104"},
	{ID: "travel1", Name: "Travel Coordinator Maria Garcia", Type: eligibility.ProviderTravelCoordinator, Center: "Phoenix Center", Email: "maria.garcia@nuviasmiles.com", Phone: "(602) 555-0105"},
}

type demoDocument struct {
	name, reason                 string
	available, approved, cleared bool
}

type demoClearance struct {
	providerID string
	role       eligibility.ProviderType
	date       string
}

type demoComment struct {
	commenter, text string
}

type demoDisqualification struct {
	providerID, reason, date string
}

type demoVitals struct {
	height, weight float64
	bp             string
	hr, spo2       int
	date           string
}

type demoPatient struct {
	name       string
	age        int
	sex        eligibility.Sex
	category   eligibility.Category
	surgery    string
	treatment  eligibility.Treatment
	center     string
	providers  []string
	vitals     demoVitals
	documents  []demoDocument
	clearances []demoClearance
	comments   []demoComment
	dq         *demoDisqualification
	snapshot   eligibility.RecommendationSnapshot
	status     eligibility.Status
}

var demoRoster = []demoPatient{
	{
		name: "John Smith", age: 45, sex: eligibility.SexMale, category: eligibility.CategoryCat2,
		surgery: "2024-02-15", treatment: eligibility.TreatmentUpperAndLower, center: "Phoenix Center",
		providers: []string{"surgeon1", "surgeon2", "crna1", "travel1"},
		vitals:    demoVitals{175, 80, "120/80", 72, 98, "2024-01-15"},
		documents: []demoDocument{
			{"Cardiology Clearance", "History of hypertension and elevated BMI", false, false, false},
			{"Dental Records", "Missing comprehensive dental history", true, true, true},
		},
		clearances: []demoClearance{
			{"surgeon1", eligibility.ProviderSurgeon, "2024-01-20"},
			{"crna1", eligibility.ProviderCRNA, "2024-01-21"},
		},
		comments: []demoComment{
			{"Dr. Sarah Johnson", "Patient cleared for surgery pending cardiology clearance"},
			{"CRNA Lisa Rodriguez", "Anesthesia clearance approved"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Elevated BMI - requires clearance", "History of hypertension noted", "Missing dental records"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Request cardiology clearance", Reason: "Patient has history of hypertension and elevated BMI"},
				{Recommendation: "Obtain dental records", Reason: "Missing comprehensive dental history"},
			},
			SchedulingCategory: "CAT 2 - Requires Additional Clearance",
			Summary:            "Patient presents with good overall health but requires cardiology clearance due to hypertension history and elevated BMI. Dental records are incomplete and need to be obtained.",
		},
		status: eligibility.StatusInReview,
	},
	{
		name: "Emily Davis", age: 38, sex: eligibility.SexFemale, category: eligibility.CategoryCat1,
		surgery: "2024-02-10", treatment: eligibility.TreatmentUpper, center: "Phoenix Center",
		providers: []string{"surgeon2", "crna2", "travel1"},
		vitals:    demoVitals{165, 60, "110/70", 68, 99, "2024-01-10"},
		documents: []demoDocument{
			{"Medical History", "Required for surgical clearance", true, true, true},
			{"Dental Records", "Required for surgical clearance", true, true, true},
		},
		clearances: []demoClearance{
			{"surgeon2", eligibility.ProviderSurgeon, "2024-01-12"},
			{"crna2", eligibility.ProviderCRNA, "2024-01-12"},
		},
		comments: []demoComment{
			{"Dr. Michael Chen", "Patient cleared for surgery"},
			{"CRNA David Wilson", "Anesthesia clearance approved"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"All clearances obtained", "Patient ready for surgery"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Proceed with surgery as scheduled", Reason: "All clearances obtained and patient meets all criteria"},
			},
			SchedulingCategory: "CAT 1 - Ready for Surgery",
			Summary:            "Patient is in excellent health with no contraindications. All required documents have been obtained and approved.",
		},
		status: eligibility.StatusCleared,
	},
	{
		name: "Robert Wilson", age: 52, sex: eligibility.SexMale, category: eligibility.CategoryCat4,
		surgery: "2024-02-20", treatment: eligibility.TreatmentLower, center: "Phoenix Center",
		providers: []string{"surgeon1", "crna1", "travel1"},
		vitals:    demoVitals{180, 95, "140/90", 85, 95, "2024-01-18"},
		documents: []demoDocument{
			{"Cardiology Records", "Severe hypertension", true, false, false},
		},
		comments: []demoComment{
			{"Dr. Sarah Johnson", "Patient disqualified due to uncontrolled hypertension and high surgical risk"},
		},
		dq: &demoDisqualification{"surgeon1", "Uncontrolled hypertension and high surgical risk", "2024-01-19"},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Severe hypertension", "High BMI", "Multiple comorbidities"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Disqualify patient for surgery", Reason: "Multiple uncontrolled comorbidities pose significant surgical risk"},
			},
			SchedulingCategory: "CAT 4 - High Risk",
			Summary:            "Patient has multiple uncontrolled comorbidities including severe hypertension and high BMI. Surgical risk is too high for safe procedure.",
		},
		status: eligibility.StatusDisqualified,
	},
	{
		name: "Jennifer Martinez", age: 29, sex: eligibility.SexFemale, category: eligibility.CategoryCat1,
		surgery: "2024-03-05", treatment: eligibility.TreatmentUpperAndLower, center: "Tucson Center",
		providers: []string{"surgeon1", "crna1", "travel1"},
		vitals:    demoVitals{160, 55, "105/65", 70, 99, "2024-01-25"},
		documents: []demoDocument{
			{"Pre-operative Blood Work", "Required for surgical clearance", false, false, false},
			{"Dental Clearance", "Pending dental evaluation", false, false, false},
		},
		comments: []demoComment{
			{"Dr. Sarah Johnson", "Patient evaluation completed, waiting for blood work results"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Missing pre-operative blood work", "Dental clearance pending"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Obtain pre-operative blood work", Reason: "Required for surgical clearance"},
				{Recommendation: "Request dental clearance", Reason: "Pending dental evaluation"},
			},
			SchedulingCategory: "CAT 1 - Pending Documentation",
			Summary:            "Young patient in excellent health. Requires completion of pre-operative blood work and dental clearance before proceeding.",
		},
		status: eligibility.StatusPending,
	},
	{
		name: "Michael Thompson", age: 41, sex: eligibility.SexMale, category: eligibility.CategoryCat2,
		surgery: "2024-02-25", treatment: eligibility.TreatmentLower, center: "Scottsdale Center",
		providers: []string{"surgeon2", "crna2", "travel1"},
		vitals:    demoVitals{178, 85, "125/82", 75, 97, "2024-01-22"},
		documents: []demoDocument{
			{"Cardiology Clearance", "Mild hypertension controlled with medication", true, true, true},
			{"Medical History", "Required for surgical clearance", true, true, true},
		},
		clearances: []demoClearance{
			{"surgeon2", eligibility.ProviderSurgeon, "2024-01-23"},
			{"crna2", eligibility.ProviderCRNA, "2024-01-23"},
		},
		comments: []demoComment{
			{"Dr. Michael Chen", "Patient cleared for surgery - hypertension well controlled"},
			{"CRNA David Wilson", "Anesthesia clearance approved"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Mild hypertension controlled with medication", "All clearances obtained"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Proceed with surgery as scheduled", Reason: "Hypertension well-controlled, all clearances obtained"},
			},
			SchedulingCategory: "CAT 2 - Cleared for Surgery",
			Summary:            "Patient has well-controlled hypertension and all required clearances have been obtained. Ready for scheduled surgery.",
		},
		status: eligibility.StatusCleared,
	},
	{
		name: "Sarah Williams", age: 35, sex: eligibility.SexFemale, category: eligibility.CategoryCat3,
		surgery: "2024-03-10", treatment: eligibility.TreatmentUpper, center: "Mesa Center",
		providers: []string{"surgeon1", "crna1", "travel1"},
		vitals:    demoVitals{168, 72, "118/78", 72, 98, "2024-01-28"},
		documents: []demoDocument{
			{"Sleep Study Results", "History of sleep apnea requires evaluation", false, false, false},
			{"Pulmonology Clearance", "Sleep apnea history may affect anesthesia", false, false, false},
		},
		comments: []demoComment{
			{"Dr. Sarah Johnson", "Patient evaluation in progress - sleep study results pending"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"History of sleep apnea", "Requires sleep study evaluation", "BMI borderline"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Obtain sleep study results", Reason: "History of sleep apnea requires evaluation"},
				{Recommendation: "Request pulmonology consultation", Reason: "Sleep apnea history may affect anesthesia"},
			},
			SchedulingCategory: "CAT 3 - Requires Specialized Clearance",
			Summary:            "Patient has history of sleep apnea requiring specialized evaluation. BMI is borderline and requires careful monitoring.",
		},
		status: eligibility.StatusInReview,
	},
	{
		name: "David Rodriguez", age: 48, sex: eligibility.SexMale, category: eligibility.CategoryCat1,
		surgery: "2024-01-20", treatment: eligibility.TreatmentUpperAndLower, center: "Phoenix Center",
		providers: []string{"surgeon2", "crna2", "travel1"},
		vitals:    demoVitals{175, 78, "120/80", 70, 98, "2024-01-15"},
		documents: []demoDocument{
			{"Post-operative Report", "Surgery completed successfully", true, true, true},
		},
		clearances: []demoClearance{
			{"surgeon2", eligibility.ProviderSurgeon, "2024-01-15"},
			{"crna2", eligibility.ProviderCRNA, "2024-01-15"},
		},
		comments: []demoComment{
			{"Dr. Michael Chen", "Surgery completed successfully"},
			{"CRNA David Wilson", "Anesthesia administered without complications"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Surgery completed successfully", "Patient recovering well"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Continue post-operative monitoring", Reason: "Surgery completed successfully"},
			},
			SchedulingCategory: "CAT 1 - Completed",
			Summary:            "Patient underwent successful surgery and is recovering well. All post-operative protocols are being followed.",
		},
		status: eligibility.StatusCompleted,
	},
	{
		name: "Lisa Anderson", age: 31, sex: eligibility.SexFemale, category: eligibility.CategoryCat2,
		surgery: "2024-03-15", treatment: eligibility.TreatmentLower, center: "Tucson Center",
		providers: []string{"surgeon1", "crna1", "travel1"},
		vitals:    demoVitals{162, 58, "112/74", 68, 99, "2024-01-30"},
		documents: []demoDocument{
			{"Insurance Verification", "Required for surgical approval", false, false, false},
			{"Travel Confirmation", "Patient traveling from out of state", false, false, false},
		},
		clearances: []demoClearance{
			{"surgeon1", eligibility.ProviderSurgeon, "2024-01-30"},
		},
		comments: []demoComment{
			{"Travel Coordinator Maria Garcia", "Working on travel arrangements and insurance verification"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Missing insurance verification", "Travel arrangements pending"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Complete insurance verification", Reason: "Required for surgical approval"},
				{Recommendation: "Arrange travel accommodations", Reason: "Patient traveling from out of state"},
			},
			SchedulingCategory: "CAT 2 - Administrative Pending",
			Summary:            "Patient is medically cleared but requires completion of administrative tasks including insurance verification and travel arrangements.",
		},
		status: eligibility.StatusPending,
	},
	{
		name: "James Brown", age: 56, sex: eligibility.SexMale, category: eligibility.CategoryCat4,
		surgery: "2024-03-20", treatment: eligibility.TreatmentUpperAndLower, center: "Scottsdale Center",
		providers: []string{"surgeon2", "crna2", "travel1"},
		vitals:    demoVitals{182, 110, "150/95", 90, 92, "2024-02-01"},
		documents: []demoDocument{
			{"Cardiology Evaluation", "Multiple cardiac risk factors", true, false, false},
		},
		comments: []demoComment{
			{"Dr. Michael Chen", "Patient disqualified due to multiple uncontrolled comorbidities"},
		},
		dq: &demoDisqualification{"surgeon2", "Multiple uncontrolled comorbidities and high surgical risk", "2024-02-02"},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Severe obesity", "Uncontrolled hypertension", "Low oxygen saturation", "Multiple cardiac risk factors"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Disqualify patient for surgery", Reason: "Multiple uncontrolled comorbidities and high surgical risk"},
			},
			SchedulingCategory: "CAT 4 - High Risk",
			Summary:            "Patient has severe obesity, uncontrolled hypertension, and low oxygen saturation. Multiple cardiac risk factors make surgery unsafe.",
		},
		status: eligibility.StatusDisqualified,
	},
	{
		name: "Amanda Taylor", age: 27, sex: eligibility.SexFemale, category: eligibility.CategoryCat1,
		surgery: "2024-02-28", treatment: eligibility.TreatmentUpper, center: "Mesa Center",
		providers: []string{"surgeon1", "crna1", "travel1"},
		vitals:    demoVitals{165, 52, "108/68", 65, 99, "2024-02-03"},
		documents: []demoDocument{
			{"Medical History", "Required for surgical clearance", true, true, true},
			{"Dental Records", "Required for surgical clearance", true, true, true},
		},
		clearances: []demoClearance{
			{"surgeon1", eligibility.ProviderSurgeon, "2024-02-04"},
			{"crna1", eligibility.ProviderCRNA, "2024-02-04"},
		},
		comments: []demoComment{
			{"Dr. Sarah Johnson", "Patient cleared for surgery - excellent health status"},
			{"CRNA Lisa Rodriguez", "Anesthesia clearance approved"},
		},
		snapshot: eligibility.RecommendationSnapshot{
			Callouts: []string{"Excellent health status", "All clearances obtained", "Ready for surgery"},
			Recommendations: []eligibility.Recommendation{
				{Recommendation: "Proceed with surgery as scheduled", Reason: "Patient in excellent health with all clearances obtained"},
			},
			SchedulingCategory: "CAT 1 - Ready for Surgery",
			Summary:            "Young patient in excellent health with no contraindications. All required documents and clearances have been obtained.",
		},
		status: eligibility.StatusCleared,
	},
}

// ---------------------------------------------------------------------------
// Synthetic data
// ---------------------------------------------------------------------------

var (
	firstNames = []string{"Olivia", "Liam", "Ava", "Noah", "Mia", "Ethan", "Sofia", "Lucas", "Chloe", "Mateo", "Grace", "Henry"}
	lastNames  = []string{"Nguyen", "Patel", "Garcia", "Kim", "Walker", "Reyes", "Foster", "Hughes", "Ortiz", "Bennett", "Price", "Coleman"}
	centers    = []string{"Phoenix Center", "Tucson Center", "Scottsdale Center", "Mesa Center"}
	docPool    = []string{"Medical History", "Dental Records", "Cardiology Clearance", "Pre-operative Blood Work", "Insurance Verification", "Sleep Study Results"}
)

// DataGenerator produces reproducible synthetic patients.
type DataGenerator struct {
	rng    *rand.Rand
	anchor time.Time
}

func NewDataGenerator(seed int64, anchor time.Time) *DataGenerator {
	return &DataGenerator{rng: rand.New(rand.NewSource(seed)), anchor: anchor}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// GeneratePatient returns a new-patient input with one surgeon, one CRNA and
// a travel coordinator drawn from the demo directory.
func (g *DataGenerator) GeneratePatient() eligibility.NewPatient {
	sex := eligibility.SexFemale
	if g.rng.Intn(2) == 0 {
		sex = eligibility.SexMale
	}
	height := float64(150 + g.rng.Intn(45))
	surgery := g.anchor.AddDate(0, 0, 7+g.rng.Intn(60))
	return eligibility.NewPatient{
		Name:              g.pick(firstNames) + " " + g.pick(lastNames),
		Age:               21 + g.rng.Intn(55),
		Sex:               sex,
		Category:          eligibility.AllCategories[g.rng.Intn(len(eligibility.AllCategories))],
		SurgeryDate:       &surgery,
		ProposedTreatment: eligibility.Treatment(1 + g.rng.Intn(3)),
		Center:            g.pick(centers),
		AssignedProviders: []eligibility.ProviderRef{
			{ProviderID: fmt.Sprintf("surgeon%d", 1+g.rng.Intn(2)), Role: eligibility.ProviderSurgeon},
			{ProviderID: fmt.Sprintf("crna%d", 1+g.rng.Intn(2)), Role: eligibility.ProviderCRNA},
			{ProviderID: "travel1", Role: eligibility.ProviderTravelCoordinator},
		},
		Vitals: &eligibility.VitalsInput{
			HeightCm:      height,
			WeightKg:      float64(50 + g.rng.Intn(60)),
			BloodPressure: fmt.Sprintf("%d/%d", 105+g.rng.Intn(40), 65+g.rng.Intn(25)),
			HeartRate:     60 + g.rng.Intn(35),
			SpO2:          93 + g.rng.Intn(7),
			Date:          g.anchor.AddDate(0, 0, -g.rng.Intn(14)),
		},
	}
}

// GenerateDocuments returns one to three distinct document names.
func (g *DataGenerator) GenerateDocuments() []string {
	n := 1 + g.rng.Intn(3)
	perm := g.rng.Perm(len(docPool))
	out := make([]string, 0, n)
	for _, i := range perm[:n] {
		out = append(out, docPool[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder loads the demo roster into an eligibility service.
type Seeder struct {
	svc    *eligibility.Service
	config SeedConfig
	logger zerolog.Logger
	shift  time.Duration
}

func NewSeeder(svc *eligibility.Service, config SeedConfig, logger zerolog.Logger) *Seeder {
	if config.ActorID == "" {
		config.ActorID = DefaultSeedConfig().ActorID
	}
	if config.Anchor.IsZero() {
		config.Anchor = time.Now().UTC()
	}
	config.Anchor = config.Anchor.UTC().Truncate(24 * time.Hour)
	return &Seeder{
		svc:    svc,
		config: config,
		logger: logger.With().Str("component", "sandbox").Logger(),
		shift:  config.Anchor.Sub(rosterEpoch),
	}
}

// Seed loads the provider directory and, when the store holds no patients,
// the demo roster plus any synthetic patients. Providers already present are
// left as they are.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{ByStatus: make(map[string]int)}

	for i := range demoProviders {
		p := demoProviders[i]
		if _, err := s.svc.GetProvider(ctx, p.ID); err == nil {
			continue
		}
		if err := s.svc.CreateProvider(ctx, &p); err != nil {
			return nil, fmt.Errorf("seed provider %s: %w", p.ID, err)
		}
		result.Providers++
	}

	_, total, err := s.svc.ListPatients(ctx, eligibility.PatientFilter{}, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	if total > 0 {
		result.Skipped = true
		result.Duration = time.Since(start)
		s.logger.Info().Int("existing", total).Msg("store already holds patients, demo roster skipped")
		return result, nil
	}

	for _, dp := range demoRoster {
		p, err := s.seedPatient(ctx, dp)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", dp.name, err)
		}
		result.Patients++
		result.ByStatus[p.Status.String()]++
	}

	gen := NewDataGenerator(s.config.Seed, s.config.Anchor)
	for i := 0; i < s.config.SyntheticPatients; i++ {
		p, err := s.seedSynthetic(ctx, gen)
		if err != nil {
			return nil, fmt.Errorf("seed synthetic patient %d: %w", i, err)
		}
		result.Patients++
		result.ByStatus[p.Status.String()]++
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("providers", result.Providers).
		Int("patients", result.Patients).
		Dur("duration", result.Duration).
		Msg("demo data loaded")
	return result, nil
}

func (s *Seeder) day(v string) time.Time {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		panic(fmt.Sprintf("sandbox: bad roster date %q", v))
	}
	return t.Add(s.shift)
}

func (s *Seeder) seedPatient(ctx context.Context, dp demoPatient) (*eligibility.Patient, error) {
	refs := make([]eligibility.ProviderRef, 0, len(dp.providers))
	for _, id := range dp.providers {
		refs = append(refs, eligibility.ProviderRef{ProviderID: id, Role: demoProvider(id).Type})
	}
	surgery := s.day(dp.surgery)
	c, err := s.svc.CreatePatient(ctx, eligibility.NewPatient{
		Name:              dp.name,
		Age:               dp.age,
		Sex:               dp.sex,
		Category:          dp.category,
		SurgeryDate:       &surgery,
		ProposedTreatment: dp.treatment,
		Center:            dp.center,
		AssignedProviders: refs,
		Vitals: &eligibility.VitalsInput{
			HeightCm:      dp.vitals.height,
			WeightKg:      dp.vitals.weight,
			BloodPressure: dp.vitals.bp,
			HeartRate:     dp.vitals.hr,
			SpO2:          dp.vitals.spo2,
			Date:          s.day(dp.vitals.date),
		},
	})
	if err != nil {
		return nil, err
	}
	id := c.Patient.ID

	for _, d := range dp.documents {
		if err := s.requestDocument(ctx, id, d); err != nil {
			return nil, err
		}
	}
	for _, cl := range dp.clearances {
		if _, err := s.svc.RecordClearance(ctx, id, eligibility.ClearanceInput{
			ProviderID:   cl.providerID,
			ProviderType: cl.role,
			Cleared:      true,
			Date:         s.day(cl.date),
		}); err != nil {
			return nil, err
		}
	}
	for _, cm := range dp.comments {
		if _, err := s.svc.AddComment(ctx, id, cm.commenter, cm.text); err != nil {
			return nil, err
		}
	}
	if _, err := s.svc.IngestSnapshot(ctx, id, dp.snapshot); err != nil {
		return nil, err
	}

	return s.reach(ctx, id, dp)
}

// reach drives the case from Pending to the roster status along legal edges.
func (s *Seeder) reach(ctx context.Context, id uuid.UUID, dp demoPatient) (*eligibility.Patient, error) {
	actor := s.config.ActorID
	switch dp.status {
	case eligibility.StatusPending:
		c, err := s.svc.GetCase(ctx, id)
		if err != nil {
			return nil, err
		}
		return &c.Patient, nil
	case eligibility.StatusInReview:
		return s.svc.RequestTransition(ctx, id, eligibility.StatusInReview, actor)
	case eligibility.StatusCleared:
		return s.svc.RequestTransition(ctx, id, eligibility.StatusCleared, actor)
	case eligibility.StatusCompleted:
		if _, err := s.svc.RequestTransition(ctx, id, eligibility.StatusCleared, actor); err != nil {
			return nil, err
		}
		return s.svc.MarkSurgeryPerformed(ctx, id, s.day(dp.surgery), actor)
	case eligibility.StatusDisqualified:
		if dp.dq == nil {
			return nil, fmt.Errorf("%w: disqualified roster entry without a disqualification", eligibility.ErrInvalidArgument)
		}
		if _, err := s.svc.RequestTransition(ctx, id, eligibility.StatusInReview, actor); err != nil {
			return nil, err
		}
		p, _, err := s.svc.DisqualifyPatient(ctx, id, eligibility.DisqualificationInput{
			ProviderID:   dp.dq.providerID,
			ProviderName: demoProvider(dp.dq.providerID).Name,
			Reason:       dp.dq.reason,
			Date:         s.day(dp.dq.date),
		}, actor)
		return p, err
	}
	return nil, fmt.Errorf("%w: unsupported roster status %s", eligibility.ErrInvalidArgument, dp.status)
}

// requestDocument adds a document and raises its flags in prerequisite order.
func (s *Seeder) requestDocument(ctx context.Context, patientID uuid.UUID, d demoDocument) error {
	doc, err := s.svc.AddDocumentRequest(ctx, patientID, d.name, d.reason)
	if err != nil {
		return err
	}
	if d.available {
		if _, err := s.svc.SetAvailability(ctx, doc.ID, true); err != nil {
			return err
		}
	}
	if d.approved {
		if _, err := s.svc.SetApproval(ctx, doc.ID, true); err != nil {
			return err
		}
	}
	if d.cleared {
		if _, err := s.svc.SetCleared(ctx, doc.ID, true); err != nil {
			return err
		}
	}
	return nil
}

// seedSynthetic creates a generated patient with outstanding document
// requests. Every other one is moved to In Review.
func (s *Seeder) seedSynthetic(ctx context.Context, gen *DataGenerator) (*eligibility.Patient, error) {
	c, err := s.svc.CreatePatient(ctx, gen.GeneratePatient())
	if err != nil {
		return nil, err
	}
	for _, name := range gen.GenerateDocuments() {
		if _, err := s.svc.AddDocumentRequest(ctx, c.Patient.ID, name, "Requested during intake review"); err != nil {
			return nil, err
		}
	}
	if gen.rng.Intn(2) == 0 {
		return &c.Patient, nil
	}
	return s.svc.RequestTransition(ctx, c.Patient.ID, eligibility.StatusInReview, s.config.ActorID)
}

func demoProvider(id string) eligibility.Provider {
	for _, p := range demoProviders {
		if p.ID == id {
			return p
		}
	}
	return eligibility.Provider{ID: id}
}
