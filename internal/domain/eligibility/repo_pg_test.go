package eligibility

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvia/clearance/internal/platform/db"
	"github.com/nuvia/clearance/migrations"
)

// newPGTestService runs against TEST_DATABASE_URL after applying migrations.
// Tests create uniquely named rows and never truncate.
func newPGTestService(t *testing.T) (*Service, *stepClock, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 5, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool, migrations.FS).Up(ctx)
	require.NoError(t, err)

	clk := newStepClock()
	svc := NewService(NewPGRepo(pool))
	svc.SetClock(clk.Now)
	return svc, clk, pool
}

func pgProviders(t *testing.T, svc *Service) []ProviderRef {
	t.Helper()
	suffix := uuid.NewString()[:8]
	refs := []ProviderRef{
		{ProviderID: "pg-surgeon-" + suffix, Name: "Dr. Okafor", Role: ProviderSurgeon},
		{ProviderID: "pg-crna-" + suffix, Name: "Sam Reid", Role: ProviderCRNA},
	}
	for _, r := range refs {
		require.NoError(t, svc.CreateProvider(context.Background(), &Provider{ID: r.ProviderID, Name: r.Name, Type: r.Role}))
	}
	return refs
}

func TestPGRepo_CaseLifecycle(t *testing.T) {
	svc, _, pool := newPGTestService(t)
	ctx := context.Background()
	team := pgProviders(t, svc)

	surgery := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c, err := svc.CreatePatient(ctx, NewPatient{
		Name:              "PG Patient " + uuid.NewString()[:8],
		Age:               50,
		Sex:               SexMale,
		Category:          CategoryCat2,
		SurgeryDate:       &surgery,
		ProposedTreatment: TreatmentLower,
		Center:            "Tucson Center",
		AssignedProviders: []ProviderRef{{ProviderID: team[0].ProviderID, Role: ProviderSurgeon}, {ProviderID: team[1].ProviderID, Role: ProviderCRNA}},
		Vitals:            &VitalsInput{HeightCm: 180, WeightKg: 90, BloodPressure: "130/85", HeartRate: 70, SpO2: 97, Date: surgery.AddDate(0, -1, 0)},
	})
	require.NoError(t, err)
	id := c.Patient.ID

	doc, err := svc.AddDocumentRequest(ctx, id, "Cardiology letter", "hypertension")
	require.NoError(t, err)
	for _, set := range []func(context.Context, uuid.UUID, bool) (*RequestedDocument, error){svc.SetAvailability, svc.SetApproval, svc.SetCleared} {
		_, err := set(ctx, doc.ID, true)
		require.NoError(t, err)
	}
	for _, ref := range team {
		_, err := svc.RecordClearance(ctx, id, ClearanceInput{ProviderID: ref.ProviderID, ProviderType: ref.Role, Cleared: true, Date: surgery.AddDate(0, 0, -7)})
		require.NoError(t, err)
	}
	_, err = svc.AddComment(ctx, id, "Dr. Okafor", "good to go")
	require.NoError(t, err)

	p, err := svc.RequestTransition(ctx, id, StatusCleared, "pg-tester")
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, p.Status)

	loaded, err := svc.GetCase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, loaded.Patient.Status)
	assert.Equal(t, CategoryCat2, loaded.Patient.Category)
	assert.Equal(t, "Dr. Okafor", loaded.Patient.AssignedProviders[0].Name)
	require.NotNil(t, loaded.Patient.Vitals)
	assert.Equal(t, 27.8, loaded.Patient.Vitals.BMI)
	require.NotNil(t, loaded.Patient.SurgeryDate)
	assert.True(t, surgery.Equal(*loaded.Patient.SurgeryDate))
	require.Len(t, loaded.Documents, 1)
	assert.True(t, loaded.Documents[0].Cleared)
	assert.Len(t, loaded.Clearances, 2)
	assert.Len(t, loaded.Comments, 1)
	require.Len(t, loaded.Audit, 1)
	assert.Equal(t, "Cleared", loaded.Audit[0].To)

	owner, err := NewPGRepo(pool).FindDocumentOwner(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, id, owner)

	p, err = svc.MarkSurgeryPerformed(ctx, id, surgery, "scheduler")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestPGRepo_StaleSaveConflicts(t *testing.T) {
	svc, _, pool := newPGTestService(t)
	ctx := context.Background()
	repo := NewPGRepo(pool)

	c, err := svc.CreatePatient(ctx, NewPatient{Name: "PG Stale " + uuid.NewString()[:8], Age: 40, Sex: SexFemale, ProposedTreatment: TreatmentUpper})
	require.NoError(t, err)

	a, err := repo.LoadCase(ctx, c.Patient.ID)
	require.NoError(t, err)
	b, err := repo.LoadCase(ctx, c.Patient.ID)
	require.NoError(t, err)

	a.Patient.Center = "Mesa Center"
	require.NoError(t, repo.SaveCase(ctx, a))
	assert.Equal(t, 2, a.Patient.Version)

	b.Patient.Center = "Phoenix Center"
	assert.ErrorIs(t, repo.SaveCase(ctx, b), errVersionConflict)

	got, err := repo.LoadCase(ctx, c.Patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mesa Center", got.Patient.Center)
}

func TestPGRepo_NotFound(t *testing.T) {
	svc, _, _ := newPGTestService(t)
	_, err := svc.GetCase(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.SetCleared(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGRepo_ListFilter(t *testing.T) {
	svc, _, _ := newPGTestService(t)
	ctx := context.Background()
	tag := uuid.NewString()[:8]

	for i, cat := range []Category{CategoryCat1, CategoryCat3, CategoryCat3} {
		_, err := svc.CreatePatient(ctx, NewPatient{
			Name:              "PG List " + tag + " " + string(rune('A'+i)),
			Age:               30,
			Sex:               SexFemale,
			Category:          cat,
			ProposedTreatment: TreatmentUpper,
		})
		require.NoError(t, err)
	}

	items, total, err := svc.ListPatients(ctx, PatientFilter{Query: "pg list " + tag, Category: CategoryCat3}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = svc.ListPatients(ctx, PatientFilter{Query: "PG LIST " + tag}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 1)
}
