package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordClearance_UpsertsPerProvider(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	first := clk.Now()
	_, err := svc.RecordClearance(ctx, id, ClearanceInput{
		ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", ProviderType: ProviderSurgeon, Cleared: false, Date: first,
	})
	require.NoError(t, err)
	_, err = svc.RecordClearance(ctx, id, ClearanceInput{
		ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", ProviderType: ProviderSurgeon, Cleared: true, Date: first.Add(time.Hour),
	})
	require.NoError(t, err)

	recs, err := svc.ListClearances(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Cleared)
	assert.Equal(t, first.Add(time.Hour), recs[0].Date)
}

func TestRecordClearance_RejectsBackdating(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	at := clk.Now()
	_, err := svc.RecordClearance(ctx, id, ClearanceInput{
		ProviderID: "crna-1", ProviderName: "Jo Park", ProviderType: ProviderCRNA, Cleared: true, Date: at,
	})
	require.NoError(t, err)
	_, err = svc.RecordClearance(ctx, id, ClearanceInput{
		ProviderID: "crna-1", ProviderName: "Jo Park", ProviderType: ProviderCRNA, Cleared: false, Date: at.Add(-time.Minute),
	})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	recs, err := svc.ListClearances(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Cleared, "rejected write must leave the stored record")
}

func TestRecordClearance_Validation(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)
	require.NoError(t, svc.CreateProvider(ctx, &Provider{ID: "crna-9", Name: "Ana Ruiz", Type: ProviderCRNA}))

	tests := []struct {
		name string
		in   ClearanceInput
	}{
		{"travel coordinator", ClearanceInput{ProviderID: "travel-1", ProviderName: "Lee Tran", ProviderType: ProviderTravelCoordinator, Cleared: true, Date: clk.Now()}},
		{"missing provider id", ClearanceInput{ProviderName: "X", ProviderType: ProviderSurgeon, Cleared: true, Date: clk.Now()}},
		{"missing date", ClearanceInput{ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", ProviderType: ProviderSurgeon, Cleared: true}},
		{"directory type mismatch", ClearanceInput{ProviderID: "crna-9", ProviderType: ProviderSurgeon, Cleared: true, Date: clk.Now()}},
		{"unknown provider without name", ClearanceInput{ProviderID: "ghost", ProviderType: ProviderSurgeon, Cleared: true, Date: clk.Now()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordClearance(ctx, id, tt.in)
			assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
		})
	}

	rec, err := svc.RecordClearance(ctx, id, ClearanceInput{ProviderID: "crna-9", ProviderType: ProviderCRNA, Cleared: true, Date: clk.Now()})
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", rec.ProviderName, "name comes from the directory")
}

func TestHasAllRequiredClearances(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)
	required := []ProviderType{ProviderSurgeon, ProviderCRNA}

	ok, err := svc.HasAllRequiredClearances(ctx, id, required)
	require.NoError(t, err)
	assert.False(t, ok)

	signOff(t, svc, clk, id, careTeam[0])
	ok, _ = svc.HasAllRequiredClearances(ctx, id, required)
	assert.False(t, ok, "CRNA still missing")

	signOff(t, svc, clk, id, careTeam[1])
	ok, _ = svc.HasAllRequiredClearances(ctx, id, required)
	assert.True(t, ok)

	ok, _ = svc.HasAllRequiredClearances(ctx, id, nil)
	assert.True(t, ok, "nothing required")

	_, err = svc.RecordDisqualification(ctx, id, DisqualificationInput{
		ProviderID: "crna-1", ProviderName: "Jo Park", Reason: "Uncontrolled hypertension", Date: clk.Now(),
	})
	require.NoError(t, err)
	ok, _ = svc.HasAllRequiredClearances(ctx, id, required)
	assert.False(t, ok, "a later disqualification supersedes earlier clearances")

	signOff(t, svc, clk, id, careTeam[0])
	signOff(t, svc, clk, id, careTeam[1])
	ok, _ = svc.HasAllRequiredClearances(ctx, id, required)
	assert.True(t, ok, "clearances dated after the disqualification count again")
}

func TestRecordDisqualification_DoesNotChangeStatus(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	_, err := svc.RecordDisqualification(ctx, id, DisqualificationInput{ProviderID: "surgeon-1", Date: clk.Now()})
	assert.True(t, errors.Is(err, ErrInvalidArgument), "reason is required")

	rec, err := svc.RecordDisqualification(ctx, id, DisqualificationInput{
		ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", Reason: "Active infection", Date: clk.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, id, rec.PatientID)

	c, err := svc.GetCase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Patient.Status)
	assert.Len(t, c.Disqualifications, 1)
}

// flakyDirectory fails provider lookups while down is set.
type flakyDirectory struct {
	Repository
	down bool
}

func (r *flakyDirectory) GetProvider(ctx context.Context, id string) (*Provider, error) {
	if r.down {
		return nil, errors.New("connection reset")
	}
	return r.Repository.GetProvider(ctx, id)
}

func TestRecordClearance_DirectoryFailureIsUnavailable(t *testing.T) {
	repo := &flakyDirectory{Repository: NewMemoryRepo()}
	clk := newStepClock()
	svc := NewService(repo)
	svc.SetClock(clk.Now)
	ctx := context.Background()

	require.NoError(t, svc.CreateProvider(ctx, &Provider{ID: "crna-1", Name: "Jo Park", Type: ProviderCRNA}))
	id := createTestPatient(t, svc,
		ProviderRef{ProviderID: "surgeon-1", Name: "Dr. Alvarez", Role: ProviderSurgeon},
		ProviderRef{ProviderID: "crna-1", Name: "Jo Park", Role: ProviderCRNA},
	)
	asSurgeon := ClearanceInput{ProviderID: "crna-1", ProviderName: "Jo Park", ProviderType: ProviderSurgeon, Cleared: true, Date: clk.Now()}

	_, err := svc.RecordClearance(ctx, id, asSurgeon)
	assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)

	repo.down = true
	_, err = svc.RecordClearance(ctx, id, asSurgeon)
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	_, err = svc.RecordClearance(ctx, id, ClearanceInput{ProviderID: "crna-1", ProviderType: ProviderCRNA, Cleared: true, Date: clk.Now()})
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	_, err = svc.AssignProviders(ctx, id, []ProviderRef{{ProviderID: "crna-1", Role: ProviderCRNA}})
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	recs, err := svc.ListClearances(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = svc.RequestTransition(ctx, id, StatusCleared, "staff-1")
	assert.True(t, errors.Is(err, ErrGuardFailed), "got %v", err)
}
