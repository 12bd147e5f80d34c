package eligibility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per reading so that every recorded
// timestamp is distinct and ordered.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T) (*Service, *stepClock) {
	t.Helper()
	clk := newStepClock()
	svc := NewService(NewMemoryRepo())
	svc.SetClock(clk.Now)
	return svc, clk
}

var careTeam = []ProviderRef{
	{ProviderID: "surgeon-1", Name: "Dr. Alvarez", Role: ProviderSurgeon},
	{ProviderID: "crna-1", Name: "Jo Park", Role: ProviderCRNA},
	{ProviderID: "travel-1", Name: "Lee Tran", Role: ProviderTravelCoordinator},
}

func createTestPatient(t *testing.T, svc *Service, providers ...ProviderRef) uuid.UUID {
	t.Helper()
	c, err := svc.CreatePatient(context.Background(), NewPatient{
		Name:              "Maria Lopez",
		Age:               58,
		Sex:               SexFemale,
		ProposedTreatment: TreatmentUpper,
		Center:            "Miami",
		AssignedProviders: providers,
	})
	require.NoError(t, err)
	return c.Patient.ID
}

func clearAllDocuments(t *testing.T, svc *Service, patientID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	docs, err := svc.ListDocuments(ctx, patientID)
	require.NoError(t, err)
	for _, d := range docs {
		_, err := svc.SetAvailability(ctx, d.ID, true)
		require.NoError(t, err)
		_, err = svc.SetApproval(ctx, d.ID, true)
		require.NoError(t, err)
		_, err = svc.SetCleared(ctx, d.ID, true)
		require.NoError(t, err)
	}
}

func signOff(t *testing.T, svc *Service, clk *stepClock, patientID uuid.UUID, ref ProviderRef) {
	t.Helper()
	_, err := svc.RecordClearance(context.Background(), patientID, ClearanceInput{
		ProviderID:   ref.ProviderID,
		ProviderName: ref.Name,
		ProviderType: ref.Role,
		Cleared:      true,
		Date:         clk.Now(),
	})
	require.NoError(t, err)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (n *recordingNotifier) StatusChanged(_ context.Context, ch StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, ch)
}

func (n *recordingNotifier) all() []StatusChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]StatusChange(nil), n.changes...)
}
