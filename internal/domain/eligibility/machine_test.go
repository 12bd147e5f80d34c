package eligibility

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readyCase builds a case in status from whose guard for to is satisfied,
// so only the edge table decides the outcome.
func readyCase(from, to Status) *Case {
	t0 := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	performed := t0
	c := &Case{Patient: Patient{
		ID:                 uuid.New(),
		Status:             from,
		StatusChangedAt:    t0,
		SurgeryPerformedAt: &performed,
	}}
	if to == StatusDisqualified {
		c.Disqualifications = []DisqualificationRecord{{
			ID: uuid.New(), ProviderID: "surgeon-1", Reason: "Active infection",
			Date: t0.Add(time.Minute), RecordedAt: t0.Add(time.Minute),
		}}
	}
	return c
}

func TestTransition_AllPairs(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusInReview}:      true,
		{StatusPending, StatusCleared}:       true,
		{StatusPending, StatusDisqualified}:  true,
		{StatusInReview, StatusCleared}:      true,
		{StatusInReview, StatusDisqualified}: true,
		{StatusCleared, StatusCompleted}:     true,
	}
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	pairs := 0
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if from == to {
				continue
			}
			pairs++
			t.Run(fmt.Sprintf("%s to %s", from, to), func(t *testing.T) {
				c := readyCase(from, to)
				err := c.transition(to, "dr-smith", now)
				if allowed[[2]Status{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, c.Patient.Status)
					assert.Equal(t, now, c.Patient.StatusChangedAt)
					require.Len(t, c.Audit, 1)
					assert.Equal(t, from.String(), c.Audit[0].From)
					assert.Equal(t, to.String(), c.Audit[0].To)
					return
				}
				assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
				assert.Equal(t, from, c.Patient.Status)
				assert.Empty(t, c.Audit)
			})
		}
	}
	assert.Equal(t, 20, pairs)
}

func TestTransition_SameStateIsInvalid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.False(t, CanTransition(s, s), s.String())
	}
}

func TestClearPatient_FullScenario(t *testing.T) {
	svc, clk := newTestService(t)
	notes := &recordingNotifier{}
	svc.SetNotifier(notes)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	_, err := svc.AddDocumentRequest(ctx, id, "Cardiology letter", "Prior MI")
	require.NoError(t, err)

	_, err = svc.RequestTransition(ctx, id, StatusInReview, "coordinator-1")
	require.NoError(t, err)

	_, err = svc.RequestTransition(ctx, id, StatusCleared, "dr-alvarez")
	var ge *GuardError
	require.True(t, errors.As(err, &ge), "got %v", err)
	assert.True(t, errors.Is(err, ErrGuardFailed))
	assert.Equal(t, StatusInReview, ge.From)
	assert.Equal(t, StatusCleared, ge.To)

	names := map[string]UnmetKind{}
	for _, u := range ge.Unmet {
		names[u.Name] = u.Kind
	}
	assert.Equal(t, UnmetDocument, names["Cardiology letter"])
	assert.Equal(t, UnmetProviderRole, names["Surgeon"])
	assert.Equal(t, UnmetProviderRole, names["CRNA"])
	assert.NotContains(t, names, "Travel Coordinator", "coordinators never sign clearances")
	assert.Contains(t, err.Error(), `"Cardiology letter" not cleared`)

	clearAllDocuments(t, svc, id)
	signOff(t, svc, clk, id, careTeam[0])

	_, err = svc.RequestTransition(ctx, id, StatusCleared, "dr-alvarez")
	require.True(t, errors.As(err, &ge))
	require.Len(t, ge.Unmet, 1)
	assert.Equal(t, "CRNA", ge.Unmet[0].Name)

	signOff(t, svc, clk, id, careTeam[1])
	p, err := svc.RequestTransition(ctx, id, StatusCleared, "dr-alvarez")
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, p.Status)

	audit, err := svc.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, "In Review", audit[1].From)
	assert.Equal(t, "Cleared", audit[1].To)
	assert.Equal(t, "dr-alvarez", audit[1].ActorID)

	changes := notes.all()
	require.Len(t, changes, 2)
	assert.Equal(t, StatusCleared, changes[1].To)
	assert.Equal(t, id, changes[1].PatientID)
}

func TestClear_NoClearanceProvidersNoDocuments(t *testing.T) {
	svc, _ := newTestService(t)
	id := createTestPatient(t, svc)

	p, err := svc.RequestTransition(context.Background(), id, StatusCleared, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, p.Status)
}

func TestDisqualifyPatient_IsFinal(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	p, rec, err := svc.DisqualifyPatient(ctx, id, DisqualificationInput{
		ProviderID: "crna-1", ProviderName: "Jo Park", Reason: "BMI above anesthesia limit", Date: clk.Now(),
	}, "crna-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDisqualified, p.Status)
	assert.Equal(t, "BMI above anesthesia limit", rec.Reason)

	for _, target := range AllStatuses {
		_, err := svc.RequestTransition(ctx, id, target, "admin")
		assert.True(t, errors.Is(err, ErrInvalidTransition), "%s: got %v", target, err)
	}

	_, _, err = svc.DisqualifyPatient(ctx, id, DisqualificationInput{
		ProviderID: "surgeon-1", Reason: "again", Date: clk.Now(),
	}, "surgeon-1")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	dqs, err := svc.ListDisqualifications(ctx, id)
	require.NoError(t, err)
	assert.Len(t, dqs, 1, "a refused disqualify must not append a record")
}

func TestClear_BlockedByAnyDisqualification(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	_, err := svc.RecordDisqualification(ctx, id, DisqualificationInput{
		ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", Reason: "Smoker", Date: clk.Now(),
	})
	require.NoError(t, err)

	signOff(t, svc, clk, id, careTeam[0])
	signOff(t, svc, clk, id, careTeam[1])

	_, err = svc.RequestTransition(ctx, id, StatusCleared, "dr-alvarez")
	var ge *GuardError
	require.True(t, errors.As(err, &ge))
	require.Len(t, ge.Unmet, 1)
	assert.Equal(t, UnmetDisqualified, ge.Unmet[0].Kind)
}

func TestDisqualifiedGuard_RequiresFreshRecord(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	_, err := svc.RequestTransition(ctx, id, StatusDisqualified, "dr-alvarez")
	var ge *GuardError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, UnmetDisqualifyEntry, ge.Unmet[0].Kind)

	// Recorded while Pending, then the status moves on: the old record no
	// longer justifies disqualification.
	_, err = svc.RecordDisqualification(ctx, id, DisqualificationInput{
		ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", Reason: "Smoker", Date: clk.Now(),
	})
	require.NoError(t, err)
	_, err = svc.RequestTransition(ctx, id, StatusInReview, "coordinator-1")
	require.NoError(t, err)
	_, err = svc.RequestTransition(ctx, id, StatusDisqualified, "dr-alvarez")
	assert.True(t, errors.Is(err, ErrGuardFailed))

	_, err = svc.RecordDisqualification(ctx, id, DisqualificationInput{
		ProviderID: "surgeon-1", ProviderName: "Dr. Alvarez", Reason: "Still smoking", Date: clk.Now(),
	})
	require.NoError(t, err)
	p, err := svc.RequestTransition(ctx, id, StatusDisqualified, "dr-alvarez")
	require.NoError(t, err)
	assert.Equal(t, StatusDisqualified, p.Status)
}

func TestMarkSurgeryPerformed(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	t.Run("cleared completes", func(t *testing.T) {
		id := createTestPatient(t, svc)
		_, err := svc.RequestTransition(ctx, id, StatusCleared, "staff-1")
		require.NoError(t, err)

		at := clk.Now()
		p, err := svc.MarkSurgeryPerformed(ctx, id, at, "scheduler")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, p.Status)
		require.NotNil(t, p.SurgeryPerformedAt)
		assert.Equal(t, at, *p.SurgeryPerformedAt)
	})

	t.Run("signal kept until cleared", func(t *testing.T) {
		id := createTestPatient(t, svc)
		_, err := svc.RequestTransition(ctx, id, StatusCompleted, "staff-1")
		assert.True(t, errors.Is(err, ErrInvalidTransition))

		p, err := svc.MarkSurgeryPerformed(ctx, id, time.Time{}, "scheduler")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, p.Status)
		assert.NotNil(t, p.SurgeryPerformedAt)

		_, err = svc.RequestTransition(ctx, id, StatusCleared, "staff-1")
		require.NoError(t, err)
		p, err = svc.RequestTransition(ctx, id, StatusCompleted, "staff-1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, p.Status)
	})

	t.Run("completed guard unmet", func(t *testing.T) {
		id := createTestPatient(t, svc)
		_, err := svc.RequestTransition(ctx, id, StatusCleared, "staff-1")
		require.NoError(t, err)
		_, err = svc.RequestTransition(ctx, id, StatusCompleted, "staff-1")
		var ge *GuardError
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, UnmetSurgery, ge.Unmet[0].Kind)
	})

	t.Run("terminal refused", func(t *testing.T) {
		id := createTestPatient(t, svc)
		_, _, err := svc.DisqualifyPatient(ctx, id, DisqualificationInput{
			ProviderID: "surgeon-1", Reason: "Declined", Date: clk.Now(),
		}, "surgeon-1")
		require.NoError(t, err)
		_, err = svc.MarkSurgeryPerformed(ctx, id, clk.Now(), "scheduler")
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})
}

func TestRequestTransition_Arguments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := createTestPatient(t, svc)

	_, err := svc.RequestTransition(ctx, id, StatusInReview, "  ")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = svc.RequestTransition(ctx, id, Status(42), "staff-1")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = svc.RequestTransition(ctx, uuid.New(), StatusInReview, "staff-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRefusedTransition_LeavesNoTrace(t *testing.T) {
	svc, _ := newTestService(t)
	notes := &recordingNotifier{}
	svc.SetNotifier(notes)
	ctx := context.Background()
	id := createTestPatient(t, svc, careTeam...)

	before, err := svc.GetCase(ctx, id)
	require.NoError(t, err)
	_, err = svc.RequestTransition(ctx, id, StatusCleared, "dr-alvarez")
	require.Error(t, err)

	after, err := svc.GetCase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Patient.Version, after.Patient.Version)
	assert.Empty(t, after.Audit)
	assert.Empty(t, notes.all())
}
