package eligibility

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportRoster(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	surgery := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

	c, err := svc.CreatePatient(ctx, NewPatient{
		Name: "Ada Byron", Age: 61, Sex: SexFemale, ProposedTreatment: TreatmentUpperAndLower, Center: "Miami",
		SurgeryDate: &surgery, AssignedProviders: careTeam[:2],
		Vitals: &VitalsInput{HeightCm: 170, WeightKg: 70, BloodPressure: "120/80", HeartRate: 70, SpO2: 98, Date: clk.Now()},
	})
	require.NoError(t, err)
	createTestPatient(t, svc)

	data, err := svc.ExportRoster(ctx, PatientFilter{Query: "ada"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Patients"}, f.GetSheetList())
	rows, err := f.GetRows("Patients")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one matching patient")
	assert.Equal(t, rosterHeader, rows[0])

	row := rows[1]
	assert.Equal(t, c.Patient.ID.String(), row[0])
	assert.Equal(t, "Ada Byron", row[1])
	assert.Equal(t, "Pending", row[4])
	assert.Equal(t, "2026-07-14", row[6])
	assert.Equal(t, "Upper and Lower", row[7])
	assert.Contains(t, row[9], "Dr. Alvarez")
	assert.Contains(t, row[9], "Jo Park")
}

func TestExportRoster_Empty(t *testing.T) {
	svc, _ := newTestService(t)
	data, err := svc.ExportRoster(context.Background(), PatientFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Patients")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
