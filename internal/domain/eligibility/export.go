package eligibility

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const rosterSheet = "Patients"

var rosterHeader = []string{
	"Patient ID", "Name", "Age", "Sex", "Status", "Category", "Surgery Date",
	"Proposed Treatment", "Center", "Assigned Providers", "BMI", "Blood Pressure",
}

var rosterWidths = []float64{38, 24, 6, 8, 14, 14, 14, 18, 16, 40, 8, 14}

// ExportRoster renders the patients matching f as an XLSX workbook.
func (s *Service) ExportRoster(ctx context.Context, f PatientFilter) ([]byte, error) {
	patients, _, err := s.ListPatients(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	return renderRoster(patients)
}

func renderRoster(patients []*Patient) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(rosterSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range rosterHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(rosterSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(rosterSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(rosterSheet, col, col, rosterWidths[i]); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for r, p := range patients {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(rosterSheet, cell, &[]interface{}{
			p.ID.String(), p.Name, p.Age, p.Sex.String(), p.Status.String(), p.Category.String(),
			surgeryDateCell(p), p.ProposedTreatment.String(), p.Center, providerNames(p),
			bmiCell(p), bloodPressureCell(p),
		}); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := f.SetPanes(rosterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func surgeryDateCell(p *Patient) string {
	if p.SurgeryDate == nil {
		return ""
	}
	return p.SurgeryDate.Format("2006-01-02")
}

func providerNames(p *Patient) string {
	names := make([]string, 0, len(p.AssignedProviders))
	for _, ref := range p.AssignedProviders {
		names = append(names, fmt.Sprintf("%s (%s)", ref.Name, ref.Role))
	}
	return strings.Join(names, ", ")
}

func bmiCell(p *Patient) interface{} {
	if p.Vitals == nil {
		return ""
	}
	return p.Vitals.BMI
}

func bloodPressureCell(p *Patient) string {
	if p.Vitals == nil {
		return ""
	}
	return p.Vitals.BloodPressure
}
