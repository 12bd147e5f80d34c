package eligibility

import (
	"context"
	"sort"
)

const (
	dashboardRecent   = 5
	dashboardUpcoming = 3
)

// Dashboard is the overview shown on the landing page.
type Dashboard struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
	Recent     []*Patient     `json:"recent"`
	Upcoming   []*Patient     `json:"upcoming_surgeries"`
}

// Dashboard counts every patient by status and category and lists the most
// recently created patients and the next Cleared patients due for surgery.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	all, total, err := s.ListPatients(ctx, PatientFilter{}, 0, 0)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{
		Total:      total,
		ByStatus:   make(map[string]int, len(AllStatuses)),
		ByCategory: make(map[string]int, len(AllCategories)),
		Recent:     []*Patient{},
		Upcoming:   []*Patient{},
	}
	for _, st := range AllStatuses {
		d.ByStatus[st.String()] = 0
	}
	for _, cat := range AllCategories {
		d.ByCategory[cat.String()] = 0
	}

	now := s.clock()
	var upcoming []*Patient
	for _, p := range all {
		d.ByStatus[p.Status.String()]++
		d.ByCategory[p.Category.String()]++
		if p.Status == StatusCleared && p.SurgeryDate != nil && !p.SurgeryDate.Before(now) {
			upcoming = append(upcoming, p)
		}
	}

	// all is newest first.
	if len(all) > dashboardRecent {
		d.Recent = all[:dashboardRecent]
	} else if len(all) > 0 {
		d.Recent = all
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].SurgeryDate.Before(*upcoming[j].SurgeryDate)
	})
	if len(upcoming) > dashboardUpcoming {
		upcoming = upcoming[:dashboardUpcoming]
	}
	if len(upcoming) > 0 {
		d.Upcoming = upcoming
	}
	return d, nil
}
