package eligibility

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu        sync.RWMutex
	cases     map[uuid.UUID]*Case
	docOwner  map[uuid.UUID]uuid.UUID
	providers map[string]*Provider
}

// NewMemoryRepo returns a Repository held in process memory. Every read
// hands out a deep copy taken under the read lock.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		cases:     make(map[uuid.UUID]*Case),
		docOwner:  make(map[uuid.UUID]uuid.UUID),
		providers: make(map[string]*Provider),
	}
}

func (r *memoryRepo) CreatePatient(_ context.Context, c *Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Patient.ID == uuid.Nil {
		c.Patient.ID = uuid.New()
	}
	if _, ok := r.cases[c.Patient.ID]; ok {
		return invalidArg("patient %s already exists", c.Patient.ID)
	}
	c.Patient.Version = 1
	r.cases[c.Patient.ID] = c.clone()
	r.indexDocs(c)
	return nil
}

func (r *memoryRepo) LoadCase(_ context.Context, patientID uuid.UUID) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[patientID]
	if !ok {
		return nil, notFound("patient %s", patientID)
	}
	return c.clone(), nil
}

func (r *memoryRepo) SaveCase(_ context.Context, c *Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.cases[c.Patient.ID]
	if !ok {
		return notFound("patient %s", c.Patient.ID)
	}
	if cur.Patient.Version != c.Patient.Version {
		return errVersionConflict
	}
	c.Patient.Version++
	r.cases[c.Patient.ID] = c.clone()
	r.indexDocs(c)
	return nil
}

func (r *memoryRepo) indexDocs(c *Case) {
	for _, d := range c.Documents {
		r.docOwner[d.ID] = c.Patient.ID
	}
}

func (r *memoryRepo) ListPatients(_ context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	var matched []*Patient
	for _, c := range r.cases {
		if !matchesFilter(&c.Patient, f) {
			continue
		}
		p := c.clone().Patient
		matched = append(matched, &p)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func matchesFilter(p *Patient, f PatientFilter) bool {
	if f.Status != 0 && p.Status != f.Status {
		return false
	}
	if f.Category != 0 && p.Category != f.Category {
		return false
	}
	if f.Treatment != 0 && p.ProposedTreatment != f.Treatment {
		return false
	}
	if f.Sex != 0 && p.Sex != f.Sex {
		return false
	}
	if f.Center != "" && !strings.EqualFold(p.Center, f.Center) {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Query)) {
		return false
	}
	return true
}

func (r *memoryRepo) FindDocumentOwner(_ context.Context, docID uuid.UUID) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.docOwner[docID]
	if !ok {
		return uuid.Nil, notFound("document %s", docID)
	}
	return id, nil
}

func (r *memoryRepo) CreateProvider(_ context.Context, p *Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID]; ok {
		return invalidArg("provider %s already exists", p.ID)
	}
	cp := *p
	r.providers[p.ID] = &cp
	return nil
}

func (r *memoryRepo) GetProvider(_ context.Context, id string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, notFound("provider %s", id)
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) ListProviders(_ context.Context) ([]*Provider, error) {
	r.mu.RLock()
	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		cp := *p
		out = append(out, &cp)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Ping(context.Context) error { return nil }
